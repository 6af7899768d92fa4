package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultProfile   ResultType = "profile"
	ResultKnowledge ResultType = "knowledge"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	Department string     `json:"department,omitempty"`
	Deprecated bool       `json:"deprecated,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text             string
	FilterType       ResultType // empty = all types
	FilterDepartment string
	Limit            int
	Offset           int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search. Meilisearch and the ILIKE
// fallback both implement it; the facade routes queries through it.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

var (
	_ Searcher = (*Meili)(nil)
	_ Searcher = (*PgLike)(nil)
)

// ProfileRecord is the data we index for a profile.
type ProfileRecord struct {
	ID         string   `json:"id"`
	FullName   string   `json:"fullName"`
	Role       string   `json:"role"`
	Team       string   `json:"team"`
	Department string   `json:"department"`
	Expertise  []string `json:"expertise"`
}

// KnowledgeRecord is the data we index for a knowledge item.
type KnowledgeRecord struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags"`
	AuthorName string   `json:"authorName"`
	Deprecated bool     `json:"deprecated"`
}
