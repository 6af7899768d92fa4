package search

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// PgLike implements Searcher with case-insensitive substring matching in
// PostgreSQL. It is the fallback when Meilisearch is unreachable, and the
// contract the expert finder relies on: a query matches when it appears
// anywhere inside a field, regardless of case.
type PgLike struct {
	db *sql.DB
}

// NewPgLike creates a PostgreSQL fallback searcher.
func NewPgLike(db *sql.DB) *PgLike {
	return &PgLike{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgLike) Healthy() bool {
	return true
}

// Search runs a UNION ALL over profiles and knowledge_items with ILIKE
// patterns. Expertise and tags are matched through their jsonb text form,
// which also covers legacy rows storing a scalar instead of an array.
func (p *PgLike) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	pattern := "%" + escapeLike(q.Text) + "%"
	args := []any{pattern}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultProfile {
		profileWhere := "(p.full_name ILIKE $1 OR p.role ILIKE $1 OR p.expertise::text ILIKE $1)"
		if q.FilterDepartment != "" {
			profileWhere += fmt.Sprintf(" AND p.department = $%d", argN)
			args = append(args, q.FilterDepartment)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'profile'::text AS type, p.id, p.full_name AS title,
				p.role AS snippet, p.department, FALSE AS deprecated
			FROM profiles p
			WHERE %s`, profileWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultKnowledge {
		subQueries = append(subQueries, `
			SELECT 'knowledge'::text AS type, k.id, k.title,
				LEFT(k.content, 200) AS snippet, ''::text AS department, k.is_deprecated AS deprecated
			FROM knowledge_items k
			WHERE (k.title ILIKE $1 OR k.content ILIKE $1 OR k.tags::text ILIKE $1)`)
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	// COUNT(*) OVER () carries the pre-LIMIT match count on every row, so
	// pagination gets a real total without a second query.
	query := fmt.Sprintf(`
		SELECT type, id, title, snippet, department, deprecated, COUNT(*) OVER () AS total
		FROM (%s) hits
		ORDER BY title ASC
		LIMIT $%d OFFSET $%d
	`, strings.Join(subQueries, " UNION ALL "), argN, argN+1)
	args = append(args, limit, offset)

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("fallback search: %w", err)
	}
	defer rows.Close()

	var results []Result
	var total int
	for rows.Next() {
		var r Result
		var rtyp string
		if err := rows.Scan(&rtyp, &r.ID, &r.Title, &r.Snippet, &r.Department, &r.Deprecated, &total); err != nil {
			return nil, 0, fmt.Errorf("scan search hit: %w", err)
		}
		r.Type = ResultType(rtyp)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search hits: %w", err)
	}
	return results, total, nil
}

// LoadAllRecords reads every profile and knowledge item for reindexing.
func (p *PgLike) LoadAllRecords() ([]ProfileRecord, []KnowledgeRecord, error) {
	profileRows, err := p.db.Query(`SELECT id, full_name, role, team, department, expertise FROM profiles`)
	if err != nil {
		return nil, nil, fmt.Errorf("load profiles for reindex: %w", err)
	}
	defer profileRows.Close()

	var profiles []ProfileRecord
	for profileRows.Next() {
		var r ProfileRecord
		var expertiseRaw []byte
		if err := profileRows.Scan(&r.ID, &r.FullName, &r.Role, &r.Team, &r.Department, &expertiseRaw); err != nil {
			return nil, nil, fmt.Errorf("scan profile record: %w", err)
		}
		r.Expertise = decodeJSONList(expertiseRaw)
		profiles = append(profiles, r)
	}
	if err := profileRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate profile records: %w", err)
	}

	knowledgeRows, err := p.db.Query(`SELECT id, title, content, tags, author_name, is_deprecated FROM knowledge_items`)
	if err != nil {
		return nil, nil, fmt.Errorf("load knowledge for reindex: %w", err)
	}
	defer knowledgeRows.Close()

	var items []KnowledgeRecord
	for knowledgeRows.Next() {
		var r KnowledgeRecord
		var tagsRaw []byte
		if err := knowledgeRows.Scan(&r.ID, &r.Title, &r.Content, &tagsRaw, &r.AuthorName, &r.Deprecated); err != nil {
			return nil, nil, fmt.Errorf("scan knowledge record: %w", err)
		}
		r.Tags = decodeJSONList(tagsRaw)
		items = append(items, r)
	}
	if err := knowledgeRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate knowledge records: %w", err)
	}

	return profiles, items, nil
}

func decodeJSONList(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return []string{single}
	}
	return []string{}
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
