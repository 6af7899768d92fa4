package store

import "time"

type Profile struct {
	ID         string
	FullName   string
	Email      string
	Role       string
	AccessRole string
	Team       string
	Department string
	Expertise  []string
	AvatarURL  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Connection struct {
	UserID        string
	ConnectedWith string
	Status        string
	CreatedAt     time.Time
}

// ConversationSummary is derived from the message log, never stored.
// One entry per peer the user has exchanged messages with.
type ConversationSummary struct {
	PeerID          string
	PeerName        string
	LastMessage     string
	LastMessageTime time.Time
	UnreadCount     int
}

type Message struct {
	ID          string
	SenderID    string
	SenderName  string
	RecipientID string
	Content     string
	CreatedAt   time.Time
}

type KnowledgeItem struct {
	ID                string
	Title             string
	Content           string
	Tags              []string
	AuthorID          string
	AuthorName        string
	Version           int
	FreshnessScore    float64
	IsDeprecated      bool
	DeprecationReason string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type PeerReview struct {
	ID              string
	KnowledgeItemID string
	ReviewerID      string
	ReviewerName    string
	Status          string
	Rating          int
	Comments        string
	CreatedAt       time.Time
}

type KnowledgeVersion struct {
	ID              string
	KnowledgeItemID string
	VersionNumber   int
	Title           string
	Content         string
	ChangedBy       string
	ChangeSummary   string
	CommitHash      string
	CreatedAt       time.Time
}

type Bookmark struct {
	UserID          string
	KnowledgeItemID string
	CreatedAt       time.Time
}

// ShareLink grants unauthenticated read access to a knowledge item.
type ShareLink struct {
	ID              string
	Token           string
	KnowledgeItemID string
	CreatedBy       string
	PasswordHash    *string
	ExpiresAt       *time.Time
	AccessCount     int
	CreatedAt       time.Time
	RevokedAt       *time.Time
}

// FreshnessBand maps a freshness score to its display band.
func FreshnessBand(score float64) string {
	switch {
	case score >= 80:
		return "Fresh"
	case score >= 50:
		return "Moderate"
	default:
		return "Stale"
	}
}

// SummaryCounts backs the dashboard tiles.
type SummaryCounts struct {
	Profiles       int
	KnowledgeItems int
	StaleItems     int
	Deprecated     int
	PendingReviews int
	MessagesToday  int
	Connections    int
}
