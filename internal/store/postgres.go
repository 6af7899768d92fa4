package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// decodeStringList accepts either a JSON array of strings or a bare JSON
// string. Some upstream writers stored expertise as a scalar, so both
// representations must be readable.
func decodeStringList(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if strings.TrimSpace(single) == "" {
			return []string{}
		}
		return []string{single}
	}
	return []string{}
}

func encodeStringList(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	encoded, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("marshal string list: %w", err)
	}
	return encoded, nil
}

const profileColumns = `id, full_name, email, role, access_role, team, department, expertise, COALESCE(avatar_url, ''), created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var item Profile
	var expertiseRaw []byte
	err := row.Scan(
		&item.ID,
		&item.FullName,
		&item.Email,
		&item.Role,
		&item.AccessRole,
		&item.Team,
		&item.Department,
		&expertiseRaw,
		&item.AvatarURL,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return Profile{}, err
	}
	item.Expertise = decodeStringList(expertiseRaw)
	return item, nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id=$1`, userID)
	return scanProfile(row)
}

// EnsureProfile returns the caller's profile, creating a blank one when the
// id is unknown. Mirrors the read-or-create-on-miss profile fetch.
func (s *PostgresStore) EnsureProfile(ctx context.Context, userID, fullName, email string) (Profile, error) {
	item, err := s.GetProfile(ctx, userID)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Profile{}, fmt.Errorf("lookup profile: %w", err)
	}

	if fullName == "" {
		fullName = "New User"
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (id, full_name, email, role, access_role, team, department, expertise)
		VALUES ($1, $2, $3, '', 'member', '', '', '[]'::jsonb)
		ON CONFLICT (id) DO UPDATE SET id=EXCLUDED.id
		RETURNING `+profileColumns+`
	`, userID, fullName, email)
	item, err = scanProfile(row)
	if err != nil {
		return Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateProfile(ctx context.Context, item Profile) (Profile, error) {
	expertise, err := encodeStringList(item.Expertise)
	if err != nil {
		return Profile{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		UPDATE profiles
		SET full_name=$2, role=$3, team=$4, department=$5, expertise=$6::jsonb, updated_at=NOW()
		WHERE id=$1
		RETURNING `+profileColumns+`
	`, item.ID, item.FullName, item.Role, item.Team, item.Department, string(expertise))
	updated, err := scanProfile(row)
	if err != nil {
		return Profile{}, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

func (s *PostgresStore) SetAccessRole(ctx context.Context, userID, accessRole string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET access_role=$2, updated_at=NOW() WHERE id=$1
	`, userID, accessRole)
	if err != nil {
		return fmt.Errorf("set access role: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetAvatarURL(ctx context.Context, userID, avatarURL string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET avatar_url=$2, updated_at=NOW() WHERE id=$1
	`, userID, avatarURL)
	if err != nil {
		return fmt.Errorf("set avatar url: %w", err)
	}
	return nil
}

// ListProfiles returns every profile in storage order, optionally filtered
// by department.
func (s *PostgresStore) ListProfiles(ctx context.Context, department string) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+profileColumns+`
		FROM profiles
		WHERE ($1='' OR department=$1)
		ORDER BY created_at ASC
	`, department)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	items := make([]Profile, 0)
	for rows.Next() {
		item, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return items, nil
}

// ConnectUsers inserts both directions of the edge in one transaction, so
// the connection graph never holds an asymmetric edge.
func (s *PostgresStore) ConnectUsers(ctx context.Context, userID, targetID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin connect tx: %w", err)
	}
	for _, pair := range [][2]string{{userID, targetID}, {targetID, userID}} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_connections (user_id, connected_with, status)
			VALUES ($1, $2, 'connected')
			ON CONFLICT (user_id, connected_with) DO UPDATE SET status='connected'
		`, pair[0], pair[1]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert connection %s->%s: %w", pair[0], pair[1], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit connect tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) DisconnectUsers(ctx context.Context, userID, targetID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin disconnect tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM user_connections
		WHERE (user_id=$1 AND connected_with=$2) OR (user_id=$2 AND connected_with=$1)
	`, userID, targetID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("delete connection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit disconnect tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListConnections(ctx context.Context, userID string) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.full_name, p.email, p.role, p.access_role, p.team, p.department, p.expertise, COALESCE(p.avatar_url, ''), p.created_at, p.updated_at
		FROM user_connections c
		JOIN profiles p ON p.id = c.connected_with
		WHERE c.user_id=$1 AND c.status IN ('connected', 'accepted')
		ORDER BY c.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	items := make([]Profile, 0)
	for rows.Next() {
		item, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection profile: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, message Message) (Message, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (id, sender_id, sender_name, recipient_id, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, message.ID, message.SenderID, message.SenderName, message.RecipientID, message.Content).Scan(&message.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}
	return message, nil
}

// ConversationMessages returns the full history between two users, ascending
// by creation time. An empty history is not an error.
func (s *PostgresStore) ConversationMessages(ctx context.Context, userID, peerID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_id, sender_name, recipient_id, content, created_at
		FROM messages
		WHERE (sender_id=$1 AND recipient_id=$2) OR (sender_id=$2 AND recipient_id=$1)
		ORDER BY created_at ASC
	`, userID, peerID)
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var item Message
		if err := rows.Scan(&item.ID, &item.SenderID, &item.SenderName, &item.RecipientID, &item.Content, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return items, nil
}

// UserConversations computes the conversation list from the message log:
// one row per peer, carrying that pair's most recent message. Conversations
// are a derived view, so there is no conversations table to drift from the
// log.
func (s *PostgresStore) UserConversations(ctx context.Context, userID string) ([]ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT last.peer_id, COALESCE(p.full_name, 'Unknown'), last.content, last.created_at
		FROM (
			SELECT DISTINCT ON (CASE WHEN sender_id=$1 THEN recipient_id ELSE sender_id END)
				CASE WHEN sender_id=$1 THEN recipient_id ELSE sender_id END AS peer_id,
				content,
				created_at
			FROM messages
			WHERE sender_id=$1 OR recipient_id=$1
			ORDER BY CASE WHEN sender_id=$1 THEN recipient_id ELSE sender_id END, created_at DESC
		) last
		LEFT JOIN profiles p ON p.id = last.peer_id
		ORDER BY last.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	items := make([]ConversationSummary, 0)
	for rows.Next() {
		var item ConversationSummary
		if err := rows.Scan(&item.PeerID, &item.PeerName, &item.LastMessage, &item.LastMessageTime); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return items, nil
}

const knowledgeColumns = `id, title, content, tags, author_id, author_name, version, freshness_score, is_deprecated, COALESCE(deprecation_reason, ''), created_at, updated_at`

func scanKnowledgeItem(row interface{ Scan(...any) error }) (KnowledgeItem, error) {
	var item KnowledgeItem
	var tagsRaw []byte
	err := row.Scan(
		&item.ID,
		&item.Title,
		&item.Content,
		&tagsRaw,
		&item.AuthorID,
		&item.AuthorName,
		&item.Version,
		&item.FreshnessScore,
		&item.IsDeprecated,
		&item.DeprecationReason,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return KnowledgeItem{}, err
	}
	item.Tags = decodeStringList(tagsRaw)
	return item, nil
}

// InsertKnowledgeItem creates the item and its version-1 row atomically.
func (s *PostgresStore) InsertKnowledgeItem(ctx context.Context, item KnowledgeItem, versionID string) error {
	tags, err := encodeStringList(item.Tags)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin knowledge tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO knowledge_items (id, title, content, tags, author_id, author_name, version, freshness_score)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, 1, $7)
	`, item.ID, item.Title, item.Content, string(tags), item.AuthorID, item.AuthorName, item.FreshnessScore); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert knowledge item: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO knowledge_versions (id, knowledge_item_id, version_number, title, content, changed_by, change_summary, commit_hash)
		VALUES ($1, $2, 1, $3, $4, $5, 'Initial version', '')
	`, versionID, item.ID, item.Title, item.Content, item.AuthorName); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert initial version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit knowledge tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetKnowledgeItem(ctx context.Context, itemID string) (KnowledgeItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+knowledgeColumns+` FROM knowledge_items WHERE id=$1`, itemID)
	return scanKnowledgeItem(row)
}

func (s *PostgresStore) ListKnowledgeItems(ctx context.Context) ([]KnowledgeItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+knowledgeColumns+` FROM knowledge_items ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list knowledge items: %w", err)
	}
	defer rows.Close()

	items := make([]KnowledgeItem, 0)
	for rows.Next() {
		item, err := scanKnowledgeItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge items: %w", err)
	}
	return items, nil
}

// AppendKnowledgeVersion bumps the item to the next version and records the
// version row in one transaction. The version log is append-only.
func (s *PostgresStore) AppendKnowledgeVersion(ctx context.Context, version KnowledgeVersion) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin version tx: %w", err)
	}
	var next int
	if err := tx.QueryRowContext(ctx, `
		UPDATE knowledge_items
		SET title=$2, content=$3, version=version+1, updated_at=NOW()
		WHERE id=$1
		RETURNING version
	`, version.KnowledgeItemID, version.Title, version.Content).Scan(&next); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return 0, sql.ErrNoRows
		}
		return 0, fmt.Errorf("bump knowledge version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO knowledge_versions (id, knowledge_item_id, version_number, title, content, changed_by, change_summary, commit_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, version.ID, version.KnowledgeItemID, next, version.Title, version.Content, version.ChangedBy, version.ChangeSummary, version.CommitHash); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("insert knowledge version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit version tx: %w", err)
	}
	return next, nil
}

// ListKnowledgeVersions returns the version log newest first.
func (s *PostgresStore) ListKnowledgeVersions(ctx context.Context, itemID string) ([]KnowledgeVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, knowledge_item_id, version_number, title, content, changed_by, change_summary, COALESCE(commit_hash, ''), created_at
		FROM knowledge_versions
		WHERE knowledge_item_id=$1
		ORDER BY version_number DESC
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list knowledge versions: %w", err)
	}
	defer rows.Close()

	items := make([]KnowledgeVersion, 0)
	for rows.Next() {
		var item KnowledgeVersion
		if err := rows.Scan(
			&item.ID,
			&item.KnowledgeItemID,
			&item.VersionNumber,
			&item.Title,
			&item.Content,
			&item.ChangedBy,
			&item.ChangeSummary,
			&item.CommitHash,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan knowledge version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge versions: %w", err)
	}
	return items, nil
}

// SetFreshnessScore overwrites the stored score. Scores come from the
// external scoring pipeline through the admin freshness endpoint; nothing
// in this service derives them.
func (s *PostgresStore) SetFreshnessScore(ctx context.Context, itemID string, score float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_items SET freshness_score=$2 WHERE id=$1
	`, itemID, score)
	if err != nil {
		return fmt.Errorf("set freshness score: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeprecateKnowledgeItem(ctx context.Context, itemID, reason string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_items
		SET is_deprecated=TRUE, deprecation_reason=$2, updated_at=NOW()
		WHERE id=$1
	`, itemID, reason)
	if err != nil {
		return false, fmt.Errorf("deprecate knowledge item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deprecate knowledge item rows: %w", err)
	}
	return affected > 0, nil
}

// InsertPeerReview appends to the review log. There is no uniqueness
// constraint: a reviewer may file several reviews for the same item and the
// log keeps all of them.
func (s *PostgresStore) InsertPeerReview(ctx context.Context, review PeerReview) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO peer_reviews (id, knowledge_item_id, reviewer_id, reviewer_name, status, rating, comments)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, review.ID, review.KnowledgeItemID, review.ReviewerID, review.ReviewerName, review.Status, review.Rating, review.Comments)
	if err != nil {
		return fmt.Errorf("insert peer review: %w", err)
	}
	return nil
}

// CompletePendingReview fills in the reviewer's outstanding request, if one
// exists. Returns false when the reviewer has no pending row for the item.
func (s *PostgresStore) CompletePendingReview(ctx context.Context, itemID, reviewerID, status string, rating int, comments string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE peer_reviews
		SET status=$3, rating=$4, comments=$5
		WHERE id = (
			SELECT id FROM peer_reviews
			WHERE knowledge_item_id=$1 AND reviewer_id=$2 AND status='pending'
			ORDER BY created_at ASC
			LIMIT 1
		)
	`, itemID, reviewerID, status, rating, comments)
	if err != nil {
		return false, fmt.Errorf("complete pending review: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete pending review rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListPeerReviews(ctx context.Context, itemID string) ([]PeerReview, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, knowledge_item_id, reviewer_id, reviewer_name, status, rating, comments, created_at
		FROM peer_reviews
		WHERE knowledge_item_id=$1
		ORDER BY created_at DESC
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list peer reviews: %w", err)
	}
	defer rows.Close()

	items := make([]PeerReview, 0)
	for rows.Next() {
		var item PeerReview
		if err := rows.Scan(
			&item.ID,
			&item.KnowledgeItemID,
			&item.ReviewerID,
			&item.ReviewerName,
			&item.Status,
			&item.Rating,
			&item.Comments,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan peer review: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate peer reviews: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertBookmark(ctx context.Context, userID, itemID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bookmarks (user_id, knowledge_item_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, knowledge_item_id) DO NOTHING
	`, userID, itemID)
	if err != nil {
		return fmt.Errorf("upsert bookmark: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteBookmark(ctx context.Context, userID, itemID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM bookmarks WHERE user_id=$1 AND knowledge_item_id=$2
	`, userID, itemID)
	if err != nil {
		return fmt.Errorf("delete bookmark: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBookmarkedItems(ctx context.Context, userID string) ([]KnowledgeItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT k.id, k.title, k.content, k.tags, k.author_id, k.author_name, k.version, k.freshness_score, k.is_deprecated, COALESCE(k.deprecation_reason, ''), k.created_at, k.updated_at
		FROM bookmarks b
		JOIN knowledge_items k ON k.id = b.knowledge_item_id
		WHERE b.user_id=$1
		ORDER BY b.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookmarked items: %w", err)
	}
	defer rows.Close()

	items := make([]KnowledgeItem, 0)
	for rows.Next() {
		item, err := scanKnowledgeItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bookmarked item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bookmarked items: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertShareLink(ctx context.Context, link ShareLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO share_links (id, token, knowledge_item_id, created_by, password_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, link.ID, link.Token, link.KnowledgeItemID, link.CreatedBy, link.PasswordHash, link.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert share link: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetShareLinkByToken(ctx context.Context, token string) (ShareLink, error) {
	var item ShareLink
	err := s.db.QueryRowContext(ctx, `
		SELECT id, token, knowledge_item_id, created_by, password_hash, expires_at, access_count, created_at, revoked_at
		FROM share_links
		WHERE token=$1
	`, token).Scan(
		&item.ID,
		&item.Token,
		&item.KnowledgeItemID,
		&item.CreatedBy,
		&item.PasswordHash,
		&item.ExpiresAt,
		&item.AccessCount,
		&item.CreatedAt,
		&item.RevokedAt,
	)
	if err != nil {
		return ShareLink{}, err
	}
	return item, nil
}

func (s *PostgresStore) TouchShareLink(ctx context.Context, linkID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE share_links SET access_count=access_count+1, last_accessed_at=NOW() WHERE id=$1
	`, linkID)
	if err != nil {
		return fmt.Errorf("touch share link: %w", err)
	}
	return nil
}

// RevokeShareLink marks the link revoked. Only the creator may revoke.
func (s *PostgresStore) RevokeShareLink(ctx context.Context, linkID, createdBy string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE share_links SET revoked_at=NOW() WHERE id=$1 AND created_by=$2 AND revoked_at IS NULL
	`, linkID, createdBy)
	if err != nil {
		return false, fmt.Errorf("revoke share link: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke share link rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) Summary(ctx context.Context) (SummaryCounts, error) {
	var counts SummaryCounts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM profiles),
			(SELECT COUNT(*) FROM knowledge_items),
			(SELECT COUNT(*) FROM knowledge_items WHERE freshness_score < 50 AND NOT is_deprecated),
			(SELECT COUNT(*) FROM knowledge_items WHERE is_deprecated),
			(SELECT COUNT(*) FROM peer_reviews WHERE status='pending'),
			(SELECT COUNT(*) FROM messages WHERE created_at > NOW() - INTERVAL '24 hours'),
			(SELECT COUNT(*) FROM user_connections WHERE status IN ('connected', 'accepted'))
	`).Scan(
		&counts.Profiles,
		&counts.KnowledgeItems,
		&counts.StaleItems,
		&counts.Deprecated,
		&counts.PendingReviews,
		&counts.MessagesToday,
		&counts.Connections,
	)
	if err != nil {
		return SummaryCounts{}, fmt.Errorf("summary counts: %w", err)
	}
	return counts, nil
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
