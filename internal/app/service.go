package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"synapse/api/internal/archive"
	"synapse/api/internal/auth"
	"synapse/api/internal/export"
	"synapse/api/internal/rbac"
	"synapse/api/internal/realtime"
	"synapse/api/internal/search"
	"synapse/api/internal/store"
	"synapse/api/internal/util"
)

// dataStore is what the service needs from persistence.
type dataStore interface {
	GetProfile(ctx context.Context, userID string) (store.Profile, error)
	EnsureProfile(ctx context.Context, userID, fullName, email string) (store.Profile, error)
	UpdateProfile(ctx context.Context, item store.Profile) (store.Profile, error)
	SetAvatarURL(ctx context.Context, userID, avatarURL string) error
	ListProfiles(ctx context.Context, department string) ([]store.Profile, error)

	ConnectUsers(ctx context.Context, userID, targetID string) error
	DisconnectUsers(ctx context.Context, userID, targetID string) error
	ListConnections(ctx context.Context, userID string) ([]store.Profile, error)

	InsertMessage(ctx context.Context, message store.Message) (store.Message, error)
	ConversationMessages(ctx context.Context, userID, peerID string) ([]store.Message, error)
	UserConversations(ctx context.Context, userID string) ([]store.ConversationSummary, error)

	InsertKnowledgeItem(ctx context.Context, item store.KnowledgeItem, versionID string) error
	GetKnowledgeItem(ctx context.Context, itemID string) (store.KnowledgeItem, error)
	ListKnowledgeItems(ctx context.Context) ([]store.KnowledgeItem, error)
	AppendKnowledgeVersion(ctx context.Context, version store.KnowledgeVersion) (int, error)
	ListKnowledgeVersions(ctx context.Context, itemID string) ([]store.KnowledgeVersion, error)
	SetFreshnessScore(ctx context.Context, itemID string, score float64) error
	DeprecateKnowledgeItem(ctx context.Context, itemID, reason string) (bool, error)

	SetAccessRole(ctx context.Context, userID, accessRole string) error

	InsertPeerReview(ctx context.Context, review store.PeerReview) error
	CompletePendingReview(ctx context.Context, itemID, reviewerID, status string, rating int, comments string) (bool, error)
	ListPeerReviews(ctx context.Context, itemID string) ([]store.PeerReview, error)

	UpsertBookmark(ctx context.Context, userID, itemID string) error
	DeleteBookmark(ctx context.Context, userID, itemID string) error
	ListBookmarkedItems(ctx context.Context, userID string) ([]store.KnowledgeItem, error)

	InsertShareLink(ctx context.Context, link store.ShareLink) error
	GetShareLinkByToken(ctx context.Context, token string) (store.ShareLink, error)
	TouchShareLink(ctx context.Context, linkID string) error
	RevokeShareLink(ctx context.Context, linkID, createdBy string) (bool, error)

	Summary(ctx context.Context) (store.SummaryCounts, error)
	Ping(ctx context.Context) error
}

// unreadTracker keeps per-conversation unread counters and online presence.
type unreadTracker interface {
	IncrementUnread(ctx context.Context, recipientID, senderID string) error
	UnreadCount(ctx context.Context, recipientID, senderID string) (int, error)
	ResetUnread(ctx context.Context, recipientID, senderID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	Ping(ctx context.Context) error
}

// eventSender pushes events to a user's open sockets.
type eventSender interface {
	SendToUser(userID, eventType string, data any) error
}

// searchIndex covers query and index maintenance against the search backend.
type searchIndex interface {
	Search(q search.Query) search.Response
	IndexProfile(p search.ProfileRecord)
	IndexKnowledge(k search.KnowledgeRecord)
	DeleteKnowledge(id string)
}

// versionArchive records item content in per-item git repositories.
type versionArchive interface {
	EnsureItemRepo(itemID string, initial archive.Content, author string) error
	CommitVersion(itemID string, content archive.Content, author, message string) (archive.CommitInfo, error)
	History(itemID string, limit int) ([]archive.CommitInfo, error)
}

// avatarStore holds profile pictures in object storage.
type avatarStore interface {
	Upload(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error)
	Fetch(ctx context.Context, key string) (io.ReadCloser, string, error)
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

type exporter interface {
	Export(ctx context.Context, req Request) (*Result, error)
}

// mailer sends review notifications. A nil or unconfigured mailer is fine;
// notifications are best effort.
type mailer interface {
	IsConfigured() bool
	SendReviewNotification(to, authorName, reviewerName, itemTitle string, rating int, itemURL string) error
}

// Request and Result alias the export package types so the exporter interface
// stays expressible without a second import at call sites.
type (
	Request = export.Request
	Result  = export.Result
)

type Service struct {
	store    dataStore
	presence unreadTracker
	hub      eventSender
	search   searchIndex
	archive  versionArchive
	avatars  avatarStore
	exports  exporter
	mail     mailer

	socketSecret []byte
	socketTTL    time.Duration

	validate *validator.Validate
	logger   *zap.Logger
}

type ServiceDeps struct {
	Store    dataStore
	Presence unreadTracker
	Hub      eventSender
	Search   searchIndex
	Archive  versionArchive
	Avatars  avatarStore
	Exports  exporter
	Mail     mailer

	SocketSecret []byte
	SocketTTL    time.Duration

	Logger *zap.Logger
}

func NewService(deps ServiceDeps) *Service {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.SocketTTL <= 0 {
		deps.SocketTTL = 5 * time.Minute
	}
	return &Service{
		store:        deps.Store,
		presence:     deps.Presence,
		hub:          deps.Hub,
		search:       deps.Search,
		archive:      deps.Archive,
		avatars:      deps.Avatars,
		exports:      deps.Exports,
		mail:         deps.Mail,
		socketSecret: deps.SocketSecret,
		socketTTL:    deps.SocketTTL,
		validate:     validator.New(),
		logger:       deps.Logger,
	}
}

func (s *Service) validateInput(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	fields := make([]string, 0)
	if errs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range errs {
			fields = append(fields, fe.Field())
		}
	}
	return domainError(http.StatusBadRequest, "VALIDATION_FAILED", "Invalid request body", fields)
}

// --- profiles ---

type UpdateProfileInput struct {
	FullName   string   `json:"fullName" validate:"required,max=200"`
	Role       string   `json:"role" validate:"max=200"`
	Team       string   `json:"team" validate:"max=200"`
	Department string   `json:"department" validate:"max=200"`
	Expertise  []string `json:"expertise" validate:"max=50,dive,max=100"`
}

// MyProfile returns the caller's profile, creating it on first sight.
func (s *Service) MyProfile(ctx context.Context, identity auth.Identity) (store.Profile, error) {
	return s.store.EnsureProfile(ctx, identity.UserID, identity.Name, identity.Email)
}

func (s *Service) UpdateMyProfile(ctx context.Context, identity auth.Identity, input UpdateProfileInput) (store.Profile, error) {
	if err := s.validateInput(input); err != nil {
		return store.Profile{}, err
	}
	if _, err := s.store.EnsureProfile(ctx, identity.UserID, identity.Name, identity.Email); err != nil {
		return store.Profile{}, err
	}
	updated, err := s.store.UpdateProfile(ctx, store.Profile{
		ID:         identity.UserID,
		FullName:   input.FullName,
		Role:       input.Role,
		Team:       input.Team,
		Department: input.Department,
		Expertise:  input.Expertise,
	})
	if err != nil {
		return store.Profile{}, err
	}
	s.indexProfile(updated)
	return updated, nil
}

func (s *Service) Profile(ctx context.Context, userID string) (store.Profile, error) {
	return s.store.GetProfile(ctx, userID)
}

type SetAccessRoleInput struct {
	AccessRole string `json:"accessRole" validate:"required,oneof=member reviewer moderator admin"`
}

// SetAccessRole grants or changes a user's access role. Admin only.
func (s *Service) SetAccessRole(ctx context.Context, identity auth.Identity, userID string, input SetAccessRoleInput) error {
	if err := s.validateInput(input); err != nil {
		return err
	}
	caller, err := s.store.GetProfile(ctx, identity.UserID)
	if err != nil {
		return err
	}
	if !rbac.Can(rbac.Normalize(caller.AccessRole), rbac.ActionAdmin) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only an admin can change access roles", nil)
	}
	if _, err := s.store.GetProfile(ctx, userID); err != nil {
		return err
	}
	return s.store.SetAccessRole(ctx, userID, input.AccessRole)
}

// ListProfiles also serves the assistant's directory lookups.
func (s *Service) ListProfiles(ctx context.Context, department string) ([]store.Profile, error) {
	return s.store.ListProfiles(ctx, department)
}

// FindExperts matches the topic against name, team, department, role and
// expertise entries, case-insensitively. An empty topic matches everyone.
func (s *Service) FindExperts(ctx context.Context, topic, department string) ([]store.Profile, error) {
	profiles, err := s.store.ListProfiles(ctx, department)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(topic))
	matched := make([]store.Profile, 0)
	for _, p := range profiles {
		if needle == "" || profileMatches(p, needle) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// FindExpertsFor is FindExperts minus the caller and anyone they are
// already connected to. Suggesting people the caller knows is noise.
func (s *Service) FindExpertsFor(ctx context.Context, identity auth.Identity, topic, department string) ([]store.Profile, error) {
	profiles, err := s.FindExperts(ctx, topic, department)
	if err != nil {
		return nil, err
	}
	connections, err := s.store.ListConnections(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}
	connected := make(map[string]bool, len(connections))
	for _, c := range connections {
		connected[c.ID] = true
	}
	filtered := make([]store.Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.ID == identity.UserID || connected[p.ID] {
			continue
		}
		filtered = append(filtered, p)
	}
	return filtered, nil
}

func profileMatches(p store.Profile, needle string) bool {
	for _, field := range []string{p.FullName, p.Team, p.Department, p.Role} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	for _, skill := range p.Expertise {
		if strings.Contains(strings.ToLower(skill), needle) {
			return true
		}
	}
	return false
}

// SearchKnowledge backs the assistant's knowledge lookups with a simple
// substring scan. Deprecated items are excluded; the assistant should not
// surface content its authors walked away from.
func (s *Service) SearchKnowledge(ctx context.Context, topic string) ([]store.KnowledgeItem, error) {
	items, err := s.store.ListKnowledgeItems(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(topic))
	matched := make([]store.KnowledgeItem, 0)
	for _, item := range items {
		if item.IsDeprecated {
			continue
		}
		if needle == "" || knowledgeMatches(item, needle) {
			matched = append(matched, item)
		}
	}
	return matched, nil
}

func knowledgeMatches(item store.KnowledgeItem, needle string) bool {
	if strings.Contains(strings.ToLower(item.Title), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(item.Content), needle) {
		return true
	}
	for _, tag := range item.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

func (s *Service) UploadAvatar(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error) {
	if s.avatars == nil {
		return "", domainError(http.StatusServiceUnavailable, "AVATARS_DISABLED", "Avatar storage is not configured", nil)
	}
	if _, err := s.store.GetProfile(ctx, userID); err != nil {
		return "", err
	}
	key, err := s.avatars.Upload(ctx, userID, contentType, body, size)
	if err != nil {
		return "", err
	}
	if err := s.store.SetAvatarURL(ctx, userID, key); err != nil {
		return "", err
	}
	return key, nil
}

func (s *Service) FetchAvatar(ctx context.Context, userID string) (io.ReadCloser, string, error) {
	if s.avatars == nil {
		return nil, "", domainError(http.StatusServiceUnavailable, "AVATARS_DISABLED", "Avatar storage is not configured", nil)
	}
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	if profile.AvatarURL == "" {
		return nil, "", sql.ErrNoRows
	}
	return s.avatars.Fetch(ctx, profile.AvatarURL)
}

const avatarURLTTL = 15 * time.Minute

// AvatarURL returns a time-limited direct download link, so clients fetch
// the image from object storage instead of streaming it through the API.
func (s *Service) AvatarURL(ctx context.Context, userID string) (string, error) {
	if s.avatars == nil {
		return "", domainError(http.StatusServiceUnavailable, "AVATARS_DISABLED", "Avatar storage is not configured", nil)
	}
	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.AvatarURL == "" {
		return "", sql.ErrNoRows
	}
	return s.avatars.PresignedURL(ctx, profile.AvatarURL, avatarURLTTL)
}

// --- connections ---

type ConnectInput struct {
	TargetID string `json:"targetId" validate:"required"`
}

// Connect records a mutual connection between the caller and the target.
// Both directions land in one transaction, and connecting again is a no-op
// rather than an error.
func (s *Service) Connect(ctx context.Context, identity auth.Identity, input ConnectInput) error {
	if err := s.validateInput(input); err != nil {
		return err
	}
	if input.TargetID == identity.UserID {
		return domainError(http.StatusUnprocessableEntity, "SELF_CONNECT", "Cannot connect with yourself", nil)
	}
	target, err := s.store.GetProfile(ctx, input.TargetID)
	if err != nil {
		return err
	}
	if err := s.store.ConnectUsers(ctx, identity.UserID, target.ID); err != nil {
		return err
	}
	s.pushEvent(target.ID, realtime.EventConnectionRequest, map[string]any{
		"fromUserId": identity.UserID,
		"fromName":   identity.Name,
	})
	return nil
}

func (s *Service) Disconnect(ctx context.Context, identity auth.Identity, targetID string) error {
	if targetID == identity.UserID {
		return domainError(http.StatusUnprocessableEntity, "SELF_CONNECT", "Cannot disconnect from yourself", nil)
	}
	return s.store.DisconnectUsers(ctx, identity.UserID, targetID)
}

func (s *Service) Connections(ctx context.Context, userID string) ([]store.Profile, error) {
	return s.store.ListConnections(ctx, userID)
}

// --- messaging ---

type SendMessageInput struct {
	RecipientID string `json:"recipientId" validate:"required"`
	Content     string `json:"content"`
}

// SendMessage persists the message and returns the canonical stored row, so
// the client renders exactly what later history reads will return.
func (s *Service) SendMessage(ctx context.Context, identity auth.Identity, input SendMessageInput) (store.Message, error) {
	if err := s.validateInput(input); err != nil {
		return store.Message{}, err
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return store.Message{}, domainError(http.StatusBadRequest, "EMPTY_MESSAGE", "Message content cannot be empty", nil)
	}
	if _, err := s.store.GetProfile(ctx, input.RecipientID); err != nil {
		return store.Message{}, err
	}

	senderName := identity.Name
	if senderName == "" {
		senderName = "Unknown"
	}
	message, err := s.store.InsertMessage(ctx, store.Message{
		ID:          util.NewID("msg"),
		SenderID:    identity.UserID,
		SenderName:  senderName,
		RecipientID: input.RecipientID,
		Content:     content,
	})
	if err != nil {
		return store.Message{}, err
	}

	if s.presence != nil {
		if err := s.presence.IncrementUnread(ctx, message.RecipientID, message.SenderID); err != nil {
			s.logger.Warn("unread increment failed", zap.String("recipient", message.RecipientID), zap.Error(err))
		}
	}
	// The sender gets the event too, so their other open sessions stay
	// in sync with the one that sent it.
	s.pushEvent(message.RecipientID, realtime.EventNewMessage, messagePayload(message))
	s.pushEvent(message.SenderID, realtime.EventNewMessage, messagePayload(message))
	return message, nil
}

// Conversations derives the caller's conversation list from the message log
// and decorates each entry with its unread counter and the peer's presence.
func (s *Service) Conversations(ctx context.Context, userID string) ([]store.ConversationSummary, error) {
	summaries, err := s.store.UserConversations(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.presence == nil {
		return summaries, nil
	}
	for i := range summaries {
		count, err := s.presence.UnreadCount(ctx, userID, summaries[i].PeerID)
		if err != nil {
			s.logger.Warn("unread count failed", zap.String("peer", summaries[i].PeerID), zap.Error(err))
			continue
		}
		summaries[i].UnreadCount = count
	}
	return summaries, nil
}

// ConversationWith returns the full history with the peer, oldest first, and
// clears the caller's unread counter for that peer. An empty history is an
// empty list, not an error.
func (s *Service) ConversationWith(ctx context.Context, userID, peerID string) ([]store.Message, error) {
	messages, err := s.store.ConversationMessages(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	if s.presence != nil {
		if err := s.presence.ResetUnread(ctx, userID, peerID); err != nil {
			s.logger.Warn("unread reset failed", zap.String("peer", peerID), zap.Error(err))
		}
	}
	return messages, nil
}

func (s *Service) PeerOnline(ctx context.Context, peerID string) bool {
	if s.presence == nil {
		return false
	}
	online, err := s.presence.IsOnline(ctx, peerID)
	if err != nil {
		s.logger.Warn("presence check failed", zap.String("peer", peerID), zap.Error(err))
		return false
	}
	return online
}

// --- realtime negotiate ---

type NegotiateResult struct {
	URL         string `json:"url"`
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// Negotiate mints a short-lived socket token the client redeems on the
// websocket upgrade.
func (s *Service) Negotiate(identity auth.Identity) (NegotiateResult, error) {
	token, err := auth.IssueSocketToken(s.socketSecret, identity, s.socketTTL)
	if err != nil {
		return NegotiateResult{}, fmt.Errorf("issue socket token: %w", err)
	}
	return NegotiateResult{
		URL:         "/ws",
		AccessToken: token,
		ExpiresIn:   int(s.socketTTL.Seconds()),
	}, nil
}

// --- knowledge ---

type CreateKnowledgeInput struct {
	Title   string   `json:"title" validate:"required,max=300"`
	Content string   `json:"content" validate:"required"`
	Tags    []string `json:"tags" validate:"max=50,dive,max=100"`
}

type UpdateKnowledgeInput struct {
	Title         string `json:"title" validate:"required,max=300"`
	Content       string `json:"content" validate:"required"`
	ChangeSummary string `json:"changeSummary" validate:"max=500"`
}

type KnowledgeDetail struct {
	Item          store.KnowledgeItem
	Reviews       []store.PeerReview
	AverageRating float64
	Freshness     string
}

const initialFreshness = 100

func (s *Service) CreateKnowledgeItem(ctx context.Context, identity auth.Identity, input CreateKnowledgeInput) (store.KnowledgeItem, error) {
	if err := s.validateInput(input); err != nil {
		return store.KnowledgeItem{}, err
	}
	author, err := s.store.EnsureProfile(ctx, identity.UserID, identity.Name, identity.Email)
	if err != nil {
		return store.KnowledgeItem{}, err
	}

	item := store.KnowledgeItem{
		ID:             util.NewID("ki"),
		Title:          input.Title,
		Content:        input.Content,
		Tags:           input.Tags,
		AuthorID:       author.ID,
		AuthorName:     author.FullName,
		Version:        1,
		FreshnessScore: initialFreshness,
	}
	if err := s.store.InsertKnowledgeItem(ctx, item, util.NewID("kv")); err != nil {
		return store.KnowledgeItem{}, err
	}

	if s.archive != nil {
		if err := s.archive.EnsureItemRepo(item.ID, archiveContent(item.Title, item.Content, item.Tags), author.FullName); err != nil {
			s.logger.Warn("archive init failed", zap.String("item", item.ID), zap.Error(err))
		}
	}
	s.indexKnowledge(item)
	return s.store.GetKnowledgeItem(ctx, item.ID)
}

func (s *Service) KnowledgeItems(ctx context.Context) ([]store.KnowledgeItem, error) {
	return s.store.ListKnowledgeItems(ctx)
}

// KnowledgeItem returns the item with its reviews, completed-review average
// and the freshness band derived from the stored score.
func (s *Service) KnowledgeItem(ctx context.Context, itemID string) (KnowledgeDetail, error) {
	item, err := s.store.GetKnowledgeItem(ctx, itemID)
	if err != nil {
		return KnowledgeDetail{}, err
	}
	reviews, err := s.store.ListPeerReviews(ctx, itemID)
	if err != nil {
		return KnowledgeDetail{}, err
	}
	return KnowledgeDetail{
		Item:          item,
		Reviews:       reviews,
		AverageRating: averageRating(reviews),
		Freshness:     store.FreshnessBand(item.FreshnessScore),
	}, nil
}

// UpdateKnowledgeItem appends a new version: the item row moves to the next
// version number and the full content lands in the version log and the git
// archive.
func (s *Service) UpdateKnowledgeItem(ctx context.Context, identity auth.Identity, itemID string, input UpdateKnowledgeInput) (store.KnowledgeItem, error) {
	if err := s.validateInput(input); err != nil {
		return store.KnowledgeItem{}, err
	}
	existing, err := s.store.GetKnowledgeItem(ctx, itemID)
	if err != nil {
		return store.KnowledgeItem{}, err
	}

	summary := strings.TrimSpace(input.ChangeSummary)
	if summary == "" {
		summary = "Updated content"
	}

	commitHash := ""
	if s.archive != nil {
		info, err := s.archive.CommitVersion(itemID, archiveContent(input.Title, input.Content, existing.Tags), identity.Name, summary)
		if err != nil {
			s.logger.Warn("archive commit failed", zap.String("item", itemID), zap.Error(err))
		} else {
			commitHash = info.Hash
		}
	}

	if _, err := s.store.AppendKnowledgeVersion(ctx, store.KnowledgeVersion{
		ID:              util.NewID("kv"),
		KnowledgeItemID: itemID,
		Title:           input.Title,
		Content:         input.Content,
		ChangedBy:       identity.Name,
		ChangeSummary:   summary,
		CommitHash:      commitHash,
	}); err != nil {
		return store.KnowledgeItem{}, err
	}

	updated, err := s.store.GetKnowledgeItem(ctx, itemID)
	if err != nil {
		return store.KnowledgeItem{}, err
	}
	s.indexKnowledge(updated)
	if existing.AuthorID != identity.UserID {
		s.pushEvent(existing.AuthorID, realtime.EventKnowledgeUpdated, map[string]any{
			"itemId":    updated.ID,
			"title":     updated.Title,
			"version":   updated.Version,
			"changedBy": identity.Name,
		})
	}
	return updated, nil
}

func (s *Service) KnowledgeVersions(ctx context.Context, itemID string) ([]store.KnowledgeVersion, error) {
	if _, err := s.store.GetKnowledgeItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.store.ListKnowledgeVersions(ctx, itemID)
}

func (s *Service) ArchiveHistory(ctx context.Context, itemID string, limit int) ([]archive.CommitInfo, error) {
	if s.archive == nil {
		return []archive.CommitInfo{}, nil
	}
	if _, err := s.store.GetKnowledgeItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.archive.History(itemID, limit)
}

type DeprecateInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

// DeprecateKnowledgeItem marks the item deprecated. Allowed for the item's
// author or anyone whose access role grants the deprecate action.
func (s *Service) DeprecateKnowledgeItem(ctx context.Context, identity auth.Identity, itemID string, input DeprecateInput) error {
	if err := s.validateInput(input); err != nil {
		return err
	}
	item, err := s.store.GetKnowledgeItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.AuthorID != identity.UserID {
		caller, err := s.store.GetProfile(ctx, identity.UserID)
		if err != nil {
			return err
		}
		if !rbac.Can(rbac.Normalize(caller.AccessRole), rbac.ActionDeprecate) {
			return domainError(http.StatusForbidden, "FORBIDDEN", "Only the author or a moderator can deprecate this item", nil)
		}
	}
	updated, err := s.store.DeprecateKnowledgeItem(ctx, itemID, input.Reason)
	if err != nil {
		return err
	}
	if !updated {
		return sql.ErrNoRows
	}
	if item, err := s.store.GetKnowledgeItem(ctx, itemID); err == nil {
		s.indexKnowledge(item)
	}
	return nil
}

// --- peer reviews ---

type CreateReviewInput struct {
	Status   string `json:"status" validate:"omitempty,oneof=approved rejected needs_changes"`
	Rating   int    `json:"rating"`
	Comments string `json:"comments" validate:"max=2000"`
}

type RequestReviewInput struct {
	ReviewerID string `json:"reviewerId" validate:"required"`
}

// AddReview appends a review to the item's log. If the reviewer had a
// pending request for this item, the review fills it in instead of adding
// a second row. Repeat reviews by the same reviewer are allowed.
func (s *Service) AddReview(ctx context.Context, identity auth.Identity, itemID string, input CreateReviewInput) (store.PeerReview, error) {
	if err := s.validateInput(input); err != nil {
		return store.PeerReview{}, err
	}
	if input.Rating < 1 || input.Rating > 10 {
		return store.PeerReview{}, domainError(http.StatusUnprocessableEntity, "INVALID_RATING", "Rating must be between 1 and 10", nil)
	}
	if input.Status == "" {
		input.Status = "approved"
	}
	item, err := s.store.GetKnowledgeItem(ctx, itemID)
	if err != nil {
		return store.PeerReview{}, err
	}

	completed, err := s.store.CompletePendingReview(ctx, itemID, identity.UserID, input.Status, input.Rating, input.Comments)
	if err != nil {
		return store.PeerReview{}, err
	}
	review := store.PeerReview{
		ID:              util.NewID("pr"),
		KnowledgeItemID: itemID,
		ReviewerID:      identity.UserID,
		ReviewerName:    identity.Name,
		Status:          input.Status,
		Rating:          input.Rating,
		Comments:        input.Comments,
	}
	if !completed {
		if err := s.store.InsertPeerReview(ctx, review); err != nil {
			return store.PeerReview{}, err
		}
	}

	s.pushEvent(item.AuthorID, realtime.EventKnowledgeUpdated, map[string]any{
		"itemId":   itemID,
		"title":    item.Title,
		"reviewer": identity.Name,
		"rating":   input.Rating,
	})
	s.notifyAuthor(ctx, item, identity.Name, input.Rating)
	return review, nil
}

// RequestReview files a pending review assigned to the named reviewer and
// notifies them.
func (s *Service) RequestReview(ctx context.Context, identity auth.Identity, itemID string, input RequestReviewInput) error {
	if err := s.validateInput(input); err != nil {
		return err
	}
	item, err := s.store.GetKnowledgeItem(ctx, itemID)
	if err != nil {
		return err
	}
	reviewer, err := s.store.GetProfile(ctx, input.ReviewerID)
	if err != nil {
		return err
	}
	if err := s.store.InsertPeerReview(ctx, store.PeerReview{
		ID:              util.NewID("pr"),
		KnowledgeItemID: itemID,
		ReviewerID:      reviewer.ID,
		ReviewerName:    reviewer.FullName,
		Status:          "pending",
		Rating:          0,
	}); err != nil {
		return err
	}
	s.pushEvent(reviewer.ID, realtime.EventKnowledgeUpdated, map[string]any{
		"itemId":      itemID,
		"title":       item.Title,
		"requestedBy": identity.Name,
		"action":      "reviewRequested",
	})
	return nil
}

func (s *Service) Reviews(ctx context.Context, itemID string) ([]store.PeerReview, error) {
	if _, err := s.store.GetKnowledgeItem(ctx, itemID); err != nil {
		return nil, err
	}
	return s.store.ListPeerReviews(ctx, itemID)
}

type SetFreshnessInput struct {
	Score float64 `json:"score" validate:"min=0,max=100"`
}

// SetFreshness stores an externally computed freshness score. The service
// bands and displays scores but never derives them itself, so writes are
// restricted to admins acting for the scoring pipeline.
func (s *Service) SetFreshness(ctx context.Context, identity auth.Identity, itemID string, input SetFreshnessInput) error {
	if err := s.validateInput(input); err != nil {
		return err
	}
	caller, err := s.store.GetProfile(ctx, identity.UserID)
	if err != nil {
		return err
	}
	if !rbac.Can(rbac.Normalize(caller.AccessRole), rbac.ActionAdmin) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only an admin can set freshness scores", nil)
	}
	if _, err := s.store.GetKnowledgeItem(ctx, itemID); err != nil {
		return err
	}
	return s.store.SetFreshnessScore(ctx, itemID, input.Score)
}

// averageRating is the arithmetic mean over every rated review. Pending
// request rows carry no rating yet and are skipped.
func averageRating(reviews []store.PeerReview) float64 {
	var sum, count int
	for _, r := range reviews {
		if r.Rating < 1 {
			continue
		}
		sum += r.Rating
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

func (s *Service) notifyAuthor(ctx context.Context, item store.KnowledgeItem, reviewerName string, rating int) {
	if s.mail == nil || !s.mail.IsConfigured() {
		return
	}
	author, err := s.store.GetProfile(ctx, item.AuthorID)
	if err != nil || author.Email == "" {
		return
	}
	itemURL := "/knowledge/" + item.ID
	if err := s.mail.SendReviewNotification(author.Email, author.FullName, reviewerName, item.Title, rating, itemURL); err != nil {
		s.logger.Warn("review notification failed", zap.String("item", item.ID), zap.Error(err))
	}
}

// --- bookmarks ---

func (s *Service) Bookmark(ctx context.Context, userID, itemID string) error {
	if _, err := s.store.GetKnowledgeItem(ctx, itemID); err != nil {
		return err
	}
	return s.store.UpsertBookmark(ctx, userID, itemID)
}

func (s *Service) Unbookmark(ctx context.Context, userID, itemID string) error {
	return s.store.DeleteBookmark(ctx, userID, itemID)
}

func (s *Service) Bookmarks(ctx context.Context, userID string) ([]store.KnowledgeItem, error) {
	return s.store.ListBookmarkedItems(ctx, userID)
}

// --- share links ---

type CreateShareLinkInput struct {
	Password       string `json:"password" validate:"max=200"`
	ExpiresInHours int    `json:"expiresInHours" validate:"min=0,max=8760"`
}

// CreateShareLink mints an unauthenticated read link for the item. An empty
// password means the link is open; zero hours means it never expires.
func (s *Service) CreateShareLink(ctx context.Context, identity auth.Identity, itemID string, input CreateShareLinkInput) (store.ShareLink, error) {
	if err := s.validateInput(input); err != nil {
		return store.ShareLink{}, err
	}
	if _, err := s.store.GetKnowledgeItem(ctx, itemID); err != nil {
		return store.ShareLink{}, err
	}

	link := store.ShareLink{
		ID:              util.NewID("shr"),
		Token:           util.NewToken(),
		KnowledgeItemID: itemID,
		CreatedBy:       identity.UserID,
	}
	if input.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return store.ShareLink{}, fmt.Errorf("hash share password: %w", err)
		}
		hashed := string(hash)
		link.PasswordHash = &hashed
	}
	if input.ExpiresInHours > 0 {
		expiry := time.Now().Add(time.Duration(input.ExpiresInHours) * time.Hour)
		link.ExpiresAt = &expiry
	}
	if err := s.store.InsertShareLink(ctx, link); err != nil {
		return store.ShareLink{}, err
	}
	return link, nil
}

// ResolveShareLink redeems a share token, enforcing revocation, expiry and
// the optional password, and bumps the access counter.
func (s *Service) ResolveShareLink(ctx context.Context, token, password string) (store.KnowledgeItem, error) {
	link, err := s.store.GetShareLinkByToken(ctx, token)
	if err != nil {
		return store.KnowledgeItem{}, err
	}
	if link.RevokedAt != nil {
		return store.KnowledgeItem{}, domainError(http.StatusGone, "LINK_REVOKED", "This share link has been revoked", nil)
	}
	if link.ExpiresAt != nil && time.Now().After(*link.ExpiresAt) {
		return store.KnowledgeItem{}, domainError(http.StatusGone, "LINK_EXPIRED", "This share link has expired", nil)
	}
	if link.PasswordHash != nil {
		if password == "" {
			return store.KnowledgeItem{}, domainError(http.StatusUnauthorized, "PASSWORD_REQUIRED", "This share link requires a password", nil)
		}
		if err := bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(password)); err != nil {
			return store.KnowledgeItem{}, domainError(http.StatusUnauthorized, "INVALID_PASSWORD", "Incorrect share link password", nil)
		}
	}

	item, err := s.store.GetKnowledgeItem(ctx, link.KnowledgeItemID)
	if err != nil {
		return store.KnowledgeItem{}, err
	}
	if err := s.store.TouchShareLink(ctx, link.ID); err != nil {
		s.logger.Warn("share link touch failed", zap.String("link", link.ID), zap.Error(err))
	}
	return item, nil
}

func (s *Service) RevokeShareLink(ctx context.Context, identity auth.Identity, linkID string) error {
	revoked, err := s.store.RevokeShareLink(ctx, linkID, identity.UserID)
	if err != nil {
		return err
	}
	if !revoked {
		return sql.ErrNoRows
	}
	return nil
}

// --- export ---

func (s *Service) ExportKnowledgeItem(ctx context.Context, itemID string, format export.Format, includeReviews bool) (*export.Result, error) {
	if s.exports == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_DISABLED", "Export is not configured", nil)
	}
	result, err := s.exports.Export(ctx, export.Request{
		ItemID:         itemID,
		Format:         format,
		IncludeReviews: includeReviews,
	})
	switch {
	case err == nil:
		return result, nil
	case errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing):
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export dependency is not installed on this server", nil)
	default:
		return nil, err
	}
}

// --- search ---

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

// --- dashboard ---

func (s *Service) DashboardSummary(ctx context.Context) (store.SummaryCounts, error) {
	return s.store.Summary(ctx)
}

func (s *Service) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if s.presence != nil {
		if err := s.presence.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}
	return nil
}

// --- internal helpers ---

func (s *Service) pushEvent(userID, eventType string, data any) {
	if s.hub == nil {
		return
	}
	if err := s.hub.SendToUser(userID, eventType, data); err != nil {
		s.logger.Warn("event delivery failed", zap.String("user", userID), zap.String("event", eventType), zap.Error(err))
	}
}

func (s *Service) indexProfile(p store.Profile) {
	if s.search == nil {
		return
	}
	s.search.IndexProfile(search.ProfileRecord{
		ID:         p.ID,
		FullName:   p.FullName,
		Role:       p.Role,
		Team:       p.Team,
		Department: p.Department,
		Expertise:  p.Expertise,
	})
}

func (s *Service) indexKnowledge(item store.KnowledgeItem) {
	if s.search == nil {
		return
	}
	s.search.IndexKnowledge(search.KnowledgeRecord{
		ID:         item.ID,
		Title:      item.Title,
		Content:    item.Content,
		Tags:       item.Tags,
		AuthorName: item.AuthorName,
		Deprecated: item.IsDeprecated,
	})
}

func archiveContent(title, content string, tags []string) archive.Content {
	return archive.Content{Title: title, Content: content, Tags: tags}
}

func messagePayload(m store.Message) map[string]any {
	return map[string]any{
		"id":          m.ID,
		"senderId":    m.SenderID,
		"senderName":  m.SenderName,
		"recipientId": m.RecipientID,
		"content":     m.Content,
		"createdAt":   m.CreatedAt,
	}
}
