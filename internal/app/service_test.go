package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"synapse/api/internal/auth"
	"synapse/api/internal/store"
)

type fakeStore struct {
	getProfileFn            func(ctx context.Context, userID string) (store.Profile, error)
	ensureProfileFn         func(ctx context.Context, userID, fullName, email string) (store.Profile, error)
	updateProfileFn         func(ctx context.Context, item store.Profile) (store.Profile, error)
	setAvatarURLFn          func(ctx context.Context, userID, avatarURL string) error
	listProfilesFn          func(ctx context.Context, department string) ([]store.Profile, error)
	setAccessRoleFn         func(ctx context.Context, userID, accessRole string) error
	connectUsersFn          func(ctx context.Context, userID, targetID string) error
	disconnectUsersFn       func(ctx context.Context, userID, targetID string) error
	listConnectionsFn       func(ctx context.Context, userID string) ([]store.Profile, error)
	insertMessageFn         func(ctx context.Context, message store.Message) (store.Message, error)
	conversationMessagesFn  func(ctx context.Context, userID, peerID string) ([]store.Message, error)
	userConversationsFn     func(ctx context.Context, userID string) ([]store.ConversationSummary, error)
	insertKnowledgeItemFn   func(ctx context.Context, item store.KnowledgeItem, versionID string) error
	getKnowledgeItemFn      func(ctx context.Context, itemID string) (store.KnowledgeItem, error)
	listKnowledgeItemsFn    func(ctx context.Context) ([]store.KnowledgeItem, error)
	appendVersionFn         func(ctx context.Context, version store.KnowledgeVersion) (int, error)
	listVersionsFn          func(ctx context.Context, itemID string) ([]store.KnowledgeVersion, error)
	setFreshnessScoreFn     func(ctx context.Context, itemID string, score float64) error
	deprecateFn             func(ctx context.Context, itemID, reason string) (bool, error)
	insertPeerReviewFn      func(ctx context.Context, review store.PeerReview) error
	completePendingFn       func(ctx context.Context, itemID, reviewerID, status string, rating int, comments string) (bool, error)
	listPeerReviewsFn       func(ctx context.Context, itemID string) ([]store.PeerReview, error)
	upsertBookmarkFn        func(ctx context.Context, userID, itemID string) error
	deleteBookmarkFn        func(ctx context.Context, userID, itemID string) error
	listBookmarkedItemsFn   func(ctx context.Context, userID string) ([]store.KnowledgeItem, error)
	insertShareLinkFn       func(ctx context.Context, link store.ShareLink) error
	getShareLinkByTokenFn   func(ctx context.Context, token string) (store.ShareLink, error)
	touchShareLinkFn        func(ctx context.Context, linkID string) error
	revokeShareLinkFn       func(ctx context.Context, linkID, createdBy string) (bool, error)
	summaryFn               func(ctx context.Context) (store.SummaryCounts, error)
	pingFn                  func(ctx context.Context) error
	insertedMessages        []store.Message
	insertedReviews         []store.PeerReview
	freshnessWrites         map[string]float64
}

func (f *fakeStore) GetProfile(ctx context.Context, userID string) (store.Profile, error) {
	if f.getProfileFn != nil {
		return f.getProfileFn(ctx, userID)
	}
	return store.Profile{ID: userID, FullName: "Someone"}, nil
}

func (f *fakeStore) EnsureProfile(ctx context.Context, userID, fullName, email string) (store.Profile, error) {
	if f.ensureProfileFn != nil {
		return f.ensureProfileFn(ctx, userID, fullName, email)
	}
	return store.Profile{ID: userID, FullName: fullName, Email: email}, nil
}

func (f *fakeStore) UpdateProfile(ctx context.Context, item store.Profile) (store.Profile, error) {
	if f.updateProfileFn != nil {
		return f.updateProfileFn(ctx, item)
	}
	return item, nil
}

func (f *fakeStore) SetAvatarURL(ctx context.Context, userID, avatarURL string) error {
	if f.setAvatarURLFn != nil {
		return f.setAvatarURLFn(ctx, userID, avatarURL)
	}
	return nil
}

func (f *fakeStore) ListProfiles(ctx context.Context, department string) ([]store.Profile, error) {
	if f.listProfilesFn != nil {
		return f.listProfilesFn(ctx, department)
	}
	return []store.Profile{}, nil
}

func (f *fakeStore) SetAccessRole(ctx context.Context, userID, accessRole string) error {
	if f.setAccessRoleFn != nil {
		return f.setAccessRoleFn(ctx, userID, accessRole)
	}
	return nil
}

func (f *fakeStore) ConnectUsers(ctx context.Context, userID, targetID string) error {
	if f.connectUsersFn != nil {
		return f.connectUsersFn(ctx, userID, targetID)
	}
	return nil
}

func (f *fakeStore) DisconnectUsers(ctx context.Context, userID, targetID string) error {
	if f.disconnectUsersFn != nil {
		return f.disconnectUsersFn(ctx, userID, targetID)
	}
	return nil
}

func (f *fakeStore) ListConnections(ctx context.Context, userID string) ([]store.Profile, error) {
	if f.listConnectionsFn != nil {
		return f.listConnectionsFn(ctx, userID)
	}
	return []store.Profile{}, nil
}

func (f *fakeStore) InsertMessage(ctx context.Context, message store.Message) (store.Message, error) {
	if f.insertMessageFn != nil {
		return f.insertMessageFn(ctx, message)
	}
	message.CreatedAt = time.Now()
	f.insertedMessages = append(f.insertedMessages, message)
	return message, nil
}

func (f *fakeStore) ConversationMessages(ctx context.Context, userID, peerID string) ([]store.Message, error) {
	if f.conversationMessagesFn != nil {
		return f.conversationMessagesFn(ctx, userID, peerID)
	}
	return []store.Message{}, nil
}

func (f *fakeStore) UserConversations(ctx context.Context, userID string) ([]store.ConversationSummary, error) {
	if f.userConversationsFn != nil {
		return f.userConversationsFn(ctx, userID)
	}
	return []store.ConversationSummary{}, nil
}

func (f *fakeStore) InsertKnowledgeItem(ctx context.Context, item store.KnowledgeItem, versionID string) error {
	if f.insertKnowledgeItemFn != nil {
		return f.insertKnowledgeItemFn(ctx, item, versionID)
	}
	return nil
}

func (f *fakeStore) GetKnowledgeItem(ctx context.Context, itemID string) (store.KnowledgeItem, error) {
	if f.getKnowledgeItemFn != nil {
		return f.getKnowledgeItemFn(ctx, itemID)
	}
	return store.KnowledgeItem{ID: itemID, Title: "Item", AuthorID: "author"}, nil
}

func (f *fakeStore) ListKnowledgeItems(ctx context.Context) ([]store.KnowledgeItem, error) {
	if f.listKnowledgeItemsFn != nil {
		return f.listKnowledgeItemsFn(ctx)
	}
	return []store.KnowledgeItem{}, nil
}

func (f *fakeStore) AppendKnowledgeVersion(ctx context.Context, version store.KnowledgeVersion) (int, error) {
	if f.appendVersionFn != nil {
		return f.appendVersionFn(ctx, version)
	}
	return 2, nil
}

func (f *fakeStore) ListKnowledgeVersions(ctx context.Context, itemID string) ([]store.KnowledgeVersion, error) {
	if f.listVersionsFn != nil {
		return f.listVersionsFn(ctx, itemID)
	}
	return []store.KnowledgeVersion{}, nil
}

func (f *fakeStore) SetFreshnessScore(ctx context.Context, itemID string, score float64) error {
	if f.setFreshnessScoreFn != nil {
		return f.setFreshnessScoreFn(ctx, itemID, score)
	}
	if f.freshnessWrites == nil {
		f.freshnessWrites = map[string]float64{}
	}
	f.freshnessWrites[itemID] = score
	return nil
}

func (f *fakeStore) DeprecateKnowledgeItem(ctx context.Context, itemID, reason string) (bool, error) {
	if f.deprecateFn != nil {
		return f.deprecateFn(ctx, itemID, reason)
	}
	return true, nil
}

func (f *fakeStore) InsertPeerReview(ctx context.Context, review store.PeerReview) error {
	if f.insertPeerReviewFn != nil {
		return f.insertPeerReviewFn(ctx, review)
	}
	f.insertedReviews = append(f.insertedReviews, review)
	return nil
}

func (f *fakeStore) CompletePendingReview(ctx context.Context, itemID, reviewerID, status string, rating int, comments string) (bool, error) {
	if f.completePendingFn != nil {
		return f.completePendingFn(ctx, itemID, reviewerID, status, rating, comments)
	}
	return false, nil
}

func (f *fakeStore) ListPeerReviews(ctx context.Context, itemID string) ([]store.PeerReview, error) {
	if f.listPeerReviewsFn != nil {
		return f.listPeerReviewsFn(ctx, itemID)
	}
	return []store.PeerReview{}, nil
}

func (f *fakeStore) UpsertBookmark(ctx context.Context, userID, itemID string) error {
	if f.upsertBookmarkFn != nil {
		return f.upsertBookmarkFn(ctx, userID, itemID)
	}
	return nil
}

func (f *fakeStore) DeleteBookmark(ctx context.Context, userID, itemID string) error {
	if f.deleteBookmarkFn != nil {
		return f.deleteBookmarkFn(ctx, userID, itemID)
	}
	return nil
}

func (f *fakeStore) ListBookmarkedItems(ctx context.Context, userID string) ([]store.KnowledgeItem, error) {
	if f.listBookmarkedItemsFn != nil {
		return f.listBookmarkedItemsFn(ctx, userID)
	}
	return []store.KnowledgeItem{}, nil
}

func (f *fakeStore) InsertShareLink(ctx context.Context, link store.ShareLink) error {
	if f.insertShareLinkFn != nil {
		return f.insertShareLinkFn(ctx, link)
	}
	return nil
}

func (f *fakeStore) GetShareLinkByToken(ctx context.Context, token string) (store.ShareLink, error) {
	if f.getShareLinkByTokenFn != nil {
		return f.getShareLinkByTokenFn(ctx, token)
	}
	return store.ShareLink{}, sql.ErrNoRows
}

func (f *fakeStore) TouchShareLink(ctx context.Context, linkID string) error {
	if f.touchShareLinkFn != nil {
		return f.touchShareLinkFn(ctx, linkID)
	}
	return nil
}

func (f *fakeStore) RevokeShareLink(ctx context.Context, linkID, createdBy string) (bool, error) {
	if f.revokeShareLinkFn != nil {
		return f.revokeShareLinkFn(ctx, linkID, createdBy)
	}
	return true, nil
}

func (f *fakeStore) Summary(ctx context.Context) (store.SummaryCounts, error) {
	if f.summaryFn != nil {
		return f.summaryFn(ctx)
	}
	return store.SummaryCounts{}, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakePresence struct {
	incrementFn func(ctx context.Context, recipientID, senderID string) error
	countFn     func(ctx context.Context, recipientID, senderID string) (int, error)
	resetFn     func(ctx context.Context, recipientID, senderID string) error
	onlineFn    func(ctx context.Context, userID string) (bool, error)
	pingFn      func(ctx context.Context) error
	increments  [][2]string
	resets      [][2]string
}

func (f *fakePresence) IncrementUnread(ctx context.Context, recipientID, senderID string) error {
	if f.incrementFn != nil {
		return f.incrementFn(ctx, recipientID, senderID)
	}
	f.increments = append(f.increments, [2]string{recipientID, senderID})
	return nil
}

func (f *fakePresence) UnreadCount(ctx context.Context, recipientID, senderID string) (int, error) {
	if f.countFn != nil {
		return f.countFn(ctx, recipientID, senderID)
	}
	return 0, nil
}

func (f *fakePresence) ResetUnread(ctx context.Context, recipientID, senderID string) error {
	if f.resetFn != nil {
		return f.resetFn(ctx, recipientID, senderID)
	}
	f.resets = append(f.resets, [2]string{recipientID, senderID})
	return nil
}

func (f *fakePresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	if f.onlineFn != nil {
		return f.onlineFn(ctx, userID)
	}
	return false, nil
}

func (f *fakePresence) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

type fakeAvatars struct {
	uploadFn  func(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error)
	fetchFn   func(ctx context.Context, key string) (io.ReadCloser, string, error)
	presignFn func(ctx context.Context, key string, expiry time.Duration) (string, error)
	presigns  []string
}

func (f *fakeAvatars) Upload(ctx context.Context, userID, contentType string, body io.Reader, size int64) (string, error) {
	if f.uploadFn != nil {
		return f.uploadFn(ctx, userID, contentType, body, size)
	}
	return "avatars/" + userID + ".png", nil
}

func (f *fakeAvatars) Fetch(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if f.fetchFn != nil {
		return f.fetchFn(ctx, key)
	}
	return io.NopCloser(strings.NewReader("img")), "image/png", nil
}

func (f *fakeAvatars) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if f.presignFn != nil {
		return f.presignFn(ctx, key, expiry)
	}
	f.presigns = append(f.presigns, key)
	return "https://objects.local/" + key + "?sig=abc", nil
}

type sentEvent struct {
	userID    string
	eventType string
	data      any
}

type fakeHub struct {
	sendFn func(userID, eventType string, data any) error
	sent   []sentEvent
}

func (f *fakeHub) SendToUser(userID, eventType string, data any) error {
	if f.sendFn != nil {
		return f.sendFn(userID, eventType, data)
	}
	f.sent = append(f.sent, sentEvent{userID: userID, eventType: eventType, data: data})
	return nil
}

func newTestService(st *fakeStore) *Service {
	return NewService(ServiceDeps{
		Store:        st,
		SocketSecret: []byte("test-secret"),
		SocketTTL:    time.Minute,
	})
}

func domainStatus(t *testing.T, err error) int {
	t.Helper()
	var domain *DomainError
	if !errors.As(err, &domain) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	return domain.Status
}

func TestSendMessageRejectsEmptyContent(t *testing.T) {
	st := &fakeStore{
		insertMessageFn: func(context.Context, store.Message) (store.Message, error) {
			t.Fatal("message should not be persisted")
			return store.Message{}, nil
		},
	}
	svc := newTestService(st)

	_, err := svc.SendMessage(context.Background(), auth.Identity{UserID: "u1", Name: "Alice"}, SendMessageInput{
		RecipientID: "u2",
		Content:     "   \n\t  ",
	})
	if status := domainStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestSendMessageReturnsCanonicalRow(t *testing.T) {
	stored := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeStore{
		insertMessageFn: func(_ context.Context, m store.Message) (store.Message, error) {
			m.CreatedAt = stored
			return m, nil
		},
	}
	presence := &fakePresence{}
	hub := &fakeHub{}
	svc := NewService(ServiceDeps{Store: st, Presence: presence, Hub: hub, SocketSecret: []byte("x")})

	message, err := svc.SendMessage(context.Background(), auth.Identity{UserID: "u1", Name: "Alice"}, SendMessageInput{
		RecipientID: "u2",
		Content:     "  hello there  ",
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if message.Content != "hello there" {
		t.Fatalf("content = %q, want trimmed", message.Content)
	}
	if !message.CreatedAt.Equal(stored) {
		t.Fatalf("createdAt = %v, want stored timestamp", message.CreatedAt)
	}
	if message.ID == "" || message.SenderName != "Alice" {
		t.Fatalf("unexpected message %+v", message)
	}
	if len(presence.increments) != 1 || presence.increments[0] != [2]string{"u2", "u1"} {
		t.Fatalf("unread increments = %v", presence.increments)
	}
	if len(hub.sent) != 2 || hub.sent[0].userID != "u2" || hub.sent[1].userID != "u1" {
		t.Fatalf("events = %+v", hub.sent)
	}
	for _, event := range hub.sent {
		if event.eventType != "newMessage" {
			t.Fatalf("event type = %q, want newMessage", event.eventType)
		}
	}
}

func TestConnectRejectsSelf(t *testing.T) {
	svc := newTestService(&fakeStore{})
	err := svc.Connect(context.Background(), auth.Identity{UserID: "u1"}, ConnectInput{TargetID: "u1"})
	if status := domainStatus(t, err); status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", status)
	}
}

func TestConnectNotifiesTarget(t *testing.T) {
	hub := &fakeHub{}
	st := &fakeStore{}
	svc := NewService(ServiceDeps{Store: st, Hub: hub, SocketSecret: []byte("x")})

	if err := svc.Connect(context.Background(), auth.Identity{UserID: "u1", Name: "Alice"}, ConnectInput{TargetID: "u2"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if len(hub.sent) != 1 || hub.sent[0].userID != "u2" || hub.sent[0].eventType != "connectionRequest" {
		t.Fatalf("events = %+v", hub.sent)
	}
}

func TestConnectUnknownTargetIs404(t *testing.T) {
	st := &fakeStore{
		getProfileFn: func(context.Context, string) (store.Profile, error) {
			return store.Profile{}, sql.ErrNoRows
		},
	}
	svc := newTestService(st)
	err := svc.Connect(context.Background(), auth.Identity{UserID: "u1"}, ConnectInput{TargetID: "ghost"})
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("err = %v, want sql.ErrNoRows", err)
	}
}

func TestAddReviewRejectsOutOfRangeRating(t *testing.T) {
	svc := newTestService(&fakeStore{})
	for _, rating := range []int{0, -3, 11, 100} {
		_, err := svc.AddReview(context.Background(), auth.Identity{UserID: "u1"}, "ki_1", CreateReviewInput{Rating: rating})
		if status := domainStatus(t, err); status != http.StatusUnprocessableEntity {
			t.Fatalf("rating %d: status = %d, want 422", rating, status)
		}
	}
}

func TestAddReviewDefaultsStatusApproved(t *testing.T) {
	st := &fakeStore{}
	svc := newTestService(st)

	review, err := svc.AddReview(context.Background(), auth.Identity{UserID: "u1", Name: "Bob"}, "ki_1", CreateReviewInput{Rating: 8})
	if err != nil {
		t.Fatalf("AddReview: %v", err)
	}
	if review.Status != "approved" {
		t.Fatalf("status = %q, want approved", review.Status)
	}
	if len(st.insertedReviews) != 1 || st.insertedReviews[0].Rating != 8 {
		t.Fatalf("inserted reviews = %+v", st.insertedReviews)
	}
	if len(st.freshnessWrites) != 0 {
		t.Fatalf("review submission must not touch freshness, wrote %v", st.freshnessWrites)
	}
}

func TestAddReviewRejectsUnknownStatus(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.AddReview(context.Background(), auth.Identity{UserID: "u1"}, "ki_1", CreateReviewInput{Status: "meh", Rating: 5})
	if status := domainStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestAddReviewCompletesPendingRequest(t *testing.T) {
	st := &fakeStore{
		completePendingFn: func(_ context.Context, itemID, reviewerID, status string, rating int, _ string) (bool, error) {
			if itemID != "ki_1" || reviewerID != "u1" || status != "needs_changes" || rating != 7 {
				t.Fatalf("unexpected completion args: %s %s %s %d", itemID, reviewerID, status, rating)
			}
			return true, nil
		},
		insertPeerReviewFn: func(context.Context, store.PeerReview) error {
			t.Fatal("should complete the pending row, not insert a new one")
			return nil
		},
	}
	svc := newTestService(st)

	if _, err := svc.AddReview(context.Background(), auth.Identity{UserID: "u1"}, "ki_1", CreateReviewInput{Status: "needs_changes", Rating: 7}); err != nil {
		t.Fatalf("AddReview: %v", err)
	}
}

func TestSetFreshnessRequiresAdmin(t *testing.T) {
	st := &fakeStore{
		getProfileFn: func(_ context.Context, userID string) (store.Profile, error) {
			role := "member"
			if userID == "root" {
				role = "admin"
			}
			return store.Profile{ID: userID, AccessRole: role}, nil
		},
	}
	svc := newTestService(st)

	err := svc.SetFreshness(context.Background(), auth.Identity{UserID: "u1"}, "ki_1", SetFreshnessInput{Score: 40})
	if status := domainStatus(t, err); status != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", status)
	}

	if err := svc.SetFreshness(context.Background(), auth.Identity{UserID: "root"}, "ki_1", SetFreshnessInput{Score: 40}); err != nil {
		t.Fatalf("SetFreshness as admin: %v", err)
	}
	if got := st.freshnessWrites["ki_1"]; got != 40 {
		t.Fatalf("freshness = %v, want 40", got)
	}

	err = svc.SetFreshness(context.Background(), auth.Identity{UserID: "root"}, "ki_1", SetFreshnessInput{Score: 250})
	if status := domainStatus(t, err); status != http.StatusBadRequest {
		t.Fatalf("out-of-range score: status = %d, want 400", status)
	}
}

func TestFindExpertsMatchesCaseInsensitive(t *testing.T) {
	profiles := []store.Profile{
		{ID: "u1", FullName: "Alice", Expertise: []string{"PostgreSQL", "Go"}},
		{ID: "u2", FullName: "Bob", Role: "SQL tuning specialist"},
		{ID: "u3", FullName: "Carla", Expertise: []string{"Kubernetes"}},
	}
	st := &fakeStore{
		listProfilesFn: func(context.Context, string) ([]store.Profile, error) {
			return profiles, nil
		},
	}
	svc := newTestService(st)

	experts, err := svc.FindExperts(context.Background(), "SQL", "")
	if err != nil {
		t.Fatalf("FindExperts: %v", err)
	}
	if len(experts) != 2 {
		t.Fatalf("matched %d experts, want 2", len(experts))
	}
	if experts[0].ID != "u1" || experts[1].ID != "u2" {
		t.Fatalf("matched ids = %s, %s", experts[0].ID, experts[1].ID)
	}

	all, err := svc.FindExperts(context.Background(), "", "")
	if err != nil {
		t.Fatalf("FindExperts (empty): %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("empty topic matched %d, want all 3", len(all))
	}
}

func TestAvatarURLPresignsStoredKey(t *testing.T) {
	st := &fakeStore{
		getProfileFn: func(_ context.Context, userID string) (store.Profile, error) {
			if userID == "bare" {
				return store.Profile{ID: userID}, nil
			}
			return store.Profile{ID: userID, AvatarURL: "avatars/" + userID + ".png"}, nil
		},
	}
	avatars := &fakeAvatars{}
	svc := NewService(ServiceDeps{Store: st, Avatars: avatars, SocketSecret: []byte("x")})

	url, err := svc.AvatarURL(context.Background(), "u1")
	if err != nil {
		t.Fatalf("AvatarURL: %v", err)
	}
	if url != "https://objects.local/avatars/u1.png?sig=abc" {
		t.Fatalf("url = %q", url)
	}
	if len(avatars.presigns) != 1 || avatars.presigns[0] != "avatars/u1.png" {
		t.Fatalf("presigned keys = %v", avatars.presigns)
	}

	if _, err := svc.AvatarURL(context.Background(), "bare"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("no avatar: err = %v, want sql.ErrNoRows", err)
	}

	disabled := newTestService(st)
	_, err = disabled.AvatarURL(context.Background(), "u1")
	if status := domainStatus(t, err); status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", status)
	}
}

func TestFindExpertsForExcludesCallerAndConnections(t *testing.T) {
	st := &fakeStore{
		listProfilesFn: func(context.Context, string) ([]store.Profile, error) {
			return []store.Profile{
				{ID: "me", FullName: "Me", Expertise: []string{"Go"}},
				{ID: "friend", FullName: "Friend", Expertise: []string{"Go"}},
				{ID: "new", FullName: "Newcomer", Team: "Go platform"},
			}, nil
		},
		listConnectionsFn: func(_ context.Context, userID string) ([]store.Profile, error) {
			if userID != "me" {
				t.Fatalf("connections looked up for %q", userID)
			}
			return []store.Profile{{ID: "friend"}}, nil
		},
	}
	svc := newTestService(st)

	experts, err := svc.FindExpertsFor(context.Background(), auth.Identity{UserID: "me"}, "go", "")
	if err != nil {
		t.Fatalf("FindExpertsFor: %v", err)
	}
	if len(experts) != 1 || experts[0].ID != "new" {
		t.Fatalf("experts = %+v, want only the unconnected newcomer", experts)
	}
}

func TestDeprecateRequiresAuthorOrModerator(t *testing.T) {
	st := &fakeStore{
		getKnowledgeItemFn: func(_ context.Context, itemID string) (store.KnowledgeItem, error) {
			return store.KnowledgeItem{ID: itemID, AuthorID: "author"}, nil
		},
		getProfileFn: func(_ context.Context, userID string) (store.Profile, error) {
			role := "member"
			if userID == "mod" {
				role = "moderator"
			}
			return store.Profile{ID: userID, AccessRole: role}, nil
		},
	}
	svc := newTestService(st)

	err := svc.DeprecateKnowledgeItem(context.Background(), auth.Identity{UserID: "stranger"}, "ki_1", DeprecateInput{Reason: "old"})
	if status := domainStatus(t, err); status != http.StatusForbidden {
		t.Fatalf("stranger: status = %d, want 403", status)
	}
	if err := svc.DeprecateKnowledgeItem(context.Background(), auth.Identity{UserID: "author"}, "ki_1", DeprecateInput{}); err != nil {
		t.Fatalf("author: %v", err)
	}
	if err := svc.DeprecateKnowledgeItem(context.Background(), auth.Identity{UserID: "mod"}, "ki_1", DeprecateInput{}); err != nil {
		t.Fatalf("moderator: %v", err)
	}
}

func TestResolveShareLinkEnforcesPasswordAndExpiry(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	hashed := string(hash)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	now := time.Now()

	links := map[string]store.ShareLink{
		"open":      {ID: "shr_1", KnowledgeItemID: "ki_1"},
		"locked":    {ID: "shr_2", KnowledgeItemID: "ki_1", PasswordHash: &hashed},
		"expired":   {ID: "shr_3", KnowledgeItemID: "ki_1", ExpiresAt: &past},
		"unexpired": {ID: "shr_4", KnowledgeItemID: "ki_1", ExpiresAt: &future},
		"revoked":   {ID: "shr_5", KnowledgeItemID: "ki_1", RevokedAt: &now},
	}
	st := &fakeStore{
		getShareLinkByTokenFn: func(_ context.Context, token string) (store.ShareLink, error) {
			link, ok := links[token]
			if !ok {
				return store.ShareLink{}, sql.ErrNoRows
			}
			return link, nil
		},
	}
	svc := newTestService(st)
	ctx := context.Background()

	if _, err := svc.ResolveShareLink(ctx, "open", ""); err != nil {
		t.Fatalf("open link: %v", err)
	}
	if _, err := svc.ResolveShareLink(ctx, "unexpired", ""); err != nil {
		t.Fatalf("unexpired link: %v", err)
	}
	if _, err := svc.ResolveShareLink(ctx, "missing", ""); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("missing link: err = %v", err)
	}
	resolve := func(token, password string) error {
		_, err := svc.ResolveShareLink(ctx, token, password)
		return err
	}
	if status := domainStatus(t, resolve("locked", "")); status != http.StatusUnauthorized {
		t.Fatalf("no password: status = %d, want 401", status)
	}
	if status := domainStatus(t, resolve("locked", "wrong")); status != http.StatusUnauthorized {
		t.Fatalf("wrong password: status = %d, want 401", status)
	}
	if err := resolve("locked", "s3cret"); err != nil {
		t.Fatalf("correct password: %v", err)
	}
	if status := domainStatus(t, resolve("expired", "")); status != http.StatusGone {
		t.Fatalf("expired: status = %d, want 410", status)
	}
	if status := domainStatus(t, resolve("revoked", "")); status != http.StatusGone {
		t.Fatalf("revoked: status = %d, want 410", status)
	}
}

func TestConversationsDecoratesUnreadCounts(t *testing.T) {
	st := &fakeStore{
		userConversationsFn: func(context.Context, string) ([]store.ConversationSummary, error) {
			return []store.ConversationSummary{
				{PeerID: "u2", PeerName: "Bob", LastMessage: "hey"},
				{PeerID: "u3", PeerName: "Carla", LastMessage: "ping"},
			}, nil
		},
	}
	presence := &fakePresence{
		countFn: func(_ context.Context, _, senderID string) (int, error) {
			if senderID == "u2" {
				return 3, nil
			}
			return 0, nil
		},
	}
	svc := NewService(ServiceDeps{Store: st, Presence: presence, SocketSecret: []byte("x")})

	summaries, err := svc.Conversations(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Conversations: %v", err)
	}
	if summaries[0].UnreadCount != 3 || summaries[1].UnreadCount != 0 {
		t.Fatalf("unread counts = %d, %d", summaries[0].UnreadCount, summaries[1].UnreadCount)
	}
}

func TestConversationWithResetsUnread(t *testing.T) {
	presence := &fakePresence{}
	svc := NewService(ServiceDeps{Store: &fakeStore{}, Presence: presence, SocketSecret: []byte("x")})

	if _, err := svc.ConversationWith(context.Background(), "u1", "u2"); err != nil {
		t.Fatalf("ConversationWith: %v", err)
	}
	if len(presence.resets) != 1 || presence.resets[0] != [2]string{"u1", "u2"} {
		t.Fatalf("resets = %v", presence.resets)
	}
}

func TestUpdateKnowledgeItemAppendsVersion(t *testing.T) {
	var appended store.KnowledgeVersion
	st := &fakeStore{
		getKnowledgeItemFn: func(_ context.Context, itemID string) (store.KnowledgeItem, error) {
			return store.KnowledgeItem{ID: itemID, Title: "Old", AuthorID: "author", Version: 1}, nil
		},
		appendVersionFn: func(_ context.Context, version store.KnowledgeVersion) (int, error) {
			appended = version
			return 2, nil
		},
	}
	svc := newTestService(st)

	_, err := svc.UpdateKnowledgeItem(context.Background(), auth.Identity{UserID: "editor", Name: "Eve"}, "ki_1", UpdateKnowledgeInput{
		Title:   "New title",
		Content: "New content",
	})
	if err != nil {
		t.Fatalf("UpdateKnowledgeItem: %v", err)
	}
	if appended.Title != "New title" || appended.ChangedBy != "Eve" {
		t.Fatalf("appended version = %+v", appended)
	}
	if appended.ChangeSummary != "Updated content" {
		t.Fatalf("change summary = %q, want default", appended.ChangeSummary)
	}
}

func TestNegotiateIssuesRedeemableToken(t *testing.T) {
	svc := newTestService(&fakeStore{})
	result, err := svc.Negotiate(auth.Identity{UserID: "u1", Name: "Alice"})
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	if result.URL != "/ws" || result.AccessToken == "" || result.ExpiresIn != 60 {
		t.Fatalf("unexpected result %+v", result)
	}
	identity, err := auth.ParseSocketToken([]byte("test-secret"), result.AccessToken)
	if err != nil {
		t.Fatalf("parse socket token: %v", err)
	}
	if identity.UserID != "u1" {
		t.Fatalf("token subject = %q", identity.UserID)
	}
}
