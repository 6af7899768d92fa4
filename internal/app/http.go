package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"synapse/api/internal/assistant"
	"synapse/api/internal/auth"
	"synapse/api/internal/export"
	"synapse/api/internal/search"
	"synapse/api/internal/store"
)

type contextKey string

const identityKey contextKey = "identity"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synapse_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "synapse_http_request_duration_seconds",
		Help:    "HTTP request latency by route and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
)

// HandlerDeps wires the HTTP layer.
type HandlerDeps struct {
	Service   *Service
	Assistant *assistant.Service
	Socket    http.Handler // websocket upgrade endpoint, may be nil
	Verifier  auth.Verifier

	// Local token issuing, enabled when AuthMode is "local".
	AuthMode  string
	JWTSecret []byte

	CORSOrigin string
	Logger     *zap.Logger
}

// NewHandler builds the full route tree.
func NewHandler(deps HandlerDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handler{
		service:   deps.Service,
		assistant: deps.Assistant,
		verifier:  deps.Verifier,
		authMode:  deps.AuthMode,
		jwtSecret: deps.JWTSecret,
		logger:    deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(h.logRequests)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{deps.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "x-ms-client-principal-id", "x-ms-client-principal-name"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(h.measure)

	r.Get("/api/health", h.health)
	r.Get("/api/ready", h.ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/share/{token}", h.resolveShareLink)
	if deps.Socket != nil {
		r.Handle("/ws", deps.Socket)
	}
	if h.authMode == "local" {
		r.Post("/api/auth/token", h.issueLocalToken)
	}

	r.Group(func(r chi.Router) {
		r.Use(h.requireIdentity)

		r.Get("/api/profiles/me", h.myProfile)
		r.Put("/api/profiles/me", h.updateMyProfile)
		r.Post("/api/profiles/me/avatar", h.uploadAvatar)
		r.Get("/api/profiles", h.listProfiles)
		r.Get("/api/profiles/{userID}", h.getProfile)
		r.Get("/api/profiles/{userID}/avatar", h.getAvatar)
		r.Get("/api/profiles/{userID}/avatar-url", h.getAvatarURL)
		r.Put("/api/profiles/{userID}/access-role", h.setAccessRole)
		r.Get("/api/experts", h.findExperts)

		r.Post("/api/connections", h.connect)
		r.Get("/api/connections", h.listConnections)
		r.Delete("/api/connections/{userID}", h.disconnect)

		r.Get("/api/conversations", h.listConversations)
		r.Get("/api/conversations/{peerID}/messages", h.conversationMessages)
		r.Post("/api/messages", h.sendMessage)
		r.Post("/api/negotiate", h.negotiate)

		r.Post("/api/knowledge", h.createKnowledge)
		r.Get("/api/knowledge", h.listKnowledge)
		r.Get("/api/knowledge/{itemID}", h.getKnowledge)
		r.Post("/api/knowledge/{itemID}/versions", h.updateKnowledge)
		r.Get("/api/knowledge/{itemID}/versions", h.listVersions)
		r.Put("/api/knowledge/{itemID}/freshness", h.setFreshness)
		r.Get("/api/knowledge/{itemID}/history", h.archiveHistory)
		r.Post("/api/knowledge/{itemID}/deprecate", h.deprecateKnowledge)
		r.Get("/api/knowledge/{itemID}/reviews", h.listReviews)
		r.Post("/api/knowledge/{itemID}/reviews", h.addReview)
		r.Post("/api/knowledge/{itemID}/review-requests", h.requestReview)
		r.Put("/api/knowledge/{itemID}/bookmark", h.addBookmark)
		r.Delete("/api/knowledge/{itemID}/bookmark", h.removeBookmark)
		r.Get("/api/bookmarks", h.listBookmarks)
		r.Post("/api/knowledge/{itemID}/share", h.createShareLink)
		r.Delete("/api/share-links/{linkID}", h.revokeShareLink)
		r.Get("/api/knowledge/{itemID}/export/{format}", h.exportKnowledge)

		r.Get("/api/search", h.searchAll)
		r.Post("/api/assistant/query", h.assistantQuery)
		r.Get("/api/dashboard/summary", h.dashboardSummary)
	})

	return r
}

type handler struct {
	service   *Service
	assistant *assistant.Service
	verifier  auth.Verifier
	authMode  string
	jwtSecret []byte
	logger    *zap.Logger
}

// --- middleware ---

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}

func (h *handler) measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// requireIdentity resolves the caller from a bearer token or, failing that,
// the forwarded principal headers set by an authenticating proxy.
func (h *handler) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.resolveIdentity(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized - Missing user ID", nil)
			return
		}
		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handler) resolveIdentity(r *http.Request) (auth.Identity, error) {
	if token := bearerToken(r); token != "" && h.verifier != nil {
		return h.verifier.Verify(r.Context(), token)
	}
	if principal := r.Header.Get("x-ms-client-principal-id"); principal != "" {
		return auth.Identity{
			UserID: principal,
			Name:   r.Header.Get("x-ms-client-principal-name"),
		}, nil
	}
	return auth.Identity{}, auth.ErrInvalidToken
}

func identityFrom(r *http.Request) auth.Identity {
	identity, _ := r.Context().Value(identityKey).(auth.Identity)
	return identity
}

// --- health ---

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) ready(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "NOT_READY", "Dependency unreachable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- auth (local mode only) ---

type localTokenRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

func (h *handler) issueLocalToken(w http.ResponseWriter, r *http.Request) {
	var req localTokenRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "userId is required", nil)
		return
	}
	token, err := auth.IssueLocalToken(h.jwtSecret, auth.Identity{UserID: req.UserID, Name: req.Name, Email: req.Email}, 24*time.Hour)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// --- profiles ---

func (h *handler) myProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.MyProfile(r.Context(), identityFrom(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profilePayload(profile))
}

func (h *handler) updateMyProfile(w http.ResponseWriter, r *http.Request) {
	var input UpdateProfileInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	profile, err := h.service.UpdateMyProfile(r.Context(), identityFrom(r), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profilePayload(profile))
}

func (h *handler) listProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.service.ListProfiles(r.Context(), r.URL.Query().Get("department"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profilePayloads(profiles))
}

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.Profile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profilePayload(profile))
}

func (h *handler) setAccessRole(w http.ResponseWriter, r *http.Request) {
	var input SetAccessRoleInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if err := h.service.SetAccessRole(r.Context(), identityFrom(r), chi.URLParam(r, "userID"), input); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *handler) findExperts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	experts, err := h.service.FindExpertsFor(r.Context(), identityFrom(r), q.Get("q"), q.Get("department"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profilePayloads(experts))
}

const maxAvatarBody = 5 << 20

func (h *handler) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r)
	body := http.MaxBytesReader(w, r.Body, maxAvatarBody)
	defer body.Close()

	key, err := h.service.UploadAvatar(r.Context(), identity.UserID, r.Header.Get("Content-Type"), body, r.ContentLength)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"key": key,
		"url": "/api/profiles/" + identity.UserID + "/avatar",
	})
}

func (h *handler) getAvatar(w http.ResponseWriter, r *http.Request) {
	reader, contentType, err := h.service.FetchAvatar(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	defer reader.Close()
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func (h *handler) getAvatarURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.service.AvatarURL(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// --- connections ---

func (h *handler) connect(w http.ResponseWriter, r *http.Request) {
	var input ConnectInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if err := h.service.Connect(r.Context(), identityFrom(r), input); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

func (h *handler) listConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := h.service.Connections(r.Context(), identityFrom(r).UserID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, profilePayloads(connections))
}

func (h *handler) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Disconnect(r.Context(), identityFrom(r), chi.URLParam(r, "userID")); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "disconnected"})
}

// --- messaging ---

func (h *handler) listConversations(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.Conversations(r.Context(), identityFrom(r).UserID)
	if err != nil {
		h.fail(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(summaries))
	for _, c := range summaries {
		payload = append(payload, map[string]any{
			"peerId":          c.PeerID,
			"peerName":        c.PeerName,
			"lastMessage":     c.LastMessage,
			"lastMessageTime": c.LastMessageTime,
			"unreadCount":     c.UnreadCount,
			"online":          h.service.PeerOnline(r.Context(), c.PeerID),
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *handler) conversationMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.service.ConversationWith(r.Context(), identityFrom(r).UserID, chi.URLParam(r, "peerID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		payload = append(payload, messagePayload(m))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	var input SendMessageInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	message, err := h.service.SendMessage(r.Context(), identityFrom(r), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, messagePayload(message))
}

func (h *handler) negotiate(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Negotiate(identityFrom(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- knowledge ---

func (h *handler) createKnowledge(w http.ResponseWriter, r *http.Request) {
	var input CreateKnowledgeInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	item, err := h.service.CreateKnowledgeItem(r.Context(), identityFrom(r), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, knowledgePayload(item))
}

func (h *handler) listKnowledge(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.KnowledgeItems(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, knowledgePayloads(items))
}

func (h *handler) getKnowledge(w http.ResponseWriter, r *http.Request) {
	detail, err := h.service.KnowledgeItem(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	payload := knowledgePayload(detail.Item)
	payload["averageRating"] = detail.AverageRating
	payload["reviews"] = reviewPayloads(detail.Reviews)
	writeJSON(w, http.StatusOK, payload)
}

func (h *handler) updateKnowledge(w http.ResponseWriter, r *http.Request) {
	var input UpdateKnowledgeInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	item, err := h.service.UpdateKnowledgeItem(r.Context(), identityFrom(r), chi.URLParam(r, "itemID"), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, knowledgePayload(item))
}

func (h *handler) setFreshness(w http.ResponseWriter, r *http.Request) {
	var input SetFreshnessInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if err := h.service.SetFreshness(r.Context(), identityFrom(r), chi.URLParam(r, "itemID"), input); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *handler) listVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.service.KnowledgeVersions(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(versions))
	for i, v := range versions {
		payload = append(payload, map[string]any{
			"id":            v.ID,
			"isCurrent":     i == 0,
			"versionNumber": v.VersionNumber,
			"title":         v.Title,
			"content":       v.Content,
			"changedBy":     v.ChangedBy,
			"changeSummary": v.ChangeSummary,
			"commitHash":    v.CommitHash,
			"createdAt":     v.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *handler) archiveHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	commits, err := h.service.ArchiveHistory(r.Context(), chi.URLParam(r, "itemID"), limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(commits))
	for _, c := range commits {
		payload = append(payload, map[string]any{
			"hash":      c.Hash,
			"message":   c.Message,
			"author":    c.Author,
			"createdAt": c.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *handler) deprecateKnowledge(w http.ResponseWriter, r *http.Request) {
	var input DeprecateInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if err := h.service.DeprecateKnowledgeItem(r.Context(), identityFrom(r), chi.URLParam(r, "itemID"), input); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deprecated"})
}

// --- reviews ---

func (h *handler) listReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.service.Reviews(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviewPayloads(reviews))
}

func (h *handler) addReview(w http.ResponseWriter, r *http.Request) {
	var input CreateReviewInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	review, err := h.service.AddReview(r.Context(), identityFrom(r), chi.URLParam(r, "itemID"), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, reviewPayload(review))
}

func (h *handler) requestReview(w http.ResponseWriter, r *http.Request) {
	var input RequestReviewInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if err := h.service.RequestReview(r.Context(), identityFrom(r), chi.URLParam(r, "itemID"), input); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "requested"})
}

// --- bookmarks ---

func (h *handler) addBookmark(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Bookmark(r.Context(), identityFrom(r).UserID, chi.URLParam(r, "itemID")); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "bookmarked"})
}

func (h *handler) removeBookmark(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unbookmark(r.Context(), identityFrom(r).UserID, chi.URLParam(r, "itemID")); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *handler) listBookmarks(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Bookmarks(r.Context(), identityFrom(r).UserID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, knowledgePayloads(items))
}

// --- share links ---

func (h *handler) createShareLink(w http.ResponseWriter, r *http.Request) {
	var input CreateShareLinkInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	link, err := h.service.CreateShareLink(r.Context(), identityFrom(r), chi.URLParam(r, "itemID"), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          link.ID,
		"token":       link.Token,
		"url":         "/share/" + link.Token,
		"itemId":      link.KnowledgeItemID,
		"expiresAt":   link.ExpiresAt,
		"hasPassword": link.PasswordHash != nil,
	})
}

func (h *handler) resolveShareLink(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.ResolveShareLink(r.Context(), chi.URLParam(r, "token"), r.URL.Query().Get("password"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, knowledgePayload(item))
}

func (h *handler) revokeShareLink(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RevokeShareLink(r.Context(), identityFrom(r), chi.URLParam(r, "linkID")); err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// --- export ---

func (h *handler) exportKnowledge(w http.ResponseWriter, r *http.Request) {
	format := export.Format(chi.URLParam(r, "format"))
	if format != export.FormatPDF && format != export.FormatDOCX {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "format must be pdf or docx", nil)
		return
	}
	includeReviews := r.URL.Query().Get("includeReviews") == "true"

	result, err := h.service.ExportKnowledgeItem(r.Context(), chi.URLParam(r, "itemID"), format, includeReviews)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// --- search ---

func (h *handler) searchAll(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(q.Get("offset"))
	if offset < 0 {
		offset = 0
	}
	response := h.service.Search(search.Query{
		Text:             q.Get("q"),
		FilterType:       search.ResultType(q.Get("type")),
		FilterDepartment: q.Get("department"),
		Limit:            limit,
		Offset:           offset,
	})
	writeJSON(w, http.StatusOK, response)
}

// --- assistant ---

type assistantQueryInput struct {
	Text string `json:"text"`
}

func (h *handler) assistantQuery(w http.ResponseWriter, r *http.Request) {
	var input assistantQueryInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	if strings.TrimSpace(input.Text) == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "text is required", nil)
		return
	}
	reply := h.assistant.Handle(r.Context(), input.Text)

	payload := map[string]any{
		"intent": string(reply.Intent),
		"reply":  reply.Message,
	}
	if reply.Experts != nil {
		payload["experts"] = profilePayloads(reply.Experts)
	}
	if reply.Suggestions != nil {
		payload["suggestions"] = reply.Suggestions
	}
	if reply.Knowledge != nil {
		payload["items"] = knowledgePayloads(reply.Knowledge)
	}
	writeJSON(w, http.StatusOK, payload)
}

// --- dashboard ---

func (h *handler) dashboardSummary(w http.ResponseWriter, r *http.Request) {
	counts, err := h.service.DashboardSummary(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles":       counts.Profiles,
		"knowledgeItems": counts.KnowledgeItems,
		"staleItems":     counts.StaleItems,
		"deprecated":     counts.Deprecated,
		"pendingReviews": counts.PendingReviews,
		"messagesToday":  counts.MessagesToday,
		"connections":    counts.Connections,
	})
}

// --- payload mapping ---

func profilePayload(p store.Profile) map[string]any {
	expertise := p.Expertise
	if expertise == nil {
		expertise = []string{}
	}
	return map[string]any{
		"id":         p.ID,
		"fullName":   p.FullName,
		"email":      p.Email,
		"role":       p.Role,
		"accessRole": p.AccessRole,
		"team":       p.Team,
		"department": p.Department,
		"expertise":  expertise,
		"avatarUrl":  p.AvatarURL,
		"createdAt":  p.CreatedAt,
		"updatedAt":  p.UpdatedAt,
	}
}

func profilePayloads(profiles []store.Profile) []map[string]any {
	payload := make([]map[string]any, 0, len(profiles))
	for _, p := range profiles {
		payload = append(payload, profilePayload(p))
	}
	return payload
}

func knowledgePayload(item store.KnowledgeItem) map[string]any {
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"id":                item.ID,
		"title":             item.Title,
		"content":           item.Content,
		"tags":              tags,
		"authorId":          item.AuthorID,
		"authorName":        item.AuthorName,
		"version":           item.Version,
		"freshnessScore":    item.FreshnessScore,
		"freshness":         store.FreshnessBand(item.FreshnessScore),
		"isDeprecated":      item.IsDeprecated,
		"deprecationReason": item.DeprecationReason,
		"createdAt":         item.CreatedAt,
		"updatedAt":         item.UpdatedAt,
	}
}

func knowledgePayloads(items []store.KnowledgeItem) []map[string]any {
	payload := make([]map[string]any, 0, len(items))
	for _, item := range items {
		payload = append(payload, knowledgePayload(item))
	}
	return payload
}

func reviewPayload(r store.PeerReview) map[string]any {
	return map[string]any{
		"id":           r.ID,
		"itemId":       r.KnowledgeItemID,
		"reviewerId":   r.ReviewerID,
		"reviewerName": r.ReviewerName,
		"status":       r.Status,
		"rating":       r.Rating,
		"comments":     r.Comments,
		"createdAt":    r.CreatedAt,
	}
}

func reviewPayloads(reviews []store.PeerReview) []map[string]any {
	payload := make([]map[string]any, 0, len(reviews))
	for _, r := range reviews {
		payload = append(payload, reviewPayload(r))
	}
	return payload
}

// --- helpers ---

func (h *handler) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, code, message, details)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	body := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		body["details"] = details
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func mapError(err error) (int, string, string, any) {
	var domain *DomainError
	if errors.As(err, &domain) {
		return domain.Status, domain.Code, domain.Message, domain.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
