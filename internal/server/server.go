// Package server exposes the registry surface over HTTP: tracked-channel and
// webhook CRUD, the public channel-request intake, and a manual cycle
// trigger. The polling cycle itself is normally cron-driven via "citrus
// check"; nothing here is required for it.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/citrusbot/citrus/internal/cache"
	"github.com/citrusbot/citrus/internal/config"
	"github.com/citrusbot/citrus/internal/models"
	"github.com/citrusbot/citrus/internal/provider"
	"github.com/citrusbot/citrus/internal/service"
	"github.com/citrusbot/citrus/internal/store"
)

// Server holds dependencies for the HTTP API.
type Server struct {
	store     store.Store
	cfg       *config.Config
	providers map[models.Platform]provider.Provider
	checker   *service.Checker
	rds       *cache.Redis // nil when REDIS_URL is not set
	logger    zerolog.Logger
	mux       *http.ServeMux
}

// New creates a Server and registers routes.
// rds may be nil if Redis is not configured.
func New(s store.Store, cfg *config.Config, providers []provider.Provider, checker *service.Checker, rds *cache.Redis, logger zerolog.Logger) *Server {
	byPlatform := make(map[models.Platform]provider.Provider, len(providers))
	for _, p := range providers {
		byPlatform[p.Platform()] = p
	}
	srv := &Server{
		store:     s,
		cfg:       cfg,
		providers: byPlatform,
		checker:   checker,
		rds:       rds,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Tracked channels
	s.mux.HandleFunc("GET /api/channels", s.handleListChannels)
	s.mux.HandleFunc("POST /api/channels", s.handleAddChannel)
	s.mux.HandleFunc("DELETE /api/channels/{platform}/{id}", s.handleDeleteChannel)

	// Webhooks
	s.mux.HandleFunc("GET /api/webhooks", s.handleListWebhooks)
	s.mux.HandleFunc("POST /api/webhooks", s.handleAddWebhook)
	s.mux.HandleFunc("DELETE /api/webhooks/{id}", s.handleDeleteWebhook)

	// Channel requests (public intake + admin review)
	s.mux.HandleFunc("POST /api/requests", s.handleCreateRequest)
	s.mux.HandleFunc("GET /api/requests", s.handleListRequests)
	s.mux.HandleFunc("POST /api/requests/{id}/approve", s.handleApproveRequest)
	s.mux.HandleFunc("POST /api/requests/{id}/reject", s.handleRejectRequest)

	// Manual cycle trigger
	s.mux.HandleFunc("POST /api/check", s.handleRunCheck)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server on the configured port.
// It blocks until the server is shut down or ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := ":" + s.cfg.ServerPort
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      withCORS(s.withLogging(s)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ListenAndServe: %w", err)
	}
	return nil
}

// --- handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- channel handlers ---

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	platform, err := platformFilter(r.URL.Query().Get("platform"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	channels, err := s.store.ListChannels(r.Context(), platform)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if channels == nil {
		channels = []models.Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

type addChannelRequest struct {
	Platform models.Platform `json:"platform"`
	Channel  string          `json:"channel"` // login name (Twitch) or channel id (YouTube)
}

func (s *Server) handleAddChannel(w http.ResponseWriter, r *http.Request) {
	var req addChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if !req.Platform.Valid() {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown platform: %q", req.Platform))
		return
	}
	if req.Channel == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("channel is required"))
		return
	}

	identity, err := s.resolve(r.Context(), req.Platform, req.Channel)
	if err != nil {
		if errors.Is(err, provider.ErrChannelNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("channel %q not found on %s", req.Channel, req.Platform.Label()))
			return
		}
		writeErr(w, http.StatusBadGateway, fmt.Errorf("resolve channel: %w", err))
		return
	}

	if err := s.store.UpsertChannel(r.Context(), req.Platform, identity.ChannelID, identity.DisplayName); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"platform":     req.Platform,
		"channel_id":   identity.ChannelID,
		"channel_name": identity.DisplayName,
	})
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	platform := models.Platform(r.PathValue("platform"))
	if !platform.Valid() {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown platform: %q", platform))
		return
	}
	channelID := r.PathValue("id")

	if err := s.store.DeleteChannel(r.Context(), platform, channelID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("channel %s/%s not found", platform, channelID))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeNoContent(w)
}

// --- webhook handlers ---

func (s *Server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	webhooks, err := s.store.ListWebhooks(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if webhooks == nil {
		webhooks = []models.Webhook{}
	}
	writeJSON(w, http.StatusOK, webhooks)
}

type addWebhookRequest struct {
	ServerName      string  `json:"server_name"`
	WebhookURL      string  `json:"webhook_url"`
	MessageTemplate *string `json:"message_template"`
}

func (s *Server) handleAddWebhook(w http.ResponseWriter, r *http.Request) {
	var req addWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if req.ServerName == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("server_name is required"))
		return
	}
	if u, err := url.ParseRequestURI(req.WebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("webhook_url must be a valid http or https URL"))
		return
	}

	webhook := &models.Webhook{
		ServerName:      req.ServerName,
		WebhookURL:      req.WebhookURL,
		MessageTemplate: req.MessageTemplate,
	}
	id, err := s.store.AddWebhook(r.Context(), webhook)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	webhook.ID = id
	writeJSON(w, http.StatusCreated, webhook)
}

func (s *Server) handleDeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.DeleteWebhook(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("webhook %d not found", id))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeNoContent(w)
}

// --- channel request handlers ---

type createRequestRequest struct {
	Platform       models.Platform `json:"platform"`
	Channel        string          `json:"channel"`
	RequesterName  string          `json:"requester_name"`
	RequesterEmail string          `json:"requester_email"`
	Reason         string          `json:"reason"`
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req createRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if !req.Platform.Valid() {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown platform: %q", req.Platform))
		return
	}
	if req.Channel == "" || req.RequesterName == "" || req.RequesterEmail == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("channel, requester_name and requester_email are required"))
		return
	}

	// Resolve up front so requests always reference a real channel with its
	// canonical id and display name.
	identity, err := s.resolve(r.Context(), req.Platform, req.Channel)
	if err != nil {
		if errors.Is(err, provider.ErrChannelNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("channel %q not found on %s", req.Channel, req.Platform.Label()))
			return
		}
		writeErr(w, http.StatusBadGateway, fmt.Errorf("resolve channel: %w", err))
		return
	}

	id, token, err := s.store.CreateChannelRequest(r.Context(), &models.ChannelRequest{
		Token:          uuid.NewString(),
		Platform:       req.Platform,
		ChannelID:      identity.ChannelID,
		ChannelName:    identity.DisplayName,
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		Reason:         req.Reason,
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":     id,
		"token":  token,
		"status": models.RequestPending,
	})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", models.RequestPending, models.RequestApproved, models.RequestRejected:
	default:
		writeErr(w, http.StatusBadRequest, fmt.Errorf("unknown status: %q", status))
		return
	}

	requests, err := s.store.ListChannelRequests(r.Context(), status)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if requests == nil {
		requests = []models.ChannelRequest{}
	}
	writeJSON(w, http.StatusOK, requests)
}

// handleApproveRequest registers the requested channel and marks the request
// approved.
func (s *Server) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	req, err := s.store.GetChannelRequest(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("request %d not found", id))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if req.Status != models.RequestPending {
		writeErr(w, http.StatusConflict, fmt.Errorf("request %d is already %s", id, req.Status))
		return
	}

	if err := s.store.UpsertChannel(r.Context(), req.Platform, req.ChannelID, req.ChannelName); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.UpdateChannelRequestStatus(r.Context(), id, models.RequestApproved); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": models.RequestApproved})
}

func (s *Server) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, "id")
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	if err := s.store.UpdateChannelRequestStatus(r.Context(), id, models.RequestRejected); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeErr(w, http.StatusNotFound, fmt.Errorf("request %d not found", id))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": models.RequestRejected})
}

// --- cycle trigger ---

func (s *Server) handleRunCheck(w http.ResponseWriter, r *http.Request) {
	report, err := s.checker.RunExclusive(r.Context(), s.rds)
	if err != nil {
		if errors.Is(err, cache.ErrLocked) {
			writeErr(w, http.StatusConflict, fmt.Errorf("a cycle is already running"))
			return
		}
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- middleware ---

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("latency", time.Since(start)).
			Msg("request")
	})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- helpers ---

// APIError is the standard error envelope for all error responses.
type APIError struct {
	Status int    `json:"status"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) resolve(ctx context.Context, platform models.Platform, query string) (*provider.ChannelIdentity, error) {
	p, ok := s.providers[platform]
	if !ok {
		return nil, fmt.Errorf("no provider configured for %s", platform)
	}
	return p.ResolveChannel(ctx, query)
}

func platformFilter(v string) (models.Platform, error) {
	if v == "" {
		return "", nil
	}
	platform := models.Platform(v)
	if !platform.Valid() {
		return "", fmt.Errorf("unknown platform: %q", v)
	}
	return platform, nil
}

// parseID extracts a path parameter by name and parses it as int64.
func parseID(r *http.Request, param string) (int64, error) {
	v := r.PathValue(param)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", param, v)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, APIError{
		Status: status,
		Error:  http.StatusText(status),
		Detail: err.Error(),
	})
}
