// Package api provides the HTTP server for bedcbot.
//
// It mounts the Twilio inbound webhook and a small operations surface:
// health, analytics, session inspection and manual session cleanup.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zigamak/bedcbot/internal/messaging"
	"github.com/zigamak/bedcbot/internal/models"
	"github.com/zigamak/bedcbot/internal/session"
	"github.com/zigamak/bedcbot/internal/store"
)

// Server exposes the HTTP surface over the session manager and store.
type Server struct {
	sessions  *session.Manager
	store     store.Store
	twilio    *messaging.TwilioService
	aiEnabled bool
}

// NewServer creates the API server. The Twilio service may be nil when the
// WhatsApp transport is used; the webhook is then not mounted.
func NewServer(sessions *session.Manager, st store.Store, twilio *messaging.TwilioService, aiEnabled bool) *Server {
	return &Server{sessions: sessions, store: st, twilio: twilio, aiEnabled: aiEnabled}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/analytics", s.handleAnalytics)
	mux.HandleFunc("/api/cleanup", s.handleCleanup)
	mux.HandleFunc("/api/sessions/", s.handleSessions)
	if s.twilio != nil {
		mux.HandleFunc("/webhook/twilio", s.handleWebhook)
	}
	return mux
}

// Serve runs the HTTP server until the context is cancelled, then shuts it
// down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}))
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	faultReports, err := s.store.FaultReportCount(r.Context())
	if err != nil {
		slog.Error("Server.handleAnalytics: fault report count failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to read analytics"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"active_sessions": s.sessions.Count(),
		"fault_reports":   faultReports,
		"ai_enabled":      s.aiEnabled,
	}))
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	removed := s.sessions.CleanupExpired()
	slog.Info("Server.handleCleanup: manual cleanup triggered", "removed", removed)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("cleanup complete", map[string]interface{}{
		"removed": removed,
	}))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	if id, found := strings.CutSuffix(rest, "/extend"); found {
		s.handleSessionExtend(w, r, id)
		return
	}
	s.handleSessionLookup(w, r, rest)
}

// handleSessionExtend applies a paid extension to a session, typically from a
// payment provider callback.
func (s *Server) handleSessionExtend(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	if id == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Session ID is required"))
		return
	}

	var req struct {
		Reference       string `json:"reference"`
		DurationMinutes int    `json:"duration_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid request body"))
		return
	}
	if req.Reference == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Payment reference is required"))
		return
	}
	duration := time.Duration(req.DurationMinutes) * time.Minute
	if duration <= 0 {
		duration = session.DefaultPaidTimeout
	}

	s.sessions.ExtendForPaidUser(id, req.Reference, duration)
	slog.Info("Server.handleSessionExtend: paid extension applied", "session_id", id, "reference", req.Reference, "duration", duration)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("session extended", map[string]interface{}{
		"session_id": id,
		"reference":  req.Reference,
		"expires_at": time.Now().Add(duration).UTC().Format(time.RFC3339),
	}))
}

func (s *Server) handleSessionLookup(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	if id == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Session ID is required"))
		return
	}
	sess, ok := s.sessions.Peek(id)
	if !ok {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"phone_number":   sess.PhoneNumber,
		"state":          string(sess.CurrentState),
		"handler":        string(sess.CurrentHandler),
		"account_linked": sess.AccountNumber != "",
		"history_length": len(sess.ConversationHistory),
		"paid_user":      sess.IsPaidUser,
		"last_activity":  sess.LastActivity.UTC().Format(time.RFC3339),
	}))
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	s.twilio.WebhookHandler(w, r)
}
