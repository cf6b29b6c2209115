package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/civicdesk/chatflow/internal/engine"
	"github.com/civicdesk/chatflow/internal/middleware"
	"github.com/civicdesk/chatflow/pkg/logger"
)

// SessionHandler exposes read-only session inspection for operators.
type SessionHandler struct {
	sessions engine.SessionStore
	logger   *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions engine.SessionStore, log *logger.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: log}
}

// Get handles GET /api/v1/sessions/{conversationID}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "conversationID")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := h.sessions.Get(ctx, conversationID)
	if errors.Is(err, engine.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if sess.TenantID != middleware.GetTenantID(ctx) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	writeJSON(w, http.StatusOK, sess)
}
