// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/civicdesk/chatflow/internal/engine"
	"github.com/civicdesk/chatflow/internal/middleware"
	"github.com/civicdesk/chatflow/internal/model"
	"github.com/civicdesk/chatflow/pkg/logger"
)

// WebhookHandler receives inbound transport events and feeds them to the
// flow runner.
type WebhookHandler struct {
	runner *engine.Runner
	logger *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(runner *engine.Runner, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{runner: runner, logger: log}
}

// webhookRequest is the transport-neutral inbound event payload.
type webhookRequest struct {
	EventID        string  `json:"event_id"`
	ConversationID string  `json:"conversation_id"`
	Kind           string  `json:"kind"`
	Text           string  `json:"text,omitempty"`
	ButtonID       string  `json:"button_id,omitempty"`
	MediaRef       string  `json:"media_ref,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
}

// Receive handles POST /webhook/{tenantID}
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := chi.URLParam(r, "tenantID")

	if err := middleware.ValidateTenantID(tenantID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateEventID(req.EventID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateConversationID(req.ConversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateEventText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	kind := model.EventKind(req.Kind)
	switch kind {
	case model.EventText, model.EventButtonClick, model.EventListSelect, model.EventMedia, model.EventLocation:
	case "":
		kind = model.EventText
	default:
		writeError(w, http.StatusBadRequest, "unknown event kind")
		return
	}

	event := &model.InboundEvent{
		EventID:        req.EventID,
		ConversationID: req.ConversationID,
		TenantID:       tenantID,
		Kind:           kind,
		Text:           req.Text,
		ButtonID:       req.ButtonID,
		MediaRef:       req.MediaRef,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
		ReceivedAt:     time.Now(),
	}

	renders, err := h.runner.HandleEvent(ctx, event)
	if err != nil {
		h.logger.Error("event handling failed",
			zap.String("conversation_id", event.ConversationID),
			zap.String("event_id", event.EventID),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process event")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"handled":  true,
		"messages": len(renders),
	})
}
