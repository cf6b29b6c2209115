package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/civicdesk/chatflow/internal/engine"
	"github.com/civicdesk/chatflow/internal/middleware"
	"github.com/civicdesk/chatflow/internal/model"
	"github.com/civicdesk/chatflow/internal/store"
	"github.com/civicdesk/chatflow/pkg/logger"
)

// FlowHandler handles flow document administration endpoints.
type FlowHandler struct {
	flows  *store.FlowRepository
	logger *logger.Logger
}

// NewFlowHandler creates a new flow handler.
func NewFlowHandler(flows *store.FlowRepository, log *logger.Logger) *FlowHandler {
	return &FlowHandler{flows: flows, logger: log}
}

// Create handles POST /api/v1/flows
func (h *FlowHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	var doc model.FlowDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	doc.TenantID = tenantID

	saved, err := h.flows.Save(ctx, &doc)
	if err != nil {
		h.logger.Error("failed to save flow", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save flow")
		return
	}

	writeJSON(w, http.StatusCreated, saved)
}

// List handles GET /api/v1/flows
func (h *FlowHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := middleware.GetTenantID(ctx)

	docs, err := h.flows.List(ctx, tenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list flows")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flows": docs, "total": len(docs)})
}

// Get handles GET /api/v1/flows/{id}
func (h *FlowHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	version, _ := strconv.Atoi(r.URL.Query().Get("version"))

	doc, err := h.flows.GetByID(ctx, id, version)
	if errors.Is(err, store.ErrFlowNotFound) {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load flow")
		return
	}
	if doc.TenantID != middleware.GetTenantID(ctx) {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Activate handles POST /api/v1/flows/{id}/activate. The document is
// statically checked before it goes live; a broken document is rejected
// with every problem found.
func (h *FlowHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	version, _ := strconv.Atoi(r.URL.Query().Get("version"))

	doc, err := h.flows.GetByID(ctx, id, version)
	if errors.Is(err, store.ErrFlowNotFound) {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load flow")
		return
	}
	if doc.TenantID != middleware.GetTenantID(ctx) {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}

	if problems := engine.CheckDocument(doc); len(problems) > 0 {
		msgs := make([]string, len(problems))
		for i, p := range problems {
			msgs[i] = p.Error()
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    "document failed validation",
			"problems": msgs,
		})
		return
	}

	activated, err := h.flows.Activate(ctx, doc.ID, doc.Version)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to activate flow")
		return
	}

	h.logger.Info("flow activated",
		zap.String("flow_id", activated.ID),
		zap.Int("version", activated.Version),
		zap.String("tenant_id", activated.TenantID))
	writeJSON(w, http.StatusOK, activated)
}

// Deactivate handles POST /api/v1/flows/{id}/deactivate
func (h *FlowHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	doc, err := h.flows.GetByID(ctx, id, 0)
	if errors.Is(err, store.ErrFlowNotFound) || (err == nil && doc.TenantID != middleware.GetTenantID(ctx)) {
		writeError(w, http.StatusNotFound, "flow not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load flow")
		return
	}

	if err := h.flows.Deactivate(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to deactivate flow")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}
