// Package store provides the engine's external collaborator
// implementations: flow document repository, session stores, event
// deduplication and per-conversation locks.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/civicdesk/chatflow/internal/model"
)

// ErrFlowNotFound is returned when no document matches the requested id and
// version.
var ErrFlowNotFound = errors.New("flow document not found")

// FlowRepository stores flow documents keyed by id and version. Sessions pin
// the version they started with, so older versions stay readable after an
// administrator publishes a new one.
type FlowRepository struct {
	mu   sync.RWMutex
	docs map[string]map[int]*model.FlowDocument // id -> version -> doc
}

// NewFlowRepository creates an empty in-memory flow repository.
func NewFlowRepository() *FlowRepository {
	return &FlowRepository{
		docs: make(map[string]map[int]*model.FlowDocument),
	}
}

// Save stores a document, assigning an id on first save and bumping the
// version. The new version starts inactive until activated.
func (r *FlowRepository) Save(ctx context.Context, doc *model.FlowDocument) (*model.FlowDocument, error) {
	if doc.TenantID == "" {
		return nil, fmt.Errorf("document has no tenant")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	stored := *doc
	if stored.ID == "" {
		stored.ID = uuid.Must(uuid.NewV7()).String()
		stored.CreatedAt = now
	}
	versions, ok := r.docs[stored.ID]
	if !ok {
		versions = make(map[int]*model.FlowDocument)
		r.docs[stored.ID] = versions
	}
	stored.Version = len(versions) + 1
	stored.IsActive = false
	stored.UpdatedAt = now
	versions[stored.Version] = &stored

	out := stored
	return &out, nil
}

// Activate marks the given version active and deactivates the document's
// other versions.
func (r *FlowRepository) Activate(ctx context.Context, flowID string, version int) (*model.FlowDocument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.docs[flowID]
	if !ok {
		return nil, ErrFlowNotFound
	}
	target, ok := versions[version]
	if !ok {
		return nil, ErrFlowNotFound
	}
	for _, d := range versions {
		d.IsActive = false
	}
	target.IsActive = true
	target.ActivatedAt = time.Now()

	out := *target
	return &out, nil
}

// Deactivate turns off every version of a document.
func (r *FlowRepository) Deactivate(ctx context.Context, flowID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.docs[flowID]
	if !ok {
		return ErrFlowNotFound
	}
	for _, d := range versions {
		d.IsActive = false
	}
	return nil
}

// ActiveDocuments returns every active document version for a tenant.
func (r *FlowRepository) ActiveDocuments(ctx context.Context, tenantID string) ([]*model.FlowDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.FlowDocument
	for _, versions := range r.docs {
		for _, d := range versions {
			if d.TenantID == tenantID && d.IsActive {
				cp := *d
				out = append(out, &cp)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ActivatedAt.After(out[j].ActivatedAt)
	})
	return out, nil
}

// GetByID returns a specific document version; version 0 means the latest.
func (r *FlowRepository) GetByID(ctx context.Context, flowID string, version int) (*model.FlowDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.docs[flowID]
	if !ok || len(versions) == 0 {
		return nil, ErrFlowNotFound
	}
	if version == 0 {
		for v := range versions {
			if v > version {
				version = v
			}
		}
	}
	d, ok := versions[version]
	if !ok {
		return nil, ErrFlowNotFound
	}
	cp := *d
	return &cp, nil
}

// List returns the latest version of each document for a tenant.
func (r *FlowRepository) List(ctx context.Context, tenantID string) ([]*model.FlowDocument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*model.FlowDocument
	for _, versions := range r.docs {
		var latest *model.FlowDocument
		for _, d := range versions {
			if d.TenantID != tenantID {
				break
			}
			if latest == nil || d.Version > latest.Version {
				latest = d
			}
		}
		if latest != nil {
			cp := *latest
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
