// Package department supplies runtime-populated list options for dynamic
// list steps, e.g. the grievance department picker.
package department

import (
	"context"
	"sync"

	"github.com/civicdesk/chatflow/internal/model"
)

// StaticProvider serves per-tenant department lists kept in memory. The
// surrounding product manages departments through its own CRUD; this
// provider is the engine-facing read surface.
type StaticProvider struct {
	mu      sync.RWMutex
	byOwner map[string][]model.ListRow
}

// NewStaticProvider creates an empty provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{byOwner: make(map[string][]model.ListRow)}
}

// SetOptions replaces the department list for a tenant.
func (p *StaticProvider) SetOptions(tenantID string, rows []model.ListRow) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]model.ListRow, len(rows))
	copy(cp, rows)
	p.byOwner[tenantID] = cp
}

// Options returns the ordered department rows for a tenant.
func (p *StaticProvider) Options(ctx context.Context, tenantID string) ([]model.ListRow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rows := p.byOwner[tenantID]
	cp := make([]model.ListRow, len(rows))
	copy(cp, rows)
	return cp, nil
}
