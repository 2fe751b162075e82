package collection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/radarkb/retrieval-mcp/internal/storage"
	"github.com/radarkb/retrieval-mcp/pkg/types"
)

// Manager maps tenant IDs to their collections and keeps the persistent
// manifest in step with the in-memory set.
type Manager struct {
	mu      sync.RWMutex
	tenants map[string]*Collection
	store   storage.Store
	log     *zap.Logger
}

// NewManager returns an empty manager backed by store.
func NewManager(store storage.Store, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		tenants: make(map[string]*Collection),
		store:   store,
		log:     log,
	}
}

// LoadFromStore rebuilds every tenant's collection from persisted state.
// Vectors are reloaded as stored, so startup never re-embeds.
func (m *Manager) LoadFromStore(ctx context.Context) error {
	states, err := m.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load tenants: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, state := range states {
		col := newCollection(state.Tenant.ID, state.Tenant.Dimension)

		docs := make([]*types.Document, 0, len(state.Documents))
		for _, d := range state.Documents {
			docs = append(docs, &types.Document{
				ID:          d.ID,
				TenantID:    d.TenantID,
				Source:      d.Source,
				ContentHash: d.ContentHash,
				Status:      types.DocumentStatus(d.Status),
				ChunkCount:  d.ChunkCount,
				CreatedAt:   d.CreatedAt,
				UpdatedAt:   d.UpdatedAt,
			})
		}
		chunks := make([]*types.Chunk, 0, len(state.Chunks))
		for _, ch := range state.Chunks {
			chunks = append(chunks, &types.Chunk{
				ID:         ch.ID,
				DocumentID: ch.DocumentID,
				TenantID:   ch.TenantID,
				Text:       ch.Content,
				Sequence:   ch.Sequence,
				Category:   ch.Category,
				Metadata:   ch.Metadata,
			})
		}
		vectors := make(map[string][]float32, len(state.Embeddings))
		for _, e := range state.Embeddings {
			vectors[e.ChunkID] = e.Vector
		}

		if err := col.restore(state.Tenant.Version, docs, chunks, vectors); err != nil {
			return fmt.Errorf("restore tenant %s: %w", state.Tenant.ID, err)
		}
		m.tenants[state.Tenant.ID] = col

		m.log.Info("tenant restored",
			zap.String("tenant", state.Tenant.ID),
			zap.Int("documents", len(docs)),
			zap.Int("chunks", len(chunks)),
			zap.Uint64("version", state.Tenant.Version))
	}
	return nil
}

// Get returns the collection for tenantID, or ErrTenantNotFound.
func (m *Manager) Get(tenantID string) (*Collection, error) {
	m.mu.RLock()
	col, ok := m.tenants[tenantID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tenant %q: %w", tenantID, types.ErrTenantNotFound)
	}
	return col, nil
}

// GetOrCreate returns the tenant's collection, creating and persisting it on
// first use. An existing collection with a different embedding dimension is
// an error rather than a silent re-dimension.
func (m *Manager) GetOrCreate(ctx context.Context, tenantID string, dimension int) (*Collection, error) {
	m.mu.RLock()
	col, ok := m.tenants[tenantID]
	m.mu.RUnlock()
	if ok {
		if col.Dimension() != dimension {
			return nil, fmt.Errorf("tenant %q has dimension %d, got %d: %w",
				tenantID, col.Dimension(), dimension, types.ErrDimensionMismatch)
		}
		return col, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if col, ok := m.tenants[tenantID]; ok {
		if col.Dimension() != dimension {
			return nil, fmt.Errorf("tenant %q has dimension %d, got %d: %w",
				tenantID, col.Dimension(), dimension, types.ErrDimensionMismatch)
		}
		return col, nil
	}

	now := time.Now().UTC()
	if err := m.store.CreateTenant(ctx, &storage.TenantRecord{
		ID:        tenantID,
		Dimension: dimension,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("create tenant %q: %w", tenantID, err)
	}

	col = newCollection(tenantID, dimension)
	m.tenants[tenantID] = col
	m.log.Info("tenant created", zap.String("tenant", tenantID), zap.Int("dimension", dimension))
	return col, nil
}

// Delete removes the tenant's collection and all persisted state. Queries
// arriving after Delete returns see ErrTenantNotFound.
func (m *Manager) Delete(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tenants[tenantID]; !ok {
		return fmt.Errorf("tenant %q: %w", tenantID, types.ErrTenantNotFound)
	}
	if err := m.store.DeleteTenant(ctx, tenantID); err != nil {
		return fmt.Errorf("delete tenant %q: %w", tenantID, err)
	}
	delete(m.tenants, tenantID)
	m.log.Info("tenant deleted", zap.String("tenant", tenantID))
	return nil
}

// Version returns the tenant's current index version.
func (m *Manager) Version(tenantID string) (uint64, error) {
	col, err := m.Get(tenantID)
	if err != nil {
		return 0, err
	}
	return col.Version(), nil
}

// Tenants lists the IDs of all live collections.
func (m *Manager) Tenants() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.tenants))
	for id := range m.tenants {
		ids = append(ids, id)
	}
	return ids
}
