package store

import (
	"context"
	"slices"
	"sync"

	"github.com/geoflow/geoflow/core/domain"
)

// MemoryStore keeps snapshots in process memory; everything is lost on exit
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.QuerySession
	layers   []domain.MapLayerDescriptor
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.QuerySession),
	}
}

func (m *MemoryStore) SaveSession(_ context.Context, session *domain.QuerySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.ID] = session.Clone()
	return nil
}

func (m *MemoryStore) LoadSessions(_ context.Context) ([]*domain.QuerySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.QuerySession, 0, len(m.sessions))
	for _, session := range m.sessions {
		out = append(out, session.Clone())
	}
	sortSessions(out)
	return out, nil
}

func (m *MemoryStore) SaveLayer(_ context.Context, layer domain.MapLayerDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.layers = append(m.layers, layer)
	return nil
}

func (m *MemoryStore) LoadLayers(_ context.Context) ([]domain.MapLayerDescriptor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.layers), nil
}

func (m *MemoryStore) Name() string { return BackendMemory }

func (m *MemoryStore) Close() error { return nil }

func sortSessions(sessions []*domain.QuerySession) {
	slices.SortStableFunc(sessions, func(a, b *domain.QuerySession) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
