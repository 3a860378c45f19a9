package interfaces

import (
	"context"

	"github.com/geoflow/geoflow/core/domain"
)

// SessionStore persists snapshots of driver state.
// Writes are whole-record upserts; loads return records ordered by creation time.
type SessionStore interface {
	// SaveSession upserts a session snapshot
	SaveSession(ctx context.Context, session *domain.QuerySession) error

	// LoadSessions returns every stored session, oldest first
	LoadSessions(ctx context.Context) ([]*domain.QuerySession, error)

	// SaveLayer stores a layer descriptor
	SaveLayer(ctx context.Context, layer domain.MapLayerDescriptor) error

	// LoadLayers returns every stored layer, oldest first
	LoadLayers(ctx context.Context) ([]domain.MapLayerDescriptor, error)

	// Name identifies the backend in logs
	Name() string

	// Close releases resources
	Close() error
}
