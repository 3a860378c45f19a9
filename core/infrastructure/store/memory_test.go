package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoflow/geoflow/core/domain"
)

func TestMemoryStore_SessionsOrderedAndCopied(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

	later := &domain.QuerySession{ID: "b", Query: "heat", CreatedAt: base.Add(time.Minute), Status: domain.SessionProcessing}
	earlier := &domain.QuerySession{
		ID:        "a",
		Query:     "flood",
		CreatedAt: base,
		Status:    domain.SessionProcessing,
		Steps:     []domain.WorkflowStep{{ID: "s1", Parameters: map[string]any{"classes": 3}, Status: domain.StepPending}},
	}
	require.NoError(t, s.SaveSession(ctx, later))
	require.NoError(t, s.SaveSession(ctx, earlier))

	earlier.Steps[0].Parameters["classes"] = 5

	sessions, err := s.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "a", sessions[0].ID)
	assert.Equal(t, "b", sessions[1].ID)
	assert.Equal(t, 3, sessions[0].Steps[0].Parameters["classes"], "stored snapshot must not alias the caller's session")

	earlier.Status = domain.SessionCompleted
	require.NoError(t, s.SaveSession(ctx, earlier))
	sessions, err = s.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, domain.SessionCompleted, sessions[0].Status)
}

func TestMemoryStore_Layers(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SaveLayer(ctx, domain.MapLayerDescriptor{ID: "l1", Category: domain.CategoryFloodRisk}))
	require.NoError(t, s.SaveLayer(ctx, domain.MapLayerDescriptor{ID: "l2", Category: domain.CategoryHeatIsland}))

	layers, err := s.LoadLayers(ctx)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, "l1", layers[0].ID)
	assert.Equal(t, "l2", layers[1].ID)
}

func TestNew_Backends(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, s.Name())

	_, err = New(ctx, Options{Backend: BackendRedis})
	assert.ErrorContains(t, err, "store.redis_url")

	_, err = New(ctx, Options{Backend: BackendPostgres})
	assert.ErrorContains(t, err, "store.postgres_url")

	_, err = New(ctx, Options{Backend: "mongodb"})
	assert.ErrorContains(t, err, "unsupported store backend")
}
