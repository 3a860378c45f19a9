package store

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoflow/geoflow/core/domain"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS geoflow_sessions")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	s, err := newPostgresStore(context.Background(), mock)
	require.NoError(t, err)
	return s, mock
}

func TestPostgresStore_SaveSession(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockPostgresStore(t)
	session := &domain.QuerySession{
		ID:        "a",
		Query:     "flood",
		CreatedAt: time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC),
		Status:    domain.SessionProcessing,
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO geoflow_sessions")).
		WithArgs("a", session.CreatedAt, "processing", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveSession(ctx, session))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LoadSessionsRestoresIntegers(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockPostgresStore(t)

	saved := &domain.QuerySession{
		ID:        "a",
		Query:     "heat",
		CreatedAt: time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC),
		Status:    domain.SessionCompleted,
		Steps: []domain.WorkflowStep{{
			ID:         "s1",
			Operation:  "Land Surface Temperature",
			Parameters: map[string]any{"band": 10, "emissivity": 0.97},
			Status:     domain.StepCompleted,
			Result:     domain.PlaceholderResult(),
			Editable:   true,
		}},
	}
	body, err := json.Marshal(saved)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT body FROM geoflow_sessions ORDER BY created_at, id")).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).AddRow(body))

	sessions, err := s.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, saved, sessions[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Layers(t *testing.T) {
	ctx := context.Background()
	s, mock := newMockPostgresStore(t)
	layer := domain.MapLayerDescriptor{
		ID:        "l1",
		Name:      "Green Spaces",
		Category:  domain.CategoryGreenSpace,
		Geometry:  domain.EmptyGeometry(),
		Visible:   true,
		Color:     "#16a34a",
		SessionID: "a",
		CreatedAt: time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC),
	}
	body, err := json.Marshal(layer)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO geoflow_layers")).
		WithArgs("l1", "a", layer.CreatedAt, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT body FROM geoflow_layers ORDER BY created_at, id")).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).AddRow(body))

	require.NoError(t, s.SaveLayer(ctx, layer))
	layers, err := s.LoadLayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.MapLayerDescriptor{layer}, layers)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RejectsUnknownLayerType(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT body FROM geoflow_layers")).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).AddRow([]byte(`{"id":"l1","type":"volcano"}`)))

	_, err := s.LoadLayers(context.Background())
	assert.ErrorContains(t, err, "unknown layer type")
}

func TestNewPostgresStore_SchemaFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE")).WillReturnError(assert.AnError)
	_, err = newPostgresStore(context.Background(), mock)
	assert.ErrorIs(t, err, assert.AnError)
}
