package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/geoflow/geoflow/core/domain"
	"github.com/geoflow/geoflow/core/infrastructure/logging"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS geoflow_sessions (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	status     TEXT NOT NULL,
	body       JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS geoflow_layers (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	body       JSONB NOT NULL
);`

// pgxPool is the subset of *pgxpool.Pool the store uses
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresStore keeps one JSONB row per session and per layer
type PostgresStore struct {
	pool pgxPool
}

// NewPostgresStore opens a pool on connString and ensures the schema exists
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	log := logging.New("store:postgres")
	log.Debugf("Opening PostgreSQL connection pool")

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := newPostgresStore(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	log.Debugf("PostgreSQL connection pool opened successfully")
	return s, nil
}

func newPostgresStore(ctx context.Context, pool pgxPool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) SaveSession(ctx context.Context, session *domain.QuerySession) error {
	body, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO geoflow_sessions (id, created_at, status, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, body = EXCLUDED.body`,
		session.ID, session.CreatedAt, string(session.Status), body)
	if err != nil {
		return fmt.Errorf("upsert session %s: %w", session.ID, err)
	}
	return nil
}

func (p *PostgresStore) LoadSessions(ctx context.Context) ([]*domain.QuerySession, error) {
	rows, err := p.pool.Query(ctx, `SELECT body FROM geoflow_sessions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.QuerySession
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session, err := decodeSession(body)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (p *PostgresStore) SaveLayer(ctx context.Context, layer domain.MapLayerDescriptor) error {
	body, err := json.Marshal(layer)
	if err != nil {
		return fmt.Errorf("encode layer %s: %w", layer.ID, err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO geoflow_layers (id, session_id, created_at, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		layer.ID, layer.SessionID, layer.CreatedAt, body)
	if err != nil {
		return fmt.Errorf("insert layer %s: %w", layer.ID, err)
	}
	return nil
}

func (p *PostgresStore) LoadLayers(ctx context.Context) ([]domain.MapLayerDescriptor, error) {
	rows, err := p.pool.Query(ctx, `SELECT body FROM geoflow_layers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query layers: %w", err)
	}
	defer rows.Close()

	var layers []domain.MapLayerDescriptor
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		layer, err := decodeLayer(body)
		if err != nil {
			return nil, err
		}
		layers = append(layers, layer)
	}
	return layers, rows.Err()
}

func (p *PostgresStore) Name() string { return BackendPostgres }

func (p *PostgresStore) Close() error {
	logging.New("store:postgres").Debugf("Closing PostgreSQL connection pool")
	p.pool.Close()
	return nil
}
