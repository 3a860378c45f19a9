package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/geoflow/geoflow/core/application/templates"
	"github.com/geoflow/geoflow/core/domain"
	"github.com/geoflow/geoflow/core/infrastructure/store"
)

var demoQueries = []string{
	"Find flood-risk zones near Sabarmati River",
	"Show parks within walking distance of schools",
	"Where are the urban heat islands in the old city?",
	"Map green cover along the riverfront",
	"Flood exposure of low-lying wards",
	"Heat stress around industrial estates",
	"Ward boundaries for the eastern zone",
}

// Seeds a session store with completed demo sessions and their layers so a
// dashboard started against it has history to show.
func main() {
	var (
		backend     string
		redisURL    string
		postgresURL string
		prefix      string
		count       int
	)
	flag.StringVar(&backend, "backend", store.BackendRedis, "Store backend (redis or postgres)")
	flag.StringVar(&redisURL, "redis-url", "redis://localhost:6379/0", "Redis connection URL")
	flag.StringVar(&postgresURL, "postgres-url", "postgres://localhost:5432/geoflow", "Postgres connection string")
	flag.StringVar(&prefix, "prefix", "geoflow", "Redis key prefix")
	flag.IntVar(&count, "count", 5, "Number of sessions to generate")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s, err := store.New(ctx, store.Options{
		Backend:     backend,
		RedisURL:    redisURL,
		PostgresURL: postgresURL,
		KeyPrefix:   prefix,
	})
	if err != nil {
		panic(fmt.Errorf("connect failed: %w", err))
	}
	defer func() {
		_ = s.Close()
	}()

	selector := templates.NewSelector()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	start := time.Now().Add(-time.Duration(count) * time.Hour)

	layers := 0
	for i := 0; i < count; i++ {
		query := demoQueries[rng.Intn(len(demoQueries))]
		createdAt := start.Add(time.Duration(i) * time.Hour)

		steps := selector.Select(query)
		for j := range steps {
			steps[j].Status = domain.StepCompleted
			steps[j].Result = domain.PlaceholderResult()
		}
		session := &domain.QuerySession{
			ID:        uuid.NewString(),
			Query:     query,
			CreatedAt: createdAt,
			Steps:     steps,
			Status:    domain.SessionCompleted,
		}
		if err := s.SaveSession(ctx, session); err != nil {
			panic(fmt.Errorf("save session failed: %w", err))
		}

		spec := templates.ClassifyLayer(query)
		layer := domain.MapLayerDescriptor{
			ID:        uuid.NewString(),
			Name:      spec.Name,
			Category:  spec.Category,
			Geometry:  domain.EmptyGeometry(),
			Visible:   true,
			Color:     spec.Color,
			SessionID: session.ID,
			CreatedAt: createdAt.Add(5 * time.Second),
		}
		if err := s.SaveLayer(ctx, layer); err != nil {
			panic(fmt.Errorf("save layer failed: %w", err))
		}
		layers++
	}

	fmt.Printf("seeded %d sessions and %d layers into the %s store\n", count, layers, s.Name())
}
