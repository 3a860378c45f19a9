package driver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/geoflow/geoflow/core/application/templates"
	"github.com/geoflow/geoflow/core/domain"
	"github.com/geoflow/geoflow/core/infrastructure/store"
	apperrors "github.com/geoflow/geoflow/core/shared/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	testStepDelay     = 10 * time.Millisecond
	testWorkflowDelay = 40 * time.Millisecond
	waitFor           = 2 * time.Second
	tick              = 5 * time.Millisecond
)

func testConfig() Config {
	return Config{StepDelay: testStepDelay, WorkflowDelay: testWorkflowDelay}
}

func startDriver(t *testing.T, cfg Config, opts ...Option) *Driver {
	t.Helper()
	d := New(cfg, templates.NewSelector(), opts...)
	require.NoError(t, d.Start(context.Background()))
	return d
}

// blockingRunner keeps steps executing until the driver stops
var blockingRunner = RunnerFunc(func(ctx context.Context, _ domain.WorkflowStep) (*domain.StepResult, error) {
	<-ctx.Done()
	return nil, ctx.Err()
})

func sessionStatus(t *testing.T, d *Driver, id string) domain.SessionStatus {
	session, err := d.Session(context.Background(), id)
	require.NoError(t, err)
	return session.Status
}

func TestDriver_FloodWorkflowProducesLayer(t *testing.T) {
	ctx := context.Background()
	d := startDriver(t, testConfig())
	defer d.Stop()

	session, err := d.SubmitQuery(ctx, "Find flood-risk zones near Sabarmati River")
	require.NoError(t, err)
	require.Len(t, session.Steps, 3)
	assert.Equal(t, domain.SessionProcessing, session.Status)
	for _, step := range session.Steps {
		assert.Equal(t, domain.StepPending, step.Status)
	}

	started, err := d.ExecuteWorkflow(ctx, session.ID)
	require.NoError(t, err)
	for _, step := range started.Steps {
		assert.Equal(t, domain.StepExecuting, step.Status)
	}

	assert.Eventually(t, func() bool {
		return sessionStatus(t, d, session.ID) == domain.SessionCompleted
	}, waitFor, tick)

	done, err := d.Session(ctx, session.ID)
	require.NoError(t, err)
	for _, step := range done.Steps {
		assert.Equal(t, domain.StepCompleted, step.Status)
		require.NotNil(t, step.Result)
		assert.Equal(t, domain.PlaceholderMessage, step.Result.Message)
		assert.Equal(t, domain.PlaceholderData, step.Result.Data)
	}

	layers, err := d.Layers(ctx)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, domain.CategoryFloodRisk, layers[0].Category)
	assert.Equal(t, "#dc2626", layers[0].Color)
	assert.Equal(t, "Flood Risk Zones", layers[0].Name)
	assert.Equal(t, session.ID, layers[0].SessionID)
	assert.True(t, layers[0].Visible)
	assert.Empty(t, layers[0].Geometry.Features)

	layer, err := d.Layer(ctx, layers[0].ID)
	require.NoError(t, err)
	assert.Equal(t, layers[0], layer)
}

func TestDriver_UnmatchedQueryHasNoWorkflow(t *testing.T) {
	ctx := context.Background()
	d := startDriver(t, testConfig())
	defer d.Stop()

	session, err := d.SubmitQuery(ctx, "hello world")
	require.NoError(t, err)
	assert.Empty(t, session.Steps)

	_, err = d.ExecuteWorkflow(ctx, session.ID)
	assert.Equal(t, apperrors.ErrCodeEmptyWorkflow, apperrors.CodeOf(err))

	time.Sleep(2 * testWorkflowDelay)
	layers, err := d.Layers(ctx)
	require.NoError(t, err)
	assert.Empty(t, layers)
	assert.Equal(t, domain.SessionProcessing, sessionStatus(t, d, session.ID))
}

func TestDriver_EditedStepStillCompletesWithPlaceholder(t *testing.T) {
	ctx := context.Background()
	d := startDriver(t, testConfig())
	defer d.Stop()

	session, err := d.SubmitQuery(ctx, "Show parks within walking distance")
	require.NoError(t, err)
	require.Len(t, session.Steps, 2)
	proximity := session.Steps[1]
	require.Equal(t, "Proximity Analysis", proximity.Operation)

	edited, err := d.EditStep(ctx, session.ID, proximity.ID, domain.StepUpdate{
		Parameters: map[string]any{"buffer_distance": 800},
	})
	require.NoError(t, err)
	assert.Equal(t, 800, edited.Parameters["buffer_distance"])
	assert.Equal(t, "meters", edited.Parameters["unit"])
	assert.Equal(t, domain.StepPending, edited.Status)

	_, err = d.ExecuteStep(ctx, session.ID, proximity.ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		s, err := d.Session(ctx, session.ID)
		return err == nil && s.Steps[1].Status == domain.StepCompleted
	}, waitFor, tick)

	s, err := d.Session(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlaceholderResult(), s.Steps[1].Result)
	assert.Equal(t, 800, s.Steps[1].Parameters["buffer_distance"])
	assert.Equal(t, domain.StepPending, s.Steps[0].Status, "executing one step leaves the others alone")
	assert.Equal(t, domain.SessionProcessing, s.Status)
}

func TestDriver_EditIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := startDriver(t, testConfig())
	defer d.Stop()

	session, err := d.SubmitQuery(ctx, "heat stress")
	require.NoError(t, err)
	stepID := session.Steps[0].ID

	explanation := "Use the night-time pass"
	update := domain.StepUpdate{
		Parameters:  map[string]any{"season": "winter"},
		Explanation: &explanation,
	}
	first, err := d.EditStep(ctx, session.ID, stepID, update)
	require.NoError(t, err)
	second, err := d.EditStep(ctx, session.ID, stepID, update)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, explanation, second.Explanation)
}

func TestDriver_RejectsInvalidEdits(t *testing.T) {
	ctx := context.Background()
	d := startDriver(t, testConfig())
	defer d.Stop()

	session, err := d.SubmitQuery(ctx, "flood")
	require.NoError(t, err)

	_, err = d.EditStep(ctx, session.ID, session.Steps[0].ID, domain.StepUpdate{
		Parameters: map[string]any{"nested": map[string]any{"a": 1}},
	})
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))

	_, err = d.EditStep(ctx, session.ID, "missing", domain.StepUpdate{})
	assert.Equal(t, apperrors.ErrCodeStepNotFound, apperrors.CodeOf(err))

	_, err = d.EditStep(ctx, "missing", session.Steps[0].ID, domain.StepUpdate{})
	assert.Equal(t, apperrors.ErrCodeSessionNotFound, apperrors.CodeOf(err))
}

func TestDriver_ExecuteStepRequiresPending(t *testing.T) {
	ctx := context.Background()
	d := startDriver(t, testConfig(), WithRunner(blockingRunner))
	defer d.Stop()

	session, err := d.SubmitQuery(ctx, "flood")
	require.NoError(t, err)
	stepID := session.Steps[0].ID

	step, err := d.ExecuteStep(ctx, session.ID, stepID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepExecuting, step.Status)

	_, err = d.ExecuteStep(ctx, session.ID, stepID)
	assert.Equal(t, apperrors.ErrCodeStepNotPending, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsConflict(err))
}

func TestDriver_WorkflowCannotRunTwice(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.WorkflowDelay = time.Hour
	d := startDriver(t, cfg)
	defer d.Stop()

	session, err := d.SubmitQuery(ctx, "flood")
	require.NoError(t, err)

	_, err = d.ExecuteWorkflow(ctx, session.ID)
	require.NoError(t, err)
	_, err = d.ExecuteWorkflow(ctx, session.ID)
	assert.Equal(t, apperrors.ErrCodeWorkflowAlreadyRunning, apperrors.CodeOf(err))
}

func TestDriver_WorkflowSkipsStepsAlreadyStarted(t *testing.T) {
	ctx := context.Background()
	d := startDriver(t, testConfig())
	defer d.Stop()

	session, err := d.SubmitQuery(ctx, "green")
	require.NoError(t, err)

	_, err = d.ExecuteStep(ctx, session.ID, session.Steps[0].ID)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		s, err := d.Session(ctx, session.ID)
		return err == nil && s.Steps[0].Status == domain.StepCompleted
	}, waitFor, tick)

	_, err = d.ExecuteWorkflow(ctx, session.ID)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return sessionStatus(t, d, session.ID) == domain.SessionCompleted
	}, waitFor, tick)

	layers, err := d.Layers(ctx)
	require.NoError(t, err)
	require.Len(t, layers, 1)
	assert.Equal(t, domain.CategoryGreenSpace, layers[0].Category)
}

func TestDriver_CompletedSessionIsFrozen(t *testing.T) {
	ctx := context.Background()
	d := startDriver(t, testConfig())
	defer d.Stop()

	session, err := d.SubmitQuery(ctx, "heat")
	require.NoError(t, err)
	_, err = d.ExecuteWorkflow(ctx, session.ID)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return sessionStatus(t, d, session.ID) == domain.SessionCompleted
	}, waitFor, tick)

	_, err = d.EditStep(ctx, session.ID, session.Steps[0].ID, domain.StepUpdate{Parameters: map[string]any{"band": 11}})
	assert.Equal(t, apperrors.ErrCodeSessionCompleted, apperrors.CodeOf(err))

	_, err = d.ExecuteStep(ctx, session.ID, session.Steps[0].ID)
	assert.Equal(t, apperrors.ErrCodeSessionCompleted, apperrors.CodeOf(err))

	_, err = d.ExecuteWorkflow(ctx, session.ID)
	assert.Equal(t, apperrors.ErrCodeSessionCompleted, apperrors.CodeOf(err))
}

func TestDriver_EditPolicy(t *testing.T) {
	tests := []struct {
		name        string
		strictEdits bool
		expectCode  apperrors.ErrorCode
	}{
		{name: "lenient edits allow executing steps", strictEdits: false},
		{name: "strict edits reject executing steps", strictEdits: true, expectCode: apperrors.ErrCodeStepNotPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfig()
			cfg.StrictEdits = tt.strictEdits
			d := startDriver(t, cfg, WithRunner(blockingRunner))
			defer d.Stop()

			session, err := d.SubmitQuery(ctx, "flood")
			require.NoError(t, err)
			stepID := session.Steps[0].ID
			_, err = d.ExecuteStep(ctx, session.ID, stepID)
			require.NoError(t, err)

			step, err := d.EditStep(ctx, session.ID, stepID, domain.StepUpdate{Parameters: map[string]any{"resolution_m": 10}})
			if tt.expectCode != "" {
				assert.Equal(t, tt.expectCode, apperrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.StepExecuting, step.Status)
			assert.Equal(t, 10, step.Parameters["resolution_m"])
		})
	}
}

func TestDriver_RunnerFailureMarksStepError(t *testing.T) {
	ctx := context.Background()
	failing := RunnerFunc(func(context.Context, domain.WorkflowStep) (*domain.StepResult, error) {
		return nil, errors.New("raster unavailable")
	})
	d := startDriver(t, testConfig(), WithRunner(failing))
	defer d.Stop()

	session, err := d.SubmitQuery(ctx, "flood")
	require.NoError(t, err)
	_, err = d.ExecuteStep(ctx, session.ID, session.Steps[0].ID)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		s, err := d.Session(ctx, session.ID)
		return err == nil && s.Steps[0].Status == domain.StepError
	}, waitFor, tick)

	s, err := d.Session(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, s.Steps[0].Result)
}

// fakeClock advances one second per reading
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
}

func TestDriver_SessionsInSubmissionOrder(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: base}
	d := startDriver(t, testConfig(), WithClock(clock.Now), WithIDGenerator(sequentialIDs("id")))
	defer d.Stop()

	first, err := d.SubmitQuery(ctx, "flood")
	require.NoError(t, err)
	second, err := d.SubmitQuery(ctx, "park")
	require.NoError(t, err)
	assert.Equal(t, "id-1", first.ID)
	assert.Equal(t, "id-2", second.ID)
	assert.Equal(t, base.Add(time.Second), first.CreatedAt)
	assert.Equal(t, base.Add(2*time.Second), second.CreatedAt)

	sessions, err := d.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "id-1", sessions[0].ID)
	assert.Equal(t, "id-2", sessions[1].ID)

	// snapshots do not alias driver state
	sessions[1].Steps[0].Status = domain.StepCompleted
	again, err := d.Session(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepPending, again.Steps[0].Status)

	_, err = d.ExecuteWorkflow(ctx, first.ID)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		layers, err := d.Layers(ctx)
		return err == nil && len(layers) == 1
	}, waitFor, tick)

	layers, err := d.Layers(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id-3", layers[0].ID)
	assert.True(t, layers[0].CreatedAt.After(second.CreatedAt))
}

func TestDriver_PersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	memory := store.NewMemoryStore()

	interrupted := &domain.QuerySession{
		ID:        "restored",
		Query:     "flood",
		CreatedAt: time.Now().Add(-time.Minute),
		Status:    domain.SessionProcessing,
		Steps: []domain.WorkflowStep{
			{ID: "s1", Operation: "Data Collection", Status: domain.StepCompleted, Result: domain.PlaceholderResult(), Editable: true},
			{ID: "s2", Operation: "Hydrological Analysis", Status: domain.StepExecuting, Editable: true},
		},
	}
	require.NoError(t, memory.SaveSession(ctx, interrupted))

	d := startDriver(t, testConfig(), WithStore(memory))
	defer d.Stop()

	restored, err := d.Session(ctx, "restored")
	require.NoError(t, err)
	assert.Equal(t, domain.StepCompleted, restored.Steps[0].Status)
	assert.Equal(t, domain.StepPending, restored.Steps[1].Status)

	stored, err := memory.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, domain.StepPending, stored[0].Steps[1].Status)

	_, err = d.ExecuteWorkflow(ctx, "restored")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		layers, err := memory.LoadLayers(ctx)
		return err == nil && len(layers) == 1
	}, waitFor, tick)

	stored, err = memory.LoadSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, stored[0].Status)
}

func TestDriver_RestoresFromRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	redisStore := store.NewRedisStoreFromClient(client, "geoflow-test")
	defer redisStore.Close()

	require.NoError(t, redisStore.SaveSession(ctx, &domain.QuerySession{
		ID:        "restored",
		Query:     "Show parks in the west",
		CreatedAt: time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC),
		Status:    domain.SessionProcessing,
		Steps: []domain.WorkflowStep{
			{ID: "s1", Operation: "Green Space Detection", Parameters: map[string]any{"ndvi_threshold": 0.4, "min_area_m2": 500}, Status: domain.StepExecuting, Editable: true},
		},
	}))

	d := startDriver(t, testConfig(), WithStore(redisStore))
	defer d.Stop()

	restored, err := d.Session(ctx, "restored")
	require.NoError(t, err)
	assert.Equal(t, domain.StepPending, restored.Steps[0].Status)
	assert.Equal(t, map[string]any{"ndvi_threshold": 0.4, "min_area_m2": 500}, restored.Steps[0].Parameters)

	_, err = d.ExecuteWorkflow(ctx, "restored")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		layers, err := redisStore.LoadLayers(ctx)
		return err == nil && len(layers) == 1
	}, waitFor, tick)

	layers, err := redisStore.LoadLayers(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryGreenSpace, layers[0].Category)
	assert.Equal(t, "restored", layers[0].SessionID)

	sessions, err := redisStore.LoadSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.SessionCompleted, sessions[0].Status)
}

func TestDriver_PublishesEvents(t *testing.T) {
	ctx := context.Background()
	d := startDriver(t, testConfig())
	defer d.Stop()

	events, unsubscribe := d.Subscribe()
	defer unsubscribe()

	session, err := d.SubmitQuery(ctx, "flood")
	require.NoError(t, err)
	_, err = d.ExecuteWorkflow(ctx, session.ID)
	require.NoError(t, err)

	seen := map[EventType]int{}
	timeout := time.After(waitFor)
	for seen[EventLayerAdded] == 0 {
		select {
		case ev := <-events:
			assert.Equal(t, session.ID, ev.SessionID)
			seen[ev.Type]++
		case <-timeout:
			t.Fatalf("timed out waiting for layer event, saw %v", seen)
		}
	}

	assert.Equal(t, 1, seen[EventSessionCreated])
	assert.Equal(t, 1, seen[EventWorkflowStarted])
	assert.Equal(t, 1, seen[EventSessionCompleted])
	// three steps each go executing then completed
	assert.Equal(t, 6, seen[EventStepUpdated])
}

func TestDriver_StoppedRejectsCalls(t *testing.T) {
	d := New(testConfig(), templates.NewSelector())

	_, err := d.SubmitQuery(context.Background(), "flood")
	assert.ErrorIs(t, err, ErrStopped, "not started")

	require.NoError(t, d.Start(context.Background()))
	d.Stop()
	d.Stop()

	_, err = d.SubmitQuery(context.Background(), "flood")
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, apperrors.ErrCodeUnavailable, apperrors.CodeOf(err))
	assert.ErrorIs(t, d.Start(context.Background()), ErrStopped)
}

func TestDriver_StopCancelsInFlightWork(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.WorkflowDelay = time.Hour
	d := startDriver(t, cfg, WithRunner(blockingRunner))

	session, err := d.SubmitQuery(ctx, "flood")
	require.NoError(t, err)
	_, err = d.ExecuteWorkflow(ctx, session.ID)
	require.NoError(t, err)

	stopped := make(chan struct{})
	go func() {
		d.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("Stop did not return")
	}
}
