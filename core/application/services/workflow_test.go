package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/geoflow/geoflow/core/application/driver"
	"github.com/geoflow/geoflow/core/application/overlay"
	"github.com/geoflow/geoflow/core/application/templates"
	"github.com/geoflow/geoflow/core/domain"
	"github.com/geoflow/geoflow/core/shared/errors"
)

func newTestService(t *testing.T) (*WorkflowService, *driver.Driver) {
	t.Helper()
	selector := templates.NewSelector()
	d := driver.New(driver.Config{StepDelay: 5 * time.Millisecond, WorkflowDelay: 20 * time.Millisecond}, selector)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Stop)
	return NewWorkflowService(d, selector, overlay.Config()), d
}

func TestWorkflowService_SubmitQueryValidation(t *testing.T) {
	svc, _ := newTestService(t)

	tests := []struct {
		name      string
		query     string
		wantCode  errors.ErrorCode
		wantSteps int
	}{
		{name: "empty", query: "", wantCode: errors.ErrCodeInvalidInput},
		{name: "whitespace", query: "   \t", wantCode: errors.ErrCodeInvalidInput},
		{name: "too long", query: strings.Repeat("x", MaxQueryLength+1), wantCode: errors.ErrCodeInvalidInput},
		{name: "unmatched accepted", query: "hello world", wantSteps: 0},
		{name: "trimmed flood", query: "  flood risk  ", wantSteps: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := svc.SubmitQuery(context.Background(), tt.query)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, session.Steps, tt.wantSteps)
			assert.Equal(t, strings.TrimSpace(tt.query), session.Query)
		})
	}
}

func TestWorkflowService_EditStepRejectsEmptyUpdate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.SubmitQuery(ctx, "green belts")
	require.NoError(t, err)

	_, err = svc.EditStep(ctx, session.ID, session.Steps[0].ID, domain.StepUpdate{})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	_, err = svc.EditStep(ctx, session.ID, session.Steps[0].ID, domain.StepUpdate{
		Parameters: map[string]any{"bands": []any{4, 8}},
	})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	step, err := svc.EditStep(ctx, session.ID, session.Steps[0].ID, domain.StepUpdate{
		Parameters: map[string]any{"ndvi_threshold": 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.5, step.Parameters["ndvi_threshold"])
}

func TestWorkflowService_LayerClicked(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.SubmitQuery(ctx, "urban heat")
	require.NoError(t, err)
	_, err = svc.ExecuteWorkflow(ctx, session.ID)
	require.NoError(t, err)

	var layers []domain.MapLayerDescriptor
	require.Eventually(t, func() bool {
		layers, err = svc.ListLayers(ctx)
		return err == nil && len(layers) == 1
	}, 2*time.Second, 5*time.Millisecond)

	click, err := svc.LayerClicked(ctx, layers[0].ID, domain.Coordinates{Lat: 23.03, Lng: 72.58})
	require.NoError(t, err)
	assert.Equal(t, "Urban Heat Islands", click.Name)
	assert.Equal(t, domain.CategoryHeatIsland, click.Category)
	assert.Equal(t, session.ID, click.SessionID)

	_, err = svc.LayerClicked(ctx, layers[0].ID, domain.Coordinates{Lat: 91, Lng: 72.58})
	assert.Equal(t, errors.ErrCodeValidationError, errors.CodeOf(err))

	_, err = svc.LayerClicked(ctx, layers[0].ID, domain.Coordinates{Lat: 23, Lng: -180.5})
	assert.Equal(t, errors.ErrCodeValidationError, errors.CodeOf(err))

	_, err = svc.LayerClicked(ctx, "missing", domain.Coordinates{Lat: 23, Lng: 72})
	assert.True(t, errors.IsNotFound(err))
}

func TestWorkflowService_MapAndTemplates(t *testing.T) {
	svc, _ := newTestService(t)

	view := svc.Map()
	assert.Equal(t, overlay.Config(), view.Config)
	assert.Len(t, view.Shapes, 5)

	names := make([]string, 0)
	for _, tmpl := range svc.Templates() {
		names = append(names, tmpl.Name)
	}
	assert.Equal(t, []string{"flood-analysis", "green-space", "heat-island"}, names)
}

func TestTraced_RejectionsDoNotFailSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		provider.Shutdown(context.Background())
	})

	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.ExecuteWorkflow(ctx, "missing")
	require.True(t, errors.IsNotFound(err))

	session, err := svc.SubmitQuery(ctx, "flood")
	require.NoError(t, err)
	_, err = svc.ExecuteWorkflow(ctx, session.ID)
	require.NoError(t, err)
	_, err = svc.ExecuteWorkflow(ctx, session.ID)
	require.True(t, errors.IsConflict(err))

	_, err = traced(ctx, "workflow.test_failure", func(context.Context) (int, error) {
		return 0, errors.NewAppError(errors.ErrCodeStoreFailed, "save session", nil)
	})
	require.Error(t, err)

	statuses := map[string][]codes.Code{}
	for _, span := range recorder.Ended() {
		statuses[span.Name()] = append(statuses[span.Name()], span.Status().Code)
	}
	assert.Equal(t, []codes.Code{codes.Unset, codes.Unset, codes.Unset}, statuses["workflow.execute"])
	assert.Equal(t, []codes.Code{codes.Error}, statuses["workflow.test_failure"])
}
