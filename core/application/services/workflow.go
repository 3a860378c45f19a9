package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/geoflow/geoflow/core/application/overlay"
	"github.com/geoflow/geoflow/core/application/templates"
	"github.com/geoflow/geoflow/core/domain"
	"github.com/geoflow/geoflow/core/infrastructure/logging"
	"github.com/geoflow/geoflow/core/observability"
	"github.com/geoflow/geoflow/core/shared/errors"
)

// MaxQueryLength bounds the text accepted by SubmitQuery, in characters
const MaxQueryLength = 2000

// Engine is the state machine behind the service
type Engine interface {
	SubmitQuery(ctx context.Context, query string) (*domain.QuerySession, error)
	EditStep(ctx context.Context, sessionID, stepID string, update domain.StepUpdate) (domain.WorkflowStep, error)
	ExecuteStep(ctx context.Context, sessionID, stepID string) (domain.WorkflowStep, error)
	ExecuteWorkflow(ctx context.Context, sessionID string) (*domain.QuerySession, error)
	Session(ctx context.Context, id string) (*domain.QuerySession, error)
	Sessions(ctx context.Context) ([]*domain.QuerySession, error)
	Layers(ctx context.Context) ([]domain.MapLayerDescriptor, error)
	Layer(ctx context.Context, id string) (domain.MapLayerDescriptor, error)
}

// WorkflowService validates user intents, forwards them to the engine and
// records traces and metrics. It is shared by the HTTP surface and the CLI.
type WorkflowService struct {
	engine   Engine
	selector *templates.Selector
	mapCfg   overlay.MapConfig
	validate *validator.Validate
	log      logging.Logger
}

// NewWorkflowService creates a new WorkflowService
func NewWorkflowService(engine Engine, selector *templates.Selector, mapCfg overlay.MapConfig) *WorkflowService {
	return &WorkflowService{
		engine:   engine,
		selector: selector,
		mapCfg:   mapCfg,
		validate: validator.New(),
		log:      logging.New("service"),
	}
}

// traced runs fn inside a span named name. Rejections of the caller's request
// (unknown IDs, state conflicts, bad input) are recorded on the span without
// marking it failed.
func traced[T any](ctx context.Context, name string, fn func(ctx context.Context) (T, error), attrs ...attribute.KeyValue) (T, error) {
	ctx, span := observability.StartSpan(ctx, name, trace.WithAttributes(attrs...))
	defer span.End()

	out, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		if code := errors.CodeOf(err); code != "" {
			span.SetAttributes(attribute.String(observability.AttrErrorType, string(code)))
		}
		if !rejected(err) {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	return out, err
}

func rejected(err error) bool {
	return errors.IsNotFound(err) || errors.IsConflict(err) || errors.IsValidationError(err)
}

// SubmitQuery creates a session for query. A query that matches no template
// is accepted and yields a session with no steps.
func (s *WorkflowService) SubmitQuery(ctx context.Context, query string) (*domain.QuerySession, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewAppError(errors.ErrCodeInvalidInput, "query is required", nil)
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "query exceeds %d characters", MaxQueryLength)
	}

	template := s.selector.TemplateName(query)
	return traced(ctx, "workflow.submit_query", func(ctx context.Context) (*domain.QuerySession, error) {
		session, err := s.engine.SubmitQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		observability.RecordSessionCreated(ctx, template)
		observability.WithTrace(ctx, s.log).Debugf("Query %q selected template %q", query, template)
		return session, nil
	}, attribute.String(observability.AttrTemplateName, template))
}

func (s *WorkflowService) ListSessions(ctx context.Context) ([]*domain.QuerySession, error) {
	return s.engine.Sessions(ctx)
}

func (s *WorkflowService) GetSession(ctx context.Context, sessionID string) (*domain.QuerySession, error) {
	return s.engine.Session(ctx, sessionID)
}

// EditStep applies update to one step. An update that changes nothing is rejected.
func (s *WorkflowService) EditStep(ctx context.Context, sessionID, stepID string, update domain.StepUpdate) (domain.WorkflowStep, error) {
	if update.Empty() {
		return domain.WorkflowStep{}, errors.NewAppError(errors.ErrCodeInvalidInput, "update must set parameters, input or explanation", nil)
	}
	if err := domain.ValidateParameters(update.Parameters); err != nil {
		return domain.WorkflowStep{}, errors.WrapError(errors.ErrCodeInvalidInput, err.Error(), err)
	}

	return traced(ctx, "workflow.edit_step", func(ctx context.Context) (domain.WorkflowStep, error) {
		return s.engine.EditStep(ctx, sessionID, stepID, update)
	}, attribute.String(observability.AttrSessionID, sessionID), attribute.String(observability.AttrStepID, stepID))
}

func (s *WorkflowService) ExecuteStep(ctx context.Context, sessionID, stepID string) (domain.WorkflowStep, error) {
	return traced(ctx, "workflow.execute_step", func(ctx context.Context) (domain.WorkflowStep, error) {
		return s.engine.ExecuteStep(ctx, sessionID, stepID)
	}, attribute.String(observability.AttrSessionID, sessionID), attribute.String(observability.AttrStepID, stepID))
}

func (s *WorkflowService) ExecuteWorkflow(ctx context.Context, sessionID string) (*domain.QuerySession, error) {
	return traced(ctx, "workflow.execute", func(ctx context.Context) (*domain.QuerySession, error) {
		return s.engine.ExecuteWorkflow(ctx, sessionID)
	}, attribute.String(observability.AttrSessionID, sessionID))
}

func (s *WorkflowService) ListLayers(ctx context.Context) ([]domain.MapLayerDescriptor, error) {
	return s.engine.Layers(ctx)
}

// LayerClicked validates the clicked point and returns the popup summary for the layer
func (s *WorkflowService) LayerClicked(ctx context.Context, layerID string, at domain.Coordinates) (*domain.LayerClick, error) {
	if err := s.validate.Struct(at); err != nil {
		return nil, errors.WrapError(errors.ErrCodeValidationError, fmt.Sprintf("invalid coordinates (%g, %g)", at.Lat, at.Lng), err)
	}

	layer, err := s.engine.Layer(ctx, layerID)
	if err != nil {
		return nil, err
	}

	observability.RecordLayerClick(ctx, string(layer.Category))
	observability.WithTrace(ctx, s.log).Infof("Layer %q clicked at %.5f, %.5f", layer.Name, at.Lat, at.Lng)

	return &domain.LayerClick{
		LayerID:     layer.ID,
		Name:        layer.Name,
		Category:    layer.Category,
		Coordinates: at,
		SessionID:   layer.SessionID,
	}, nil
}

// Map returns the viewport defaults together with the demo shapes
func (s *WorkflowService) Map() overlay.View {
	return overlay.NewView(s.mapCfg)
}

// Templates returns the keyword table in match order
func (s *WorkflowService) Templates() []templates.Template {
	return s.selector.Templates()
}
