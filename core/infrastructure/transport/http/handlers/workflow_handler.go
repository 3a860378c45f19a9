package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/geoflow/geoflow/core/application/overlay"
	"github.com/geoflow/geoflow/core/application/templates"
	"github.com/geoflow/geoflow/core/domain"
	"github.com/geoflow/geoflow/core/infrastructure/transport/http/dto"
)

// WorkflowAPI is the application surface the HTTP handlers drive
type WorkflowAPI interface {
	SubmitQuery(ctx context.Context, query string) (*domain.QuerySession, error)
	ListSessions(ctx context.Context) ([]*domain.QuerySession, error)
	GetSession(ctx context.Context, sessionID string) (*domain.QuerySession, error)
	EditStep(ctx context.Context, sessionID, stepID string, update domain.StepUpdate) (domain.WorkflowStep, error)
	ExecuteStep(ctx context.Context, sessionID, stepID string) (domain.WorkflowStep, error)
	ExecuteWorkflow(ctx context.Context, sessionID string) (*domain.QuerySession, error)
	ListLayers(ctx context.Context) ([]domain.MapLayerDescriptor, error)
	LayerClicked(ctx context.Context, layerID string, at domain.Coordinates) (*domain.LayerClick, error)
	Map() overlay.View
	Templates() []templates.Template
}

// WorkflowHandler serves the chat surface and map endpoints
type WorkflowHandler struct {
	*BaseHandler
	api WorkflowAPI
}

// NewWorkflowHandler creates a new WorkflowHandler
func NewWorkflowHandler(api WorkflowAPI) *WorkflowHandler {
	return &WorkflowHandler{
		BaseHandler: NewBaseHandler("handler"),
		api:         api,
	}
}

func (h *WorkflowHandler) SubmitQuery(w http.ResponseWriter, r *http.Request) {
	var req dto.SubmitQueryRequest
	if err := h.Bind(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	session, err := h.api.SubmitQuery(r.Context(), req.Query)
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, dto.SessionResponse{Success: true, Session: session})
}

func (h *WorkflowHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.api.ListSessions(r.Context())
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteSuccess(w, dto.SessionsResponse{Success: true, Sessions: sessions})
}

func (h *WorkflowHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.api.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteSuccess(w, dto.SessionResponse{Success: true, Session: session})
}

func (h *WorkflowHandler) EditStep(w http.ResponseWriter, r *http.Request) {
	var req dto.EditStepRequest
	if err := h.Bind(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	step, err := h.api.EditStep(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "stepID"), req.Update())
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteSuccess(w, dto.StepResponse{Success: true, Step: step})
}

func (h *WorkflowHandler) ExecuteStep(w http.ResponseWriter, r *http.Request) {
	step, err := h.api.ExecuteStep(r.Context(), chi.URLParam(r, "sessionID"), chi.URLParam(r, "stepID"))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusAccepted, dto.StepResponse{Success: true, Step: step})
}

func (h *WorkflowHandler) ExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	session, err := h.api.ExecuteWorkflow(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusAccepted, dto.SessionResponse{Success: true, Session: session})
}

func (h *WorkflowHandler) ListLayers(w http.ResponseWriter, r *http.Request) {
	layers, err := h.api.ListLayers(r.Context())
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteSuccess(w, dto.LayersResponse{Success: true, Layers: layers})
}

func (h *WorkflowHandler) ClickLayer(w http.ResponseWriter, r *http.Request) {
	var req dto.LayerClickRequest
	if err := h.Bind(w, r, &req); err != nil {
		h.WriteError(w, r, err)
		return
	}

	click, err := h.api.LayerClicked(r.Context(), chi.URLParam(r, "layerID"), req.Coordinates())
	if err != nil {
		h.WriteError(w, r, err)
		return
	}
	h.WriteSuccess(w, dto.LayerClickResponse{Success: true, Click: click})
}

func (h *WorkflowHandler) Map(w http.ResponseWriter, r *http.Request) {
	h.WriteSuccess(w, dto.MapResponse{Success: true, Map: h.api.Map()})
}

func (h *WorkflowHandler) Templates(w http.ResponseWriter, r *http.Request) {
	h.WriteSuccess(w, dto.TemplatesResponse{Success: true, Templates: h.api.Templates()})
}
