package dto

import (
	"github.com/geoflow/geoflow/core/application/overlay"
	"github.com/geoflow/geoflow/core/application/templates"
	"github.com/geoflow/geoflow/core/domain"
)

// SubmitQueryRequest is the chat input
type SubmitQueryRequest struct {
	Query string `json:"query" validate:"required,max=2000"`
}

// EditStepRequest carries the fields a user changed on a step.
// Omitted fields are left untouched.
type EditStepRequest struct {
	Parameters  map[string]any `json:"parameters"`
	Input       *string        `json:"input"`
	Explanation *string        `json:"explanation"`
}

// Update converts the request into a domain update
func (r EditStepRequest) Update() domain.StepUpdate {
	return domain.StepUpdate{
		Parameters:  r.Parameters,
		Input:       r.Input,
		Explanation: r.Explanation,
	}
}

// LayerClickRequest is the point a user clicked on a rendered layer
type LayerClickRequest struct {
	Lat *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lng *float64 `json:"lng" validate:"required,gte=-180,lte=180"`
}

// Coordinates returns the clicked point. Call only after validation.
func (r LayerClickRequest) Coordinates() domain.Coordinates {
	return domain.Coordinates{Lat: *r.Lat, Lng: *r.Lng}
}

type SessionResponse struct {
	Success bool                 `json:"success"`
	Session *domain.QuerySession `json:"session"`
}

type SessionsResponse struct {
	Success  bool                   `json:"success"`
	Sessions []*domain.QuerySession `json:"sessions"`
}

type StepResponse struct {
	Success bool                `json:"success"`
	Step    domain.WorkflowStep `json:"step"`
}

type LayersResponse struct {
	Success bool                        `json:"success"`
	Layers  []domain.MapLayerDescriptor `json:"layers"`
}

type LayerClickResponse struct {
	Success bool              `json:"success"`
	Click   *domain.LayerClick `json:"click"`
}

type MapResponse struct {
	Success bool         `json:"success"`
	Map     overlay.View `json:"map"`
}

type TemplatesResponse struct {
	Success   bool                 `json:"success"`
	Templates []templates.Template `json:"templates"`
}
