package domain

import "time"

// LayerCategory classifies a map overlay
type LayerCategory string

const (
	CategoryFloodRisk     LayerCategory = "flood-risk"
	CategoryGreenSpace    LayerCategory = "green-space"
	CategoryHeatIsland    LayerCategory = "heat-island"
	CategoryUrbanBoundary LayerCategory = "urban-boundary"
)

// Valid reports whether c is one of the known categories
func (c LayerCategory) Valid() bool {
	switch c {
	case CategoryFloodRisk, CategoryGreenSpace, CategoryHeatIsland, CategoryUrbanBoundary:
		return true
	}
	return false
}

// FeatureCollection is a GeoJSON feature collection
type FeatureCollection struct {
	Type     string `json:"type"`
	Features []any  `json:"features"`
}

// EmptyGeometry returns a feature collection with no features
func EmptyGeometry() FeatureCollection {
	return FeatureCollection{Type: "FeatureCollection", Features: []any{}}
}

// MapLayerDescriptor is a renderable overlay appended after workflow completion.
// Descriptors are never mutated once created.
type MapLayerDescriptor struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Category  LayerCategory     `json:"type"`
	Geometry  FeatureCollection `json:"data"`
	Visible   bool              `json:"visible"`
	Color     string            `json:"color"`
	SessionID string            `json:"session_id"`
	CreatedAt time.Time         `json:"created_at"`
}

// Coordinates is a WGS84 point
type Coordinates struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// LayerClick is the popup summary returned when a user clicks a rendered layer
type LayerClick struct {
	LayerID     string        `json:"layer_id"`
	Name        string        `json:"name"`
	Category    LayerCategory `json:"type"`
	Coordinates Coordinates   `json:"coordinates"`
	SessionID   string        `json:"session_id,omitempty"`
}
