// Package overlay describes what the dashboard map draws before any workflow
// runs: the viewport defaults and a fixed set of demonstration shapes.
package overlay

import "github.com/geoflow/geoflow/core/domain"

const (
	DefaultCenterLat = 23.0225
	DefaultCenterLng = 72.5714
	DefaultZoom      = 12

	TileURL         = "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png"
	TileAttribution = "&copy; OpenStreetMap contributors"
)

// MapConfig is the initial viewport and tile source
type MapConfig struct {
	Center      domain.Coordinates `json:"center"`
	Zoom        int                `json:"zoom" validate:"gte=1,lte=19"`
	TileURL     string             `json:"tile_url"`
	Attribution string             `json:"attribution"`
}

// ShapeKind is how a demo shape is drawn
type ShapeKind string

const (
	ShapePolygon ShapeKind = "polygon"
	ShapeCircle  ShapeKind = "circle"
	ShapeMarker  ShapeKind = "marker"
)

// Shape is a static demonstration feature. Polygons use Points; circles use
// Center and RadiusM; markers use Center.
type Shape struct {
	ID       string               `json:"id"`
	Name     string               `json:"name"`
	Kind     ShapeKind            `json:"kind"`
	Category domain.LayerCategory `json:"category,omitempty"`
	Color    string               `json:"color,omitempty"`
	Points   []domain.Coordinates `json:"points,omitempty"`
	Center   *domain.Coordinates  `json:"center,omitempty"`
	RadiusM  float64              `json:"radius_m,omitempty"`
}

// View is everything the map needs for its first render
type View struct {
	Config MapConfig `json:"config"`
	Shapes []Shape   `json:"shapes"`
}

// Config returns the stock Ahmedabad viewport
func Config() MapConfig {
	return MapConfig{
		Center:      domain.Coordinates{Lat: DefaultCenterLat, Lng: DefaultCenterLng},
		Zoom:        DefaultZoom,
		TileURL:     TileURL,
		Attribution: TileAttribution,
	}
}

// DemoShapes returns the fixed demonstration features. The result is a fresh
// copy on every call.
func DemoShapes() []Shape {
	return []Shape{
		{
			ID:       "flood-zone-north",
			Name:     "Sabarmati Flood Zone (North)",
			Kind:     ShapePolygon,
			Category: domain.CategoryFloodRisk,
			Color:    "#dc2626",
			Points: []domain.Coordinates{
				{Lat: 23.0600, Lng: 72.5650},
				{Lat: 23.0600, Lng: 72.5850},
				{Lat: 23.0400, Lng: 72.5850},
				{Lat: 23.0400, Lng: 72.5650},
			},
		},
		{
			ID:       "flood-zone-south",
			Name:     "Sabarmati Flood Zone (South)",
			Kind:     ShapePolygon,
			Category: domain.CategoryFloodRisk,
			Color:    "#dc2626",
			Points: []domain.Coordinates{
				{Lat: 23.0100, Lng: 72.5600},
				{Lat: 23.0100, Lng: 72.5800},
				{Lat: 22.9900, Lng: 72.5800},
				{Lat: 22.9900, Lng: 72.5600},
			},
		},
		{
			ID:       "green-kankaria",
			Name:     "Kankaria Lake Park",
			Kind:     ShapeCircle,
			Category: domain.CategoryGreenSpace,
			Color:    "#16a34a",
			Center:   &domain.Coordinates{Lat: 23.0063, Lng: 72.6011},
			RadiusM:  800,
		},
		{
			ID:       "green-law-garden",
			Name:     "Law Garden",
			Kind:     ShapeCircle,
			Category: domain.CategoryGreenSpace,
			Color:    "#16a34a",
			Center:   &domain.Coordinates{Lat: 23.0276, Lng: 72.5592},
			RadiusM:  400,
		},
		{
			ID:     "city-center",
			Name:   "Ahmedabad City Center",
			Kind:   ShapeMarker,
			Center: &domain.Coordinates{Lat: DefaultCenterLat, Lng: DefaultCenterLng},
		},
	}
}

// NewView combines cfg with the demo shapes
func NewView(cfg MapConfig) View {
	return View{Config: cfg, Shapes: DemoShapes()}
}
