package templates

import (
	"strings"

	"github.com/geoflow/geoflow/core/domain"
)

// LayerSpec describes the overlay produced when a workflow completes
type LayerSpec struct {
	Category domain.LayerCategory
	Name     string
	Color    string
}

var layerRules = []struct {
	keywords []string
	spec     LayerSpec
}{
	{[]string{"flood"}, LayerSpec{domain.CategoryFloodRisk, "Flood Risk Zones", "#dc2626"}},
	{[]string{"park", "green"}, LayerSpec{domain.CategoryGreenSpace, "Green Spaces", "#16a34a"}},
	{[]string{"heat"}, LayerSpec{domain.CategoryHeatIsland, "Urban Heat Islands", "#ea580c"}},
}

var defaultLayer = LayerSpec{domain.CategoryUrbanBoundary, "Urban Boundary", "#2563eb"}

// ClassifyLayer derives the result layer from the original query text.
// It matches independently of the template table, so a custom template
// with other keywords still produces an urban-boundary layer.
func ClassifyLayer(query string) LayerSpec {
	lower := strings.ToLower(query)
	for _, rule := range layerRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(lower, keyword) {
				return rule.spec
			}
		}
	}
	return defaultLayer
}
