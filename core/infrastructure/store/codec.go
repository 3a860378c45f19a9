package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/geoflow/geoflow/core/domain"
)

// decodeSession restores a session snapshot. Whole-number parameters come back
// as int so a restored step compares equal to the one that was saved.
func decodeSession(data []byte) (*domain.QuerySession, error) {
	var session domain.QuerySession
	if err := unmarshalNumbers(data, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	for i := range session.Steps {
		params, err := normalizeParameters(session.Steps[i].Parameters)
		if err != nil {
			return nil, fmt.Errorf("decode session %s step %s: %w", session.ID, session.Steps[i].ID, err)
		}
		session.Steps[i].Parameters = params
	}
	return &session, nil
}

func decodeLayer(data []byte) (domain.MapLayerDescriptor, error) {
	var layer domain.MapLayerDescriptor
	if err := json.Unmarshal(data, &layer); err != nil {
		return layer, fmt.Errorf("decode layer: %w", err)
	}
	if !layer.Category.Valid() {
		return layer, fmt.Errorf("decode layer %s: unknown layer type '%s'", layer.ID, layer.Category)
	}
	if layer.Geometry.Type == "" {
		layer.Geometry = domain.EmptyGeometry()
	}
	return layer, nil
}

func unmarshalNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func normalizeParameters(params map[string]any) (map[string]any, error) {
	if params == nil {
		return map[string]any{}, nil
	}
	for key, value := range params {
		n, ok := value.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			params[key] = int(i)
			continue
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("parameter '%s': %w", key, err)
		}
		params[key] = f
	}
	return params, domain.ValidateParameters(params)
}
