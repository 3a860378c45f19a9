package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pb33f/libopenapi"

	"github.com/geoflow/geoflow/core/application/templates"
	"github.com/geoflow/geoflow/core/infrastructure/transport/http/handlers"
	apperrors "github.com/geoflow/geoflow/core/shared/errors"
)

// apiOperation describes one route in the generated document
type apiOperation struct {
	method      string
	path        string
	id          string
	summary     string
	request     string // component schema name, "" when there is no body
	status      string
	response    string
	contentType string
	errors      []string
}

var apiOperations = []apiOperation{
	{method: "post", path: "/api/sessions", id: "submitQuery", summary: "Submit a query and plan its workflow",
		request: "SubmitQueryRequest", status: "201", response: "SessionResponse", errors: []string{"400", "415"}},
	{method: "get", path: "/api/sessions", id: "listSessions", summary: "List sessions in submission order",
		status: "200", response: "SessionsResponse"},
	{method: "get", path: "/api/sessions/{sessionID}", id: "getSession", summary: "Get one session",
		status: "200", response: "SessionResponse", errors: []string{"404"}},
	{method: "patch", path: "/api/sessions/{sessionID}/steps/{stepID}", id: "editStep", summary: "Edit a step's input, parameters or explanation",
		request: "EditStepRequest", status: "200", response: "StepResponse", errors: []string{"400", "404", "409", "415"}},
	{method: "post", path: "/api/sessions/{sessionID}/steps/{stepID}/execute", id: "executeStep", summary: "Run one pending step",
		status: "202", response: "StepResponse", errors: []string{"404", "409"}},
	{method: "post", path: "/api/sessions/{sessionID}/execute", id: "executeWorkflow", summary: "Run every pending step and complete the session",
		status: "202", response: "SessionResponse", errors: []string{"404", "409"}},
	{method: "get", path: "/api/layers", id: "listLayers", summary: "List map layers in creation order",
		status: "200", response: "LayersResponse"},
	{method: "post", path: "/api/layers/{layerID}/click", id: "clickLayer", summary: "Report a click on a rendered layer",
		request: "LayerClickRequest", status: "200", response: "LayerClickResponse", errors: []string{"400", "404", "415"}},
	{method: "get", path: "/api/map", id: "getMap", summary: "Map viewport, tiles and demo overlays",
		status: "200", response: "MapResponse"},
	{method: "get", path: "/api/templates", id: "listTemplates", summary: "Workflow templates in match order",
		status: "200", response: "TemplatesResponse"},
	{method: "get", path: "/api/events", id: "streamEvents", summary: "Server-sent stream of session, step and layer events",
		status: "200", response: "Event", contentType: "text/event-stream"},
	{method: "get", path: "/heartbeat", id: "heartbeat", summary: "Health check",
		status: "200", response: "HealthResponse"},
}

var errorDescriptions = map[string]string{
	"400": "Invalid input",
	"404": "Session, step or layer not found",
	"409": "Rejected by the step or session state",
	"415": "Content-Type must be application/json",
}

// GenerateOpenAPISpec builds the OpenAPI 3.0 document for the HTTP API and
// validates it with libopenapi. The template table is listed in the description.
func GenerateOpenAPISpec(list []templates.Template, version, baseURL string) ([]byte, error) {
	paths := make(map[string]any)
	for _, op := range apiOperations {
		item, ok := paths[op.path].(map[string]any)
		if !ok {
			item = make(map[string]any)
			paths[op.path] = item
		}
		item[op.method] = operationSpec(op)
	}

	spec := map[string]any{
		"openapi": "3.0.0",
		"info": map[string]any{
			"title":       "GeoFlow API",
			"version":     version,
			"description": describeTemplates(list),
		},
		"servers": []map[string]any{
			{"url": baseURL, "description": "GeoFlow server"},
		},
		"paths": paths,
		"components": map[string]any{
			"schemas": componentSchemas(),
		},
	}

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal spec: %w", err)
	}

	document, err := libopenapi.NewDocument(specJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to create libopenapi document: %w", err)
	}
	if _, err := document.BuildV3Model(); err != nil {
		return nil, fmt.Errorf("failed to build v3 model (validation error): %w", err)
	}

	return specJSON, nil
}

func operationSpec(op apiOperation) map[string]any {
	contentType := op.contentType
	if contentType == "" {
		contentType = "application/json"
	}

	responses := map[string]any{
		op.status: map[string]any{
			"description": op.summary,
			"content": map[string]any{
				contentType: map[string]any{"schema": ref(op.response)},
			},
		},
	}
	for _, code := range op.errors {
		responses[code] = map[string]any{
			"description": errorDescriptions[code],
			"content": map[string]any{
				"application/json": map[string]any{"schema": ref("ErrorResponse")},
			},
		}
	}

	spec := map[string]any{
		"operationId": op.id,
		"summary":     op.summary,
		"responses":   responses,
	}
	if params := pathParameters(op.path); len(params) > 0 {
		spec["parameters"] = params
	}
	if op.request != "" {
		spec["requestBody"] = map[string]any{
			"required": true,
			"content": map[string]any{
				"application/json": map[string]any{"schema": ref(op.request)},
			},
		}
	}
	return spec
}

func pathParameters(path string) []map[string]any {
	var params []map[string]any
	for _, segment := range strings.Split(path, "/") {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			params = append(params, map[string]any{
				"name":     strings.Trim(segment, "{}"),
				"in":       "path",
				"required": true,
				"schema":   map[string]any{"type": "string"},
			})
		}
	}
	return params
}

func describeTemplates(list []templates.Template) string {
	var b strings.Builder
	b.WriteString("Plans geospatial queries as editable chain-of-thought workflows. ")
	b.WriteString("A query selects the first template whose keyword it contains (case-insensitive):\n")
	for i, tmpl := range list {
		b.WriteString(fmt.Sprintf("\n%d. %s: %s", i+1, tmpl.Name, strings.Join(tmpl.Keywords, ", ")))
	}
	return b.String()
}

func ref(name string) map[string]any {
	return map[string]any{"$ref": "#/components/schemas/" + name}
}

func obj(required []string, props map[string]any) map[string]any {
	schema := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str(enum ...string) map[string]any {
	schema := map[string]any{"type": "string"}
	if len(enum) > 0 {
		schema["enum"] = enum
	}
	return schema
}

func envelope(field string, schema map[string]any) map[string]any {
	return obj([]string{"success", field}, map[string]any{
		"success": map[string]any{"type": "boolean", "example": true},
		field:     schema,
	})
}

func componentSchemas() map[string]any {
	number := map[string]any{"type": "number"}
	array := func(items map[string]any) map[string]any {
		return map[string]any{"type": "array", "items": items}
	}

	return map[string]any{
		"StepResult": obj([]string{"message", "data"}, map[string]any{
			"message": str(), "data": str(),
		}),
		"WorkflowStep": obj([]string{"id", "operation", "status", "editable"}, map[string]any{
			"id":          str(),
			"operation":   str(),
			"input":       str(),
			"parameters":  map[string]any{"type": "object", "additionalProperties": true},
			"explanation": str(),
			"status":      str("pending", "executing", "completed", "error"),
			"result":      ref("StepResult"),
			"editable":    map[string]any{"type": "boolean"},
		}),
		"QuerySession": obj([]string{"id", "query", "created_at", "steps", "status"}, map[string]any{
			"id":         str(),
			"query":      str(),
			"created_at": map[string]any{"type": "string", "format": "date-time"},
			"steps":      array(ref("WorkflowStep")),
			"status":     str("processing", "completed", "error"),
		}),
		"MapLayerDescriptor": obj([]string{"id", "name", "type", "data", "visible", "color"}, map[string]any{
			"id":         str(),
			"name":       str(),
			"type":       str("flood-risk", "green-space", "heat-island", "urban-boundary"),
			"data":       map[string]any{"type": "object", "description": "GeoJSON FeatureCollection"},
			"visible":    map[string]any{"type": "boolean"},
			"color":      str(),
			"session_id": str(),
			"created_at": map[string]any{"type": "string", "format": "date-time"},
		}),
		"Coordinates": obj([]string{"lat", "lng"}, map[string]any{"lat": number, "lng": number}),
		"LayerClick": obj([]string{"layer_id", "name", "type", "coordinates"}, map[string]any{
			"layer_id":    str(),
			"name":        str(),
			"type":        str(),
			"coordinates": ref("Coordinates"),
			"session_id":  str(),
		}),
		"Event": obj([]string{"type", "session_id", "at"}, map[string]any{
			"type":       str("session_created", "step_updated", "workflow_started", "session_completed", "layer_added"),
			"session_id": str(),
			"session":    ref("QuerySession"),
			"step":       ref("WorkflowStep"),
			"layer":      ref("MapLayerDescriptor"),
			"at":         map[string]any{"type": "string", "format": "date-time"},
		}),
		"SubmitQueryRequest": obj([]string{"query"}, map[string]any{
			"query": map[string]any{"type": "string", "maxLength": 2000, "example": "Find flood-risk zones near Sabarmati River"},
		}),
		"EditStepRequest": obj(nil, map[string]any{
			"parameters":  map[string]any{"type": "object", "additionalProperties": true},
			"input":       str(),
			"explanation": str(),
		}),
		"LayerClickRequest": obj([]string{"lat", "lng"}, map[string]any{
			"lat": map[string]any{"type": "number", "minimum": -90, "maximum": 90},
			"lng": map[string]any{"type": "number", "minimum": -180, "maximum": 180},
		}),
		"SessionResponse":    envelope("session", ref("QuerySession")),
		"SessionsResponse":   envelope("sessions", array(ref("QuerySession"))),
		"StepResponse":       envelope("step", ref("WorkflowStep")),
		"LayersResponse":     envelope("layers", array(ref("MapLayerDescriptor"))),
		"LayerClickResponse": envelope("click", ref("LayerClick")),
		"MapResponse":        envelope("map", map[string]any{"type": "object"}),
		"TemplatesResponse":  envelope("templates", array(map[string]any{"type": "object"})),
		"HealthResponse": obj([]string{"success", "version"}, map[string]any{
			"success": map[string]any{"type": "boolean"}, "version": str(),
		}),
		"ErrorResponse": obj([]string{"success", "code", "error"}, map[string]any{
			"success": map[string]any{"type": "boolean", "example": false},
			"code":    str(),
			"error":   str(),
			"details": array(map[string]any{"type": "object"}),
		}),
	}
}

// handleDocs serves the OpenAPI document, rebuilt per request so reloaded templates show up
func handleDocs(api handlers.WorkflowAPI, version string) http.HandlerFunc {
	base := handlers.NewBaseHandler("docs")
	return func(w http.ResponseWriter, r *http.Request) {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		specJSON, err := GenerateOpenAPISpec(api.Templates(), version, fmt.Sprintf("%s://%s", scheme, r.Host))
		if err != nil {
			base.WriteError(w, r, apperrors.WrapError(apperrors.ErrCodeInternalError, "failed to generate OpenAPI document", err))
			return
		}

		var doc map[string]any
		if err := json.Unmarshal(specJSON, &doc); err != nil {
			base.WriteError(w, r, apperrors.WrapError(apperrors.ErrCodeInternalError, "failed to format OpenAPI document", err))
			return
		}
		base.WriteJSON(w, http.StatusOK, doc)
	}
}
