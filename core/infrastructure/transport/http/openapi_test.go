package http

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoflow/geoflow/core/application/templates"
)

func TestGenerateOpenAPISpec(t *testing.T) {
	specJSON, err := GenerateOpenAPISpec(templates.NewSelector().Templates(), "1.2.3", "http://localhost:8080")
	require.NoError(t, err)

	var doc struct {
		OpenAPI string `json:"openapi"`
		Info    struct {
			Version     string `json:"version"`
			Description string `json:"description"`
		} `json:"info"`
		Paths map[string]map[string]struct {
			OperationID string         `json:"operationId"`
			Parameters  []any          `json:"parameters"`
			Responses   map[string]any `json:"responses"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(specJSON, &doc))

	assert.Equal(t, "3.0.0", doc.OpenAPI)
	assert.Equal(t, "1.2.3", doc.Info.Version)
	assert.Contains(t, doc.Info.Description, "1. flood-analysis")

	edit := doc.Paths["/api/sessions/{sessionID}/steps/{stepID}"]["patch"]
	assert.Equal(t, "editStep", edit.OperationID)
	assert.Len(t, edit.Parameters, 2)
	assert.Contains(t, edit.Responses, "409")

	assert.Equal(t, "submitQuery", doc.Paths["/api/sessions"]["post"].OperationID)
	assert.Equal(t, "listSessions", doc.Paths["/api/sessions"]["get"].OperationID)
	assert.Contains(t, doc.Paths["/api/sessions/{sessionID}/execute"]["post"].Responses, "202")
}

func TestRoutes_Docs(t *testing.T) {
	ts := newTestAPI(t)

	resp, err := ts.Client().Get(ts.URL + "/docs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	servers, ok := doc["servers"].([]any)
	require.True(t, ok)
	require.Len(t, servers, 1)
	assert.Equal(t, ts.URL, servers[0].(map[string]any)["url"])
}
