package observability

import (
	"strings"
)

const (
	AttrServiceName    = "service.name"
	AttrServiceVersion = "service.version"
	AttrDeploymentEnv  = "deployment.environment"
	AttrTraceID        = "trace_id"
	AttrSpanID         = "span_id"
	AttrHTTPMethod     = "http.request.method"
	AttrHTTPRoute      = "http.route"
	AttrHTTPStatusCode = "http.response.status_code"
	AttrErrorType      = "error.type"

	AttrSessionID     = "geoflow.session.id"
	AttrStepID        = "geoflow.step.id"
	AttrStepStatus    = "geoflow.step.status"
	AttrTemplateName  = "geoflow.template.name"
	AttrLayerCategory = "geoflow.layer.category"
	AttrStoreBackend  = "geoflow.store.backend"
)

var secretKeySubstrings = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"connection_string",
	"dsn",
	"redis_url",
	"postgres_url",
}

// RedactAttributeValue masks values for known-sensitive attribute keys.
func RedactAttributeValue(key string, value string) string {
	if value == "" {
		return value
	}
	lower := strings.ToLower(key)
	for _, needle := range secretKeySubstrings {
		if strings.Contains(lower, needle) {
			return "[REDACTED]"
		}
	}
	return value
}
