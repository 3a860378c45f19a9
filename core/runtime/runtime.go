package runtime

import (
	"github.com/geoflow/geoflow/core/runtime/server"
)

// Runtime represents the GeoFlow runtime server
// This is the main entry point for the runtime package
type Runtime = server.Runtime

// RuntimeOption configures a Runtime
type RuntimeOption = server.RuntimeOption

// NewRuntime creates a new runtime instance
var NewRuntime = server.NewRuntime

// WithTelemetry toggles OpenTelemetry setup
var WithTelemetry = server.WithTelemetry
