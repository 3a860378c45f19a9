package server

type RuntimeOption func(*Runtime)

// WithTelemetry toggles OpenTelemetry provider setup on start
func WithTelemetry(enabled bool) RuntimeOption {
	return func(r *Runtime) {
		r.telemetry = enabled
	}
}
