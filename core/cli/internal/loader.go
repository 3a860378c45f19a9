package internal

import (
	"os"

	"github.com/geoflow/geoflow/core/config"
	"github.com/geoflow/geoflow/core/logger"
)

// LoadConfig loads the config file at filePath. A missing default file falls
// back to built-in settings; an explicitly named file must exist.
func LoadConfig(filePath string, explicit bool) (*config.Config, error) {
	if filePath == "" {
		filePath = config.DefaultFile
	}
	return config.Load(filePath, !explicit)
}

// ResolvePort resolves the port from CLI flag, config file, env var, or default
func ResolvePort(cliPort string, cfg *config.Config) string {
	if cliPort != "" {
		return cliPort
	}
	if cfg != nil && cfg.Server.Port != "" {
		return cfg.Server.Port
	}
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8080"
}

// ResolveLogLevel resolves the log level from verbose flag, CLI flag, config file, or default
func ResolveLogLevel(verbose bool, cliLogLevel int, cfg *config.Config) int {
	if verbose {
		return logger.LogLevelDebug
	}
	if cliLogLevel > 0 {
		return cliLogLevel
	}
	if cfg != nil && cfg.Server.LogLevel > 0 {
		return cfg.Server.LogLevel
	}
	return logger.LogLevelInfo
}
