package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/geoflow/geoflow/core/application/templates"
	"github.com/geoflow/geoflow/core/config"
	"github.com/geoflow/geoflow/core/logger"
	"github.com/geoflow/geoflow/core/observability"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:           "validate [path]",
	Short:         "Validate a GeoFlow config and its workflow templates",
	RunE:          validateConfig,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	log := logger.New("validate")
	if err := resolvePathArg("validate", args); err != nil {
		return err
	}
	if configFile == "" {
		configFile = config.DefaultFile
	}

	loadEnvFiles(configFile)
	cfg, err := config.Load(configFile, false)
	if err != nil {
		return log.Errorf("validation failed: %w", err)
	}
	selector, err := templates.LoadSelector(cfg.Templates.File)
	if err != nil {
		return log.Errorf("validation failed: %w", err)
	}

	printValidationSummary(log, cfg, selector)
	log.Successf("Configuration is valid: %s", configFile)
	return nil
}

func printValidationSummary(log *logger.Logger, cfg *config.Config, selector *templates.Selector) {
	log.Infof("Validation report:")
	log.Infof("  root config: %s", cfg.Path())
	log.Infof("  store: %s", describeStore(cfg.Store))
	log.Infof("  step delay: %s", cfg.Workflow.StepDelay)
	log.Infof("  workflow delay: %s", cfg.Workflow.WorkflowDelay)
	log.Infof("  strict edits: %t", cfg.Workflow.StrictEdits)
	if cfg.Server.RateLimit.Enabled {
		log.Infof("  rate limit: %d per %s", cfg.Server.RateLimit.Requests, cfg.Server.RateLimit.Window)
	}

	source := selector.Path()
	if source == "" {
		source = "built-in"
	}
	list := selector.Templates()
	log.Infof("  templates (%d, %s):", len(list), source)
	for _, tmpl := range list {
		log.Infof("    - %s: %d step(s)", tmpl.Name, len(tmpl.Steps))
	}
}

// describeStore summarizes the store settings with connection strings masked
func describeStore(sc config.StoreConfig) string {
	backend := sc.Backend
	if backend == "" {
		backend = "memory"
	}
	switch backend {
	case "redis":
		return fmt.Sprintf("redis (redis_url %s, prefix %s)", observability.RedactAttributeValue("store.redis_url", sc.RedisURL), sc.KeyPrefix)
	case "postgres":
		return fmt.Sprintf("postgres (postgres_url %s)", observability.RedactAttributeValue("store.postgres_url", sc.PostgresURL))
	}
	return backend
}
