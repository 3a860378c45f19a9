// Package config loads geoflow.yaml: the server, workflow timing, template
// table, store backend and map settings.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file used when none is given
const DefaultFile = "geoflow.yaml"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Workflow  WorkflowConfig  `yaml:"workflow"`
	Templates TemplatesConfig `yaml:"templates"`
	Store     StoreConfig     `yaml:"store"`
	Map       MapConfig       `yaml:"map"`

	// path is the file the config was read from, "" for defaults
	path string
}

type ServerConfig struct {
	Port      string          `yaml:"port" validate:"omitempty,numeric"`
	LogLevel  int             `yaml:"log_level" validate:"gte=0,lte=4"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Requests int           `yaml:"requests" validate:"gte=0"`
	Window   time.Duration `yaml:"window" validate:"gte=0"`
}

type WorkflowConfig struct {
	StepDelay     time.Duration `yaml:"step_delay" validate:"gte=0"`
	WorkflowDelay time.Duration `yaml:"workflow_delay" validate:"gte=0"`
	StrictEdits   bool          `yaml:"strict_edits"`
}

type TemplatesConfig struct {
	File string `yaml:"file"`
}

type StoreConfig struct {
	Backend     string `yaml:"backend" validate:"omitempty,oneof=memory redis postgres"`
	RedisURL    string `yaml:"redis_url" validate:"required_if=Backend redis"`
	PostgresURL string `yaml:"postgres_url" validate:"required_if=Backend postgres"`
	KeyPrefix   string `yaml:"key_prefix"`
}

type MapConfig struct {
	CenterLat float64 `yaml:"center_lat" validate:"gte=-90,lte=90"`
	CenterLng float64 `yaml:"center_lng" validate:"gte=-180,lte=180"`
	Zoom      int     `yaml:"zoom" validate:"gte=1,lte=19"`
}

var (
	validate      = validator.New()
	envVarPattern = regexp.MustCompile(`\{\{\s*env\.(\w+)\s*\}\}`)
)

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			RateLimit: RateLimitConfig{Requests: 60, Window: time.Minute},
		},
		Workflow: WorkflowConfig{
			StepDelay:     2 * time.Second,
			WorkflowDelay: 3 * time.Second,
		},
		Store: StoreConfig{
			Backend:   "memory",
			KeyPrefix: "geoflow",
		},
		Map: MapConfig{
			CenterLat: 23.0225,
			CenterLng: 72.5714,
			Zoom:      12,
		},
	}
}

// Path returns the file the config was loaded from
func (c *Config) Path() string {
	return c.path
}

// Load reads and validates the config file at path. When optional is set and
// the file does not exist, defaults are returned instead of an error.
func Load(path string, optional bool) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.path = path

	// A relative template file is relative to the config file
	if cfg.Templates.File != "" && !filepath.IsAbs(cfg.Templates.File) {
		cfg.Templates.File = filepath.Join(filepath.Dir(path), cfg.Templates.File)
	}
	return cfg, nil
}

// Parse substitutes {{ env.NAME }} placeholders, decodes content over the
// defaults and validates the result.
func Parse(content []byte) (*Config, error) {
	expanded, err := substituteEnvVars(string(content))
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field requirements
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Server.RateLimit.Enabled {
		if c.Store.RedisURL == "" {
			return fmt.Errorf("invalid config: server.rate_limit requires store.redis_url")
		}
		if c.Server.RateLimit.Requests <= 0 || c.Server.RateLimit.Window <= 0 {
			return fmt.Errorf("invalid config: server.rate_limit needs positive requests and window")
		}
	}
	return nil
}

func substituteEnvVars(value string) (string, error) {
	var missing []string
	result := envVarPattern.ReplaceAllStringFunc(value, func(placeholder string) string {
		name := envVarPattern.FindStringSubmatch(placeholder)[1]
		envValue, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
			return placeholder
		}
		return envValue
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable '%s' not found", missing[0])
	}
	return result, nil
}
