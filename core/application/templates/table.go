package templates

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/geoflow/geoflow/core/domain"
)

//go:embed templates.yaml
var builtinTable []byte

var validate = validator.New()

// Table is the ordered keyword-to-workflow table
type Table struct {
	Templates []Template `yaml:"templates" json:"templates" validate:"dive"`
}

// Template is one workflow selected when any of its keywords occurs in the query
type Template struct {
	Name     string         `yaml:"name" json:"name" validate:"required"`
	Keywords []string       `yaml:"keywords" json:"keywords" validate:"required,min=1,dive,required"`
	Steps    []StepTemplate `yaml:"steps" json:"steps" validate:"required,min=1,dive"`
}

// StepTemplate is the constant part of a workflow step
type StepTemplate struct {
	Operation   string         `yaml:"operation" json:"operation" validate:"required"`
	Input       string         `yaml:"input" json:"input"`
	Parameters  map[string]any `yaml:"parameters" json:"parameters"`
	Explanation string         `yaml:"explanation" json:"explanation"`
}

// ParseTable decodes and validates a template table document
func ParseTable(data []byte) (*Table, error) {
	var table Table
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to unmarshal template YAML: %w", err)
	}
	if err := validate.Struct(&table); err != nil {
		return nil, fmt.Errorf("invalid template table: %w", err)
	}

	seen := make(map[string]bool, len(table.Templates))
	for i := range table.Templates {
		tmpl := &table.Templates[i]
		if seen[tmpl.Name] {
			return nil, fmt.Errorf("template '%s' is defined more than once", tmpl.Name)
		}
		seen[tmpl.Name] = true

		for k, keyword := range tmpl.Keywords {
			tmpl.Keywords[k] = strings.ToLower(strings.TrimSpace(keyword))
		}
		for _, step := range tmpl.Steps {
			if err := domain.ValidateParameters(step.Parameters); err != nil {
				return nil, fmt.Errorf("template '%s' step '%s': %w", tmpl.Name, step.Operation, err)
			}
		}
	}
	return &table, nil
}

// LoadTable reads a template table from path. An empty path yields the built-in table.
func LoadTable(path string) (*Table, error) {
	if path == "" {
		return ParseTable(builtinTable)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading template file: %w", err)
	}
	table, err := ParseTable(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}

// match returns the first template with a keyword contained in query
func (t *Table) match(query string) (Template, bool) {
	lower := strings.ToLower(query)
	for _, tmpl := range t.Templates {
		for _, keyword := range tmpl.Keywords {
			if strings.Contains(lower, keyword) {
				return tmpl, true
			}
		}
	}
	return Template{}, false
}
