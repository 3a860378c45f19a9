package templates

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/geoflow/geoflow/core/domain"
	"github.com/geoflow/geoflow/core/infrastructure/logging"
)

// Selector maps free-text queries to workflow steps
type Selector struct {
	mu    sync.RWMutex
	table *Table
	path  string
	newID func() string
}

// NewSelector creates a selector over the built-in table
func NewSelector() *Selector {
	table, err := ParseTable(builtinTable)
	if err != nil {
		// The embedded table is covered by tests.
		panic(err)
	}
	return &Selector{table: table, newID: uuid.NewString}
}

// LoadSelector creates a selector over the table at path, or the built-in table when path is empty
func LoadSelector(path string) (*Selector, error) {
	table, err := LoadTable(path)
	if err != nil {
		return nil, err
	}
	return &Selector{table: table, path: path, newID: uuid.NewString}, nil
}

// Select returns fresh pending steps for the first template whose keyword
// occurs in query, matching case-insensitively. No match yields an empty slice.
func (s *Selector) Select(query string) []domain.WorkflowStep {
	s.mu.RLock()
	tmpl, ok := s.table.match(query)
	s.mu.RUnlock()
	if !ok {
		return []domain.WorkflowStep{}
	}

	steps := make([]domain.WorkflowStep, len(tmpl.Steps))
	for i, st := range tmpl.Steps {
		steps[i] = domain.WorkflowStep{
			ID:          s.newID(),
			Operation:   st.Operation,
			Input:       st.Input,
			Parameters:  cloneParams(st.Parameters),
			Explanation: st.Explanation,
			Status:      domain.StepPending,
			Editable:    true,
		}
	}
	return steps
}

// TemplateName returns the name of the template query selects, or "" when none matches
func (s *Selector) TemplateName(query string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, _ := s.table.match(query)
	return tmpl.Name
}

// Templates returns a copy of the table in match order
func (s *Selector) Templates() []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Template, len(s.table.Templates))
	for i, tmpl := range s.table.Templates {
		out[i] = Template{
			Name:     tmpl.Name,
			Keywords: append([]string(nil), tmpl.Keywords...),
			Steps:    make([]StepTemplate, len(tmpl.Steps)),
		}
		for j, st := range tmpl.Steps {
			st.Parameters = cloneParams(st.Parameters)
			out[i].Steps[j] = st
		}
	}
	return out
}

// Path returns the file the table was loaded from, "" for the built-in table
func (s *Selector) Path() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.path
}

// Reload re-reads the table from the selector's path.
// On error the current table stays in place.
func (s *Selector) Reload() error {
	log := logging.New("templates")

	path := s.Path()
	table, err := LoadTable(path)
	if err != nil {
		log.Warnf("Template reload failed, keeping current table: %v", err)
		return err
	}

	s.mu.Lock()
	s.table = table
	s.mu.Unlock()

	names := make([]string, len(table.Templates))
	for i, tmpl := range table.Templates {
		names[i] = tmpl.Name
	}
	log.Infof("Templates reloaded: %s", strings.Join(names, ", "))
	return nil
}

func cloneParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
