package domain

import (
	"fmt"
	"maps"
	"time"
)

// StepStatus is the lifecycle state of a single workflow step
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepExecuting StepStatus = "executing"
	StepCompleted StepStatus = "completed"
	// StepError is declared for completeness. The built-in step runner never fails.
	StepError StepStatus = "error"
)

// Terminal reports whether no further transition leaves this status
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepError
}

// SessionStatus is the aggregate status of a query session
type SessionStatus string

const (
	SessionProcessing SessionStatus = "processing"
	SessionCompleted  SessionStatus = "completed"
	SessionError      SessionStatus = "error"
)

// Placeholder result attached to every completed step
const (
	PlaceholderMessage = "Step completed successfully"
	PlaceholderData    = "sample_output.geojson"
)

// StepResult is the payload attached to a completed step
type StepResult struct {
	Message string `json:"message"`
	Data    string `json:"data"`
}

// PlaceholderResult returns the constant result every step completes with,
// independent of the step's operation or parameters.
func PlaceholderResult() *StepResult {
	return &StepResult{Message: PlaceholderMessage, Data: PlaceholderData}
}

// WorkflowStep is one unit of a displayed analysis plan
type WorkflowStep struct {
	ID          string         `json:"id"`
	Operation   string         `json:"operation"`
	Input       string         `json:"input"`
	Parameters  map[string]any `json:"parameters"`
	Explanation string         `json:"explanation"`
	Status      StepStatus     `json:"status"`
	Result      *StepResult    `json:"result,omitempty"`
	Editable    bool           `json:"editable"`
}

// Clone returns a deep copy of the step
func (s WorkflowStep) Clone() WorkflowStep {
	out := s
	out.Parameters = maps.Clone(s.Parameters)
	if out.Parameters == nil {
		out.Parameters = map[string]any{}
	}
	if s.Result != nil {
		result := *s.Result
		out.Result = &result
	}
	return out
}

// StepUpdate carries the fields a user may change on a step.
// Nil fields are left untouched; parameter keys are merged.
type StepUpdate struct {
	Parameters  map[string]any
	Input       *string
	Explanation *string
}

// Empty reports whether the update changes nothing
func (u StepUpdate) Empty() bool {
	return len(u.Parameters) == 0 && u.Input == nil && u.Explanation == nil
}

// Apply merges the update into the step. Applying the same update twice
// leaves the step exactly as applying it once.
func (s *WorkflowStep) Apply(u StepUpdate) {
	if s.Parameters == nil {
		s.Parameters = make(map[string]any, len(u.Parameters))
	}
	maps.Copy(s.Parameters, u.Parameters)
	if u.Input != nil {
		s.Input = *u.Input
	}
	if u.Explanation != nil {
		s.Explanation = *u.Explanation
	}
}

// ValidateParameters checks that every value is a scalar
func ValidateParameters(params map[string]any) error {
	for key, value := range params {
		if key == "" {
			return &DomainError{Message: "parameter name cannot be empty"}
		}
		if !isScalar(value) {
			return &DomainError{Message: fmt.Sprintf("parameter '%s' must be a string, number or boolean", key)}
		}
	}
	return nil
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	default:
		return false
	}
}

// QuerySession is one user question together with its generated workflow
type QuerySession struct {
	ID        string         `json:"id"`
	Query     string         `json:"query"`
	CreatedAt time.Time      `json:"created_at"`
	Steps     []WorkflowStep `json:"steps"`
	Status    SessionStatus  `json:"status"`
}

// Clone returns a deep copy of the session
func (q *QuerySession) Clone() *QuerySession {
	if q == nil {
		return nil
	}
	out := *q
	out.Steps = make([]WorkflowStep, len(q.Steps))
	for i, step := range q.Steps {
		out.Steps[i] = step.Clone()
	}
	return &out
}

// Step returns the index of the step with the given ID, or -1
func (q *QuerySession) Step(stepID string) int {
	for i := range q.Steps {
		if q.Steps[i].ID == stepID {
			return i
		}
	}
	return -1
}

// PendingSteps returns the IDs of steps still in pending state, in order
func (q *QuerySession) PendingSteps() []string {
	var ids []string
	for _, step := range q.Steps {
		if step.Status == StepPending {
			ids = append(ids, step.ID)
		}
	}
	return ids
}
