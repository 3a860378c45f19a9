package driver

import (
	"context"
	"time"

	"github.com/geoflow/geoflow/core/application/templates"
	"github.com/geoflow/geoflow/core/domain"
	"github.com/geoflow/geoflow/core/observability"
	apperrors "github.com/geoflow/geoflow/core/shared/errors"
)

// command is a message consumed by the driver loop. User intents carry a
// reply channel; internal events from step runs and timers do not.
type command interface {
	isCommand()
}

type result[T any] struct {
	val T
	err error
}

type submitQuery struct {
	query string
	reply chan result[*domain.QuerySession]
}

type editStep struct {
	sessionID string
	stepID    string
	update    domain.StepUpdate
	reply     chan result[domain.WorkflowStep]
}

type executeStep struct {
	sessionID string
	stepID    string
	reply     chan result[domain.WorkflowStep]
}

type executeWorkflow struct {
	sessionID string
	reply     chan result[*domain.QuerySession]
}

// inspect runs a read-only function against the state inside the loop
type inspect struct {
	fn   func(*State)
	done chan struct{}
}

type stepFinished struct {
	sessionID string
	stepID    string
	started   time.Time
	result    *domain.StepResult
	err       error
}

type workflowFinished struct {
	sessionID string
	started   time.Time
}

func (submitQuery) isCommand()      {}
func (editStep) isCommand()         {}
func (executeStep) isCommand()      {}
func (executeWorkflow) isCommand()  {}
func (inspect) isCommand()          {}
func (stepFinished) isCommand()     {}
func (workflowFinished) isCommand() {}

// handle is the single state-update function. It runs only on the loop goroutine.
func (d *Driver) handle(cmd command) {
	switch c := cmd.(type) {
	case submitQuery:
		session, err := d.submit(c.query)
		c.reply <- result[*domain.QuerySession]{session, err}
	case editStep:
		step, err := d.edit(c.sessionID, c.stepID, c.update)
		c.reply <- result[domain.WorkflowStep]{step, err}
	case executeStep:
		step, err := d.executeStep(c.sessionID, c.stepID)
		c.reply <- result[domain.WorkflowStep]{step, err}
	case executeWorkflow:
		session, err := d.executeWorkflow(c.sessionID)
		c.reply <- result[*domain.QuerySession]{session, err}
	case inspect:
		c.fn(d.state)
		close(c.done)
	case stepFinished:
		d.finishStep(c)
	case workflowFinished:
		d.finishWorkflow(c)
	default:
		d.log.Warnf("Ignoring unknown command %T", cmd)
	}
}

func (d *Driver) submit(query string) (*domain.QuerySession, error) {
	session := &domain.QuerySession{
		ID:        d.newID(),
		Query:     query,
		CreatedAt: d.now(),
		Steps:     d.selector.Select(query),
		Status:    domain.SessionProcessing,
	}
	d.state.addSession(session)

	if len(session.Steps) == 0 {
		d.log.Infof("Query matched no workflow template, session %s has no steps", session.ID)
	} else {
		d.log.Debugf("Session %s created with %d step(s)", session.ID, len(session.Steps))
	}

	d.persistSession(session)
	snapshot := session.Clone()
	d.publish(Event{Type: EventSessionCreated, SessionID: session.ID, Session: snapshot})
	return session.Clone(), nil
}

func (d *Driver) edit(sessionID, stepID string, update domain.StepUpdate) (domain.WorkflowStep, error) {
	session, idx, err := d.state.step(sessionID, stepID)
	if err != nil {
		return domain.WorkflowStep{}, err
	}
	if session.Status == domain.SessionCompleted {
		return domain.WorkflowStep{}, apperrors.Newf(apperrors.ErrCodeSessionCompleted, "session '%s' is completed and can no longer be edited", sessionID)
	}

	step := &session.Steps[idx]
	if !step.Editable {
		return domain.WorkflowStep{}, apperrors.Newf(apperrors.ErrCodeStepNotEditable, "step '%s' is not editable", stepID)
	}
	if d.cfg.StrictEdits && step.Status != domain.StepPending {
		return domain.WorkflowStep{}, apperrors.Newf(apperrors.ErrCodeStepNotPending, "step '%s' is %s; only pending steps can be edited", stepID, step.Status)
	}
	if err := domain.ValidateParameters(update.Parameters); err != nil {
		return domain.WorkflowStep{}, apperrors.WrapError(apperrors.ErrCodeInvalidInput, "invalid step parameters", err)
	}

	step.Apply(update)
	d.log.Debugf("Step %s (%s) updated", step.ID, step.Operation)

	d.persistSession(session)
	snapshot := step.Clone()
	d.publish(Event{Type: EventStepUpdated, SessionID: sessionID, Step: &snapshot})
	return step.Clone(), nil
}

func (d *Driver) executeStep(sessionID, stepID string) (domain.WorkflowStep, error) {
	session, idx, err := d.state.step(sessionID, stepID)
	if err != nil {
		return domain.WorkflowStep{}, err
	}
	if session.Status == domain.SessionCompleted {
		return domain.WorkflowStep{}, apperrors.Newf(apperrors.ErrCodeSessionCompleted, "session '%s' is already completed", sessionID)
	}
	if err := d.startStep(session, idx); err != nil {
		return domain.WorkflowStep{}, err
	}
	d.persistSession(session)
	return session.Steps[idx].Clone(), nil
}

func (d *Driver) executeWorkflow(sessionID string) (*domain.QuerySession, error) {
	session, err := d.state.session(sessionID)
	if err != nil {
		return nil, err
	}
	switch {
	case session.Status == domain.SessionCompleted:
		return nil, apperrors.Newf(apperrors.ErrCodeSessionCompleted, "session '%s' is already completed", sessionID)
	case len(session.Steps) == 0:
		return nil, apperrors.Newf(apperrors.ErrCodeEmptyWorkflow, "session '%s' has no workflow steps to execute", sessionID)
	case d.state.dispatched[sessionID]:
		return nil, apperrors.Newf(apperrors.ErrCodeWorkflowAlreadyRunning, "workflow for session '%s' is already running", sessionID)
	}

	pending := session.PendingSteps()
	for _, stepID := range pending {
		// Pending was checked above, so startStep cannot fail here.
		_ = d.startStep(session, session.Step(stepID))
	}
	d.state.dispatched[sessionID] = true
	d.log.Infof("Workflow for session %s dispatched (%d step(s) started)", sessionID, len(pending))

	started := d.now()
	d.spawn(func(ctx context.Context) {
		timer := time.NewTimer(d.cfg.WorkflowDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
			d.post(workflowFinished{sessionID: sessionID, started: started})
		case <-ctx.Done():
		}
	})

	d.persistSession(session)
	d.publish(Event{Type: EventWorkflowStarted, SessionID: sessionID, Session: session.Clone()})
	return session.Clone(), nil
}

// startStep moves a pending step to executing and launches its run
func (d *Driver) startStep(session *domain.QuerySession, idx int) error {
	step := &session.Steps[idx]
	if step.Status != domain.StepPending {
		return apperrors.Newf(apperrors.ErrCodeStepNotPending, "step '%s' is %s; only pending steps can be executed", step.ID, step.Status)
	}
	step.Status = domain.StepExecuting

	snapshot := step.Clone()
	sessionID := session.ID
	started := d.now()
	d.log.Debugf("Step %s (%s) executing", step.ID, step.Operation)
	d.publish(Event{Type: EventStepUpdated, SessionID: sessionID, Step: &snapshot})

	d.spawn(func(ctx context.Context) {
		future := Go(ctx, d.runner, snapshot)
		select {
		case <-future.Done():
		case <-ctx.Done():
			<-future.Done()
			return
		}
		res, err := future.Result()
		if ctx.Err() != nil {
			return
		}
		d.post(stepFinished{sessionID: sessionID, stepID: snapshot.ID, started: started, result: res, err: err})
	})
	return nil
}

func (d *Driver) finishStep(ev stepFinished) {
	session, idx, err := d.state.step(ev.sessionID, ev.stepID)
	if err != nil {
		d.log.Warnf("Dropping step result: %v", err)
		return
	}
	step := &session.Steps[idx]
	if step.Status != domain.StepExecuting {
		return
	}

	if ev.err != nil {
		step.Status = domain.StepError
		step.Result = nil
		d.log.Warnf("Step %s (%s) failed: %v", step.ID, step.Operation, ev.err)
	} else {
		step.Status = domain.StepCompleted
		step.Result = ev.result
		d.log.Debugf("Step %s (%s) completed", step.ID, step.Operation)
	}
	observability.RecordStepFinished(d.ctx, string(step.Status), msSince(d.now(), ev.started))

	d.persistSession(session)
	snapshot := step.Clone()
	d.publish(Event{Type: EventStepUpdated, SessionID: session.ID, Step: &snapshot})
}

func (d *Driver) finishWorkflow(ev workflowFinished) {
	session, err := d.state.session(ev.sessionID)
	if err != nil {
		d.log.Warnf("Dropping workflow completion: %v", err)
		return
	}
	delete(d.state.dispatched, session.ID)
	session.Status = domain.SessionCompleted

	spec := templates.ClassifyLayer(session.Query)
	layer := domain.MapLayerDescriptor{
		ID:        d.newID(),
		Name:      spec.Name,
		Category:  spec.Category,
		Geometry:  domain.EmptyGeometry(),
		Visible:   true,
		Color:     spec.Color,
		SessionID: session.ID,
		CreatedAt: d.now(),
	}
	d.state.layers = append(d.state.layers, layer)

	d.log.Infof("Session %s completed, added layer %q (%s)", session.ID, layer.Name, layer.Category)
	observability.RecordWorkflowCompleted(d.ctx, string(layer.Category), msSince(d.now(), ev.started))

	d.persistSession(session)
	d.persistLayer(layer)
	d.publish(Event{Type: EventSessionCompleted, SessionID: session.ID, Session: session.Clone()})
	d.publish(Event{Type: EventLayerAdded, SessionID: session.ID, Layer: &layer})
}

func msSince(now, start time.Time) float64 {
	return float64(now.Sub(start).Microseconds()) / 1000
}
