package driver

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/geoflow/geoflow/core/domain"
	"github.com/geoflow/geoflow/core/domain/interfaces"
	"github.com/geoflow/geoflow/core/infrastructure/logging"
	apperrors "github.com/geoflow/geoflow/core/shared/errors"
)

const (
	DefaultStepDelay      = 2 * time.Second
	DefaultWorkflowDelay  = 3 * time.Second
	DefaultPersistTimeout = 5 * time.Second

	commandQueueSize = 128
)

// ErrStopped is returned for calls made after the driver stopped
var ErrStopped = apperrors.NewAppError(apperrors.ErrCodeUnavailable, "workflow driver is not running", nil)

// Config holds the driver's timing and edit policy
type Config struct {
	StepDelay      time.Duration
	WorkflowDelay  time.Duration
	StrictEdits    bool
	PersistTimeout time.Duration
}

// DefaultConfig returns the stock delays with lenient edits
func DefaultConfig() Config {
	return Config{
		StepDelay:      DefaultStepDelay,
		WorkflowDelay:  DefaultWorkflowDelay,
		PersistTimeout: DefaultPersistTimeout,
	}
}

// Selector produces the initial steps for a query
type Selector interface {
	Select(query string) []domain.WorkflowStep
}

// Option configures a Driver
type Option func(*Driver)

// WithStore persists state changes to s and restores from it on Start
func WithStore(s interfaces.SessionStore) Option {
	return func(d *Driver) {
		d.store = s
	}
}

// WithRunner replaces the default delay runner
func WithRunner(r StepRunner) Option {
	return func(d *Driver) {
		d.runner = r
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// WithIDGenerator overrides session and layer ID generation
func WithIDGenerator(newID func() string) Option {
	return func(d *Driver) {
		d.newID = newID
	}
}

// Driver owns all sessions, steps and layers. Every mutation is a command
// processed in order by one loop goroutine; callers get snapshots back.
type Driver struct {
	cfg      Config
	selector Selector
	runner   StepRunner
	store    interfaces.SessionStore
	broker   *Broker
	log      logging.Logger
	now      func() time.Time
	newID    func() string

	state    *State
	commands chan command

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup
	loop   sync.WaitGroup

	mu      sync.RWMutex
	running bool
	stopped bool
}

// New creates a driver. It accepts no commands until Start.
func New(cfg Config, selector Selector, opts ...Option) *Driver {
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = DefaultPersistTimeout
	}
	d := &Driver{
		cfg:      cfg,
		selector: selector,
		runner:   DelayRunner{Delay: cfg.StepDelay},
		broker:   NewBroker(),
		log:      logging.New("driver"),
		now:      time.Now,
		newID:    uuid.NewString,
		state:    newState(),
		commands: make(chan command, commandQueueSize),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start restores persisted state and launches the command loop
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return nil
	}
	if d.stopped {
		return ErrStopped
	}

	if d.store != nil {
		if err := d.restore(ctx); err != nil {
			return err
		}
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.running = true
	d.loop.Add(1)
	go d.run()
	d.log.Debugf("Workflow driver started")
	return nil
}

// Stop cancels in-flight steps and timers and waits for the loop to exit.
// Abandoned steps stay executing in the store and are reset to pending when
// a new driver restores from it. A stopped driver cannot be restarted.
func (d *Driver) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.stopped = true
	d.cancel()
	d.mu.Unlock()

	// The loop is the only spawner, so tasks are counted only after it exits
	d.loop.Wait()
	d.tasks.Wait()
	d.broker.Close()
	d.log.Debugf("Workflow driver stopped")
}

func (d *Driver) restore(ctx context.Context) error {
	sessions, err := d.store.LoadSessions(ctx)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrCodeStoreFailed, "load sessions", err)
	}
	layers, err := d.store.LoadLayers(ctx)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrCodeStoreFailed, "load layers", err)
	}

	reset := d.state.restore(sessions, layers)
	for _, session := range reset {
		if err := d.store.SaveSession(ctx, session); err != nil {
			d.log.Warnf("Failed to persist reset of session %s: %v", session.ID, err)
		}
	}
	if len(sessions) > 0 || len(layers) > 0 {
		d.log.Infof("Restored %d session(s) and %d layer(s) from %s store", len(sessions), len(layers), d.store.Name())
	}
	if len(reset) > 0 {
		d.log.Warnf("Reset interrupted steps to pending in %d session(s)", len(reset))
	}
	return nil
}

func (d *Driver) run() {
	defer d.loop.Done()
	for {
		select {
		case cmd := <-d.commands:
			d.handle(cmd)
		case <-d.ctx.Done():
			d.drain()
			return
		}
	}
}

// drain rejects user commands still queued at shutdown
func (d *Driver) drain() {
	for {
		select {
		case cmd := <-d.commands:
			switch c := cmd.(type) {
			case submitQuery:
				c.reply <- result[*domain.QuerySession]{err: ErrStopped}
			case editStep:
				c.reply <- result[domain.WorkflowStep]{err: ErrStopped}
			case executeStep:
				c.reply <- result[domain.WorkflowStep]{err: ErrStopped}
			case executeWorkflow:
				c.reply <- result[*domain.QuerySession]{err: ErrStopped}
			case inspect:
				close(c.done)
			}
		default:
			return
		}
	}
}

// enqueue hands cmd to the loop, failing once the driver has stopped.
// The returned channel closes when the loop shuts down.
func (d *Driver) enqueue(ctx context.Context, cmd command) (<-chan struct{}, error) {
	d.mu.RLock()
	running, loopCtx := d.running, d.ctx
	d.mu.RUnlock()
	if !running {
		return nil, ErrStopped
	}

	select {
	case d.commands <- cmd:
		return loopCtx.Done(), nil
	case <-loopCtx.Done():
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// post delivers an internal event from a task goroutine
func (d *Driver) post(cmd command) {
	select {
	case d.commands <- cmd:
	case <-d.ctx.Done():
	}
}

// spawn runs fn as a tracked task that Stop waits for
func (d *Driver) spawn(fn func(ctx context.Context)) {
	d.tasks.Add(1)
	go func() {
		defer d.tasks.Done()
		fn(d.ctx)
	}()
}

func call[T any](ctx context.Context, d *Driver, cmd command, reply chan result[T]) (T, error) {
	var zero T
	stopped, err := d.enqueue(ctx, cmd)
	if err != nil {
		return zero, err
	}
	select {
	case res := <-reply:
		return res.val, res.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-stopped:
		// The loop may have answered just before exiting.
		select {
		case res := <-reply:
			return res.val, res.err
		default:
			return zero, ErrStopped
		}
	}
}

func (d *Driver) persistSession(session *domain.QuerySession) {
	if d.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.PersistTimeout)
	defer cancel()
	if err := d.store.SaveSession(ctx, session); err != nil {
		d.log.Warnf("Failed to persist session %s: %v", session.ID, err)
	}
}

func (d *Driver) persistLayer(layer domain.MapLayerDescriptor) {
	if d.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(d.ctx, d.cfg.PersistTimeout)
	defer cancel()
	if err := d.store.SaveLayer(ctx, layer); err != nil {
		d.log.Warnf("Failed to persist layer %s: %v", layer.ID, err)
	}
}

func (d *Driver) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	if dropped := d.broker.Publish(ev); dropped > 0 {
		d.log.Debugf("Dropped %s event for %d slow subscriber(s)", ev.Type, dropped)
	}
}

// SubmitQuery creates a session whose steps come from the template selector
func (d *Driver) SubmitQuery(ctx context.Context, query string) (*domain.QuerySession, error) {
	reply := make(chan result[*domain.QuerySession], 1)
	return call(ctx, d, submitQuery{query: query, reply: reply}, reply)
}

// EditStep merges update into a step and returns the updated snapshot.
// Repeating an edit with identical values yields the same step.
func (d *Driver) EditStep(ctx context.Context, sessionID, stepID string, update domain.StepUpdate) (domain.WorkflowStep, error) {
	reply := make(chan result[domain.WorkflowStep], 1)
	return call(ctx, d, editStep{sessionID: sessionID, stepID: stepID, update: update, reply: reply}, reply)
}

// ExecuteStep moves a pending step to executing and schedules its completion
func (d *Driver) ExecuteStep(ctx context.Context, sessionID, stepID string) (domain.WorkflowStep, error) {
	reply := make(chan result[domain.WorkflowStep], 1)
	return call(ctx, d, executeStep{sessionID: sessionID, stepID: stepID, reply: reply}, reply)
}

// ExecuteWorkflow starts every pending step of a session and schedules the
// session's completion, which appends one map layer.
func (d *Driver) ExecuteWorkflow(ctx context.Context, sessionID string) (*domain.QuerySession, error) {
	reply := make(chan result[*domain.QuerySession], 1)
	return call(ctx, d, executeWorkflow{sessionID: sessionID, reply: reply}, reply)
}

func (d *Driver) inspect(ctx context.Context, fn func(*State)) error {
	done := make(chan struct{})
	stopped, err := d.enqueue(ctx, inspect{fn: fn, done: done})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-stopped:
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Session returns a snapshot of one session
func (d *Driver) Session(ctx context.Context, id string) (*domain.QuerySession, error) {
	var (
		out *domain.QuerySession
		err error
	)
	if ierr := d.inspect(ctx, func(s *State) {
		var session *domain.QuerySession
		if session, err = s.session(id); err == nil {
			out = session.Clone()
		}
	}); ierr != nil {
		return nil, ierr
	}
	return out, err
}

// Sessions returns snapshots of every session in submission order
func (d *Driver) Sessions(ctx context.Context) ([]*domain.QuerySession, error) {
	var out []*domain.QuerySession
	err := d.inspect(ctx, func(s *State) {
		out = make([]*domain.QuerySession, 0, len(s.sessions))
		for _, session := range s.sessions {
			out = append(out, session.Clone())
		}
	})
	return out, err
}

// Layers returns the layer list in insertion order
func (d *Driver) Layers(ctx context.Context) ([]domain.MapLayerDescriptor, error) {
	var out []domain.MapLayerDescriptor
	err := d.inspect(ctx, func(s *State) {
		out = make([]domain.MapLayerDescriptor, len(s.layers))
		copy(out, s.layers)
	})
	return out, err
}

// Layer returns one layer descriptor
func (d *Driver) Layer(ctx context.Context, id string) (domain.MapLayerDescriptor, error) {
	var (
		out domain.MapLayerDescriptor
		err error
	)
	if ierr := d.inspect(ctx, func(s *State) {
		out, err = s.layer(id)
	}); ierr != nil {
		return domain.MapLayerDescriptor{}, ierr
	}
	return out, err
}

// Subscribe registers for state-change events. Call the returned function to unsubscribe.
func (d *Driver) Subscribe() (<-chan Event, func()) {
	return d.broker.Subscribe()
}

// Config returns the driver's configuration
func (d *Driver) Config() Config {
	return d.cfg
}
