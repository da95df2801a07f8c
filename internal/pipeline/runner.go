// Package pipeline drives queries through the registered stages and reports
// progress as an ordered stream of events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/aixgo-dev/searchflow/agent"
	"github.com/aixgo-dev/searchflow/internal/llm/cost"
	"github.com/aixgo-dev/searchflow/internal/observability"
	"github.com/aixgo-dev/searchflow/internal/protocol"
	metrics "github.com/aixgo-dev/searchflow/pkg/observability"
	"github.com/aixgo-dev/searchflow/pkg/security"
)

var (
	// ErrRunnerBusy is reported when no worker is free and the wait queue is full.
	ErrRunnerBusy = errors.New("too many concurrent runs")

	// ErrRunnerClosed is reported for queries submitted after Close.
	ErrRunnerClosed = errors.New("runner closed")
)

// Config configures a Runner.
type Config struct {
	// Stages is the dispatch order (default: researcher, analyzer, formatter)
	Stages []string `yaml:"stages"`

	// MaxConcurrentRuns caps runs executing at once (default: 16)
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`

	// MaxQueuedRuns caps runs waiting for a worker (default: 4 x MaxConcurrentRuns)
	MaxQueuedRuns int `yaml:"max_queued_runs"`

	// HistorySize is the number of recent runs kept for introspection (default: 100)
	HistorySize int `yaml:"history_size"`

	// EventBuffer is the capacity of each run's event channel (default: 0)
	EventBuffer int `yaml:"event_buffer"`

	// RunTimeout bounds a whole run; 0 disables it
	RunTimeout time.Duration `yaml:"run_timeout"`

	// MaxHistory bounds the messages kept per run (0 = unbounded)
	MaxHistory int `yaml:"max_history"`
}

func (c *Config) applyDefaults() {
	if len(c.Stages) == 0 {
		c.Stages = append([]string(nil), DefaultStages...)
	}
	if c.MaxConcurrentRuns <= 0 {
		c.MaxConcurrentRuns = 16
	}
	if c.MaxQueuedRuns <= 0 {
		c.MaxQueuedRuns = 4 * c.MaxConcurrentRuns
	}
	if c.HistorySize <= 0 {
		c.HistorySize = 100
	}
}

// Runner executes pipeline runs on a bounded worker pool.
type Runner struct {
	cfg    Config
	stages *protocol.Registry
	pool   *ants.Pool
	runs   *runStore
	logger *zap.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the runner logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRunner creates a runner over the given stage table. Each run dispatches against a
// snapshot taken when it is submitted.
func NewRunner(stages *protocol.Registry, cfg Config, opts ...Option) (*Runner, error) {
	if stages == nil {
		stages = protocol.NewRegistry()
	}
	cfg.applyDefaults()

	r := &Runner{
		cfg:    cfg,
		stages: stages,
		runs:   newRunStore(cfg.HistorySize),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, name := range cfg.Stages {
		if !stages.Has(name) {
			r.logger.Warn("configured stage is not registered yet", zap.String("stage", name))
		}
	}

	pool, err := ants.NewPool(cfg.MaxConcurrentRuns,
		ants.WithMaxBlockingTasks(cfg.MaxQueuedRuns),
		ants.WithPanicHandler(func(p any) {
			r.logger.Error("run worker panicked", zap.Any("panic", p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create run pool: %w", err)
	}
	r.pool = pool
	return r, nil
}

// RegisterStage upserts a stage. Runs already submitted are unaffected.
func (r *Runner) RegisterStage(name string, stage agent.Stage) error {
	return r.stages.Register(name, stage)
}

// Stages returns the configured dispatch order.
func (r *Runner) Stages() []string {
	return append([]string(nil), r.cfg.Stages...)
}

// Run returns a recent run by id.
func (r *Runner) Run(id string) (*Run, bool) {
	return r.runs.get(id)
}

// Runs returns the retained runs, newest first.
func (r *Runner) Runs() []*Run {
	return r.runs.list()
}

// Running returns the number of runs currently executing.
func (r *Runner) Running() int {
	return r.pool.Running()
}

// Queued returns the number of runs waiting for a worker.
func (r *Runner) Queued() int {
	return r.pool.Waiting()
}

// Ready reports whether the runner still accepts queries.
func (r *Runner) Ready(ctx context.Context) error {
	if r.pool.IsClosed() {
		return ErrRunnerClosed
	}
	return nil
}

// Close stops accepting runs and waits up to timeout for running ones to finish.
func (r *Runner) Close(timeout time.Duration) error {
	return r.pool.ReleaseTimeout(timeout)
}

// SubmitQuery starts a run for query and returns it with its event channel.
// Events arrive in order while the run progresses; exactly one complete or error
// event is sent last and the channel is then closed. Cancelling ctx stops the run
// and closes the channel without further events.
//
// When every worker is busy SubmitQuery blocks until one frees up, as long as fewer
// than MaxQueuedRuns callers are already waiting; past that the run fails at once
// with ErrRunnerBusy. Cancelling ctx does not interrupt that wait.
func (r *Runner) SubmitQuery(ctx context.Context, query string) (*Run, <-chan Event) {
	run := &Run{
		ID:        uuid.NewString(),
		Query:     strings.TrimSpace(query),
		StartedAt: time.Now().UTC(),
		coord: protocol.NewCoordinator(r.stages,
			protocol.WithLogger(r.logger),
			protocol.WithState(agent.NewConversationState(agent.WithMaxMessages(r.cfg.MaxHistory)))),
		tracker: &cost.Tracker{},
		done:    make(chan struct{}),
	}
	r.runs.add(run)

	if run.Query == "" {
		return run, r.rejected(run, agent.ErrEmptyInput)
	}
	if err := ctx.Err(); err != nil {
		return run, r.rejected(run, err)
	}

	events := make(chan Event, r.cfg.EventBuffer)
	run.coord.State().SetStatus(agent.StatusRunning)
	metrics.RunStarted()

	if err := r.pool.Submit(func() { r.execute(ctx, run, events) }); err != nil {
		metrics.RunFinished("rejected", 0)
		switch {
		case errors.Is(err, ants.ErrPoolOverload):
			err = ErrRunnerBusy
		case errors.Is(err, ants.ErrPoolClosed):
			err = ErrRunnerClosed
		}
		return run, r.rejected(run, err)
	}
	return run, events
}

// rejected ends run before any work and returns a channel holding only its error event.
func (r *Runner) rejected(run *Run, err error) <-chan Event {
	ch := make(chan Event, 1)
	e := errorEvent(err)
	ch <- e
	metrics.RecordEvent(string(e.Type))
	close(ch)
	run.finish(agent.StatusError, err)
	close(run.done)
	r.logger.Warn("run rejected", zap.String("run_id", run.ID), zap.Error(err))
	return ch
}

// errorEvent reports err with paths, addresses and credentials scrubbed.
func errorEvent(err error) Event {
	return Event{Type: EventError, Content: ErrorMessagePrefix + security.Redact(err.Error())}
}

// execute runs the plan. Work is bound to workCtx; events are delivered while ctx
// (the consumer) is alive.
func (r *Runner) execute(ctx context.Context, run *Run, events chan<- Event) {
	start := time.Now()
	logger := r.logger.With(zap.String("run_id", run.ID))

	workCtx, span := observability.StartSpanWithOtel(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("pipeline.run_id", run.ID),
			attribute.Int("pipeline.query_len", len(run.Query)),
			attribute.StringSlice("pipeline.stages", r.cfg.Stages),
		),
	)
	workCtx = cost.WithTracker(workCtx, run.tracker)
	var cancel context.CancelFunc = func() {}
	if r.cfg.RunTimeout > 0 {
		workCtx, cancel = context.WithTimeout(workCtx, r.cfg.RunTimeout)
	}

	var runErr error
	outcome := "complete"

	defer func() {
		if p := recover(); p != nil {
			runErr = fmt.Errorf("internal error: %v", p)
			logger.Error("run panicked", zap.Any("panic", p))
			outcome = "error"
			r.emit(ctx, events, errorEvent(runErr))
		}
		cancel()

		status := agent.StatusDone
		if runErr != nil {
			status = agent.StatusError
		}
		run.finish(status, runErr)
		observability.EndSpan(span, runErr)
		metrics.RunFinished(outcome, time.Since(start))
		usage := run.tracker.Summary()
		logger.Info("run finished",
			zap.String("outcome", outcome),
			zap.Duration("elapsed", time.Since(start)),
			zap.Int("llm_calls", usage.Calls),
			zap.Float64("cost_usd", usage.Cost.TotalCost))

		close(events)
		close(run.done)
	}()

	runErr = r.drive(ctx, workCtx, run, events)
	switch {
	case runErr == nil:
		r.emit(ctx, events, Event{Type: EventComplete, Content: CompleteMessage})
	case ctx.Err() != nil:
		outcome = "cancelled"
		logger.Info("consumer went away", zap.Error(runErr))
	default:
		outcome = "error"
		logger.Warn("run failed", zap.Error(runErr))
		r.emit(ctx, events, errorEvent(runErr))
	}
}

// drive dispatches each stage in order, emitting status and phase events.
func (r *Runner) drive(ctx, workCtx context.Context, run *Run, events chan<- Event) error {
	plan := make([]step, 0, len(r.cfg.Stages))
	for _, name := range r.cfg.Stages {
		st, err := run.coord.StageState(name)
		if err != nil {
			return err
		}
		plan = append(plan, stepFor(name, st.Role))
	}

	if !r.emit(ctx, events, Event{Type: EventStatus, Content: StatusOpening}) {
		return ctx.Err()
	}
	run.coord.UpdateContext(map[string]any{agent.KeyQuery: run.Query})

	from, content := protocol.SenderUser, run.Query
	for i, s := range plan {
		if !r.emit(ctx, events, Event{Type: EventStatus, Content: s.status}) {
			return ctx.Err()
		}

		resp, err := run.coord.Dispatch(workCtx, from, s.name, content, s.input(run.Query))
		if err != nil {
			return err
		}

		update := map[string]any{s.name + "_output": resp.Content()}
		if variants := resp.GetMetadataStrings(agent.KeyExpandedQueries); len(variants) > 0 {
			update[agent.KeyExpandedQueries] = variants
		}
		if n := resp.Metadata().Int(agent.KeyResultCount, 0); n > 0 {
			update[agent.KeyResultCount] = n
		}
		run.coord.UpdateContext(update)

		phase := s.phase
		if i == len(plan)-1 {
			phase = EventResults
		}
		e := Event{Type: phase, Content: resp.Content(), Reasoning: resp.GetMetadataString(agent.KeyReasoning, "")}
		if !r.emit(ctx, events, e) {
			return ctx.Err()
		}

		from, content = s.name, resp.Content()
	}
	return nil
}

// emit delivers e unless the consumer is gone.
func (r *Runner) emit(ctx context.Context, events chan<- Event, e Event) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case events <- e:
		metrics.RecordEvent(string(e.Type))
		return true
	case <-ctx.Done():
		return false
	}
}
