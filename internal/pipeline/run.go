package pipeline

import (
	"sync"
	"time"

	"github.com/aixgo-dev/searchflow/agent"
	"github.com/aixgo-dev/searchflow/internal/llm/cost"
	"github.com/aixgo-dev/searchflow/internal/protocol"
)

// Run is one query's pass through the pipeline. It owns its coordinator and
// conversation state; runs never share context.
type Run struct {
	ID        string
	Query     string
	StartedAt time.Time

	coord   *protocol.Coordinator
	tracker *cost.Tracker
	done    chan struct{}

	mu         sync.RWMutex
	finishedAt time.Time
	err        error
}

// RunInfo is the JSON view of a Run.
type RunInfo struct {
	ID         string       `json:"id"`
	Query      string       `json:"query"`
	Status     agent.Status `json:"status"`
	Stages     []string     `json:"stages"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Error      string       `json:"error,omitempty"`
	Usage      cost.Summary `json:"usage"`
}

// Status returns the run's lifecycle state.
func (r *Run) Status() agent.Status {
	return r.coord.State().Status()
}

// History returns the last limit messages of the run, or all when limit <= 0.
func (r *Run) History(limit int) []*agent.Message {
	return r.coord.History(limit)
}

// StageState returns the introspection view of a stage as seen by this run.
func (r *Run) StageState(name string) (agent.StageState, error) {
	return r.coord.StageState(name)
}

// Context returns a copy of the run's shared context.
func (r *Run) Context() map[string]any {
	return r.coord.Context()
}

// Usage returns the reasoning usage and cost accumulated so far.
func (r *Run) Usage() cost.Summary {
	return r.tracker.Summary()
}

// Done is closed when the run has finished and its event channel is closed.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Err returns the error that ended the run, if any.
func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Info returns a snapshot of the run.
func (r *Run) Info() RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := RunInfo{
		ID:        r.ID,
		Query:     r.Query,
		Status:    r.Status(),
		Stages:    r.coord.Stages(),
		StartedAt: r.StartedAt,
		Usage:     r.tracker.Summary(),
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		info.FinishedAt = &t
	}
	if r.err != nil {
		info.Error = r.err.Error()
	}
	return info
}

func (r *Run) finish(status agent.Status, err error) {
	r.mu.Lock()
	r.finishedAt = time.Now().UTC()
	r.err = err
	r.mu.Unlock()
	r.coord.State().SetStatus(status)
}

// runStore keeps the most recent runs for introspection.
type runStore struct {
	mu    sync.RWMutex
	max   int
	runs  map[string]*Run
	order []string
}

func newRunStore(max int) *runStore {
	return &runStore{max: max, runs: make(map[string]*Run)}
}

func (s *runStore) add(r *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[r.ID] = r
	s.order = append(s.order, r.ID)
	for len(s.order) > s.max {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *runStore) get(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	return r, ok
}

// list returns runs newest first.
func (s *runStore) list() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.order[i]])
	}
	return out
}
