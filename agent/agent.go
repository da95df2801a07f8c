package agent

import "context"

// Stage is the interface every pipeline stage implements.
// External packages implement it to plug custom stages into a Coordinator.
type Stage interface {
	// Name returns the unique identifier of this stage instance.
	Name() string

	// Role returns the role stamped on every response the stage produces.
	Role() Role

	// ProcessMessage consumes one message and returns a new response message.
	// Implementations must be reentrant: concurrent calls may not share per-call mutable state.
	// Unrecoverable failures are returned as *StageError.
	ProcessMessage(ctx context.Context, msg *Message) (*Message, error)

	// State returns the externally visible state of the stage.
	State() StageState
}

// StageState is the introspection view of a stage.
type StageState struct {
	ID    string        `json:"id"`
	Role  Role          `json:"role"`
	State StateSnapshot `json:"state"`
}

// StageFunc adapts a function into a Stage. Useful for tests and lightweight stages.
type StageFunc struct {
	StageName string
	StageRole Role
	Fn        func(ctx context.Context, msg *Message) (*Message, error)
}

// Name implements Stage.
func (f *StageFunc) Name() string { return f.StageName }

// Role implements Stage.
func (f *StageFunc) Role() Role { return f.StageRole }

// ProcessMessage implements Stage by calling Fn.
func (f *StageFunc) ProcessMessage(ctx context.Context, msg *Message) (*Message, error) {
	return f.Fn(ctx, msg)
}

// State implements Stage. A StageFunc keeps no history, so the state is always idle and empty.
func (f *StageFunc) State() StageState {
	return StageState{ID: f.StageName, Role: f.StageRole, State: NewConversationState().Snapshot()}
}
