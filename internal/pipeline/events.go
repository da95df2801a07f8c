package pipeline

import (
	"encoding/json"
	"fmt"
)

// EventType identifies an Event.
type EventType string

const (
	EventStatus     EventType = "status"
	EventResearch   EventType = "research"
	EventAnalysis   EventType = "analysis"
	EventFormatting EventType = "formatting"
	EventResults    EventType = "results"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"
)

// Event is one progress report of a run. It is the only wire schema:
// {"type": ..., "content": ..., "reasoning"?: ...}.
type Event struct {
	Type      EventType `json:"type"`
	Content   string    `json:"content"`
	Reasoning string    `json:"reasoning,omitempty"`
}

// Terminal reports whether e ends a run.
func (e Event) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}

// IsPhase reports whether e carries a stage result.
func (e Event) IsPhase() bool {
	switch e.Type {
	case EventResearch, EventAnalysis, EventFormatting, EventResults:
		return true
	}
	return false
}

// SSE encodes e as one server-sent event: a data line followed by a blank line.
func (e Event) SSE() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(data)+8)
	out = append(out, "data: "...)
	out = append(out, data...)
	out = append(out, "\n\n"...)
	return out, nil
}

// CheckSequence verifies events follow (status* phase)* status* (complete|error)
// with nothing after the terminal event.
func CheckSequence(events []Event) error {
	if len(events) == 0 {
		return fmt.Errorf("no events")
	}
	for i, e := range events {
		last := i == len(events)-1
		switch {
		case e.Terminal() && !last:
			return fmt.Errorf("event %d: %s is followed by %d more events", i, e.Type, len(events)-1-i)
		case last && !e.Terminal():
			return fmt.Errorf("event %d: run ended with %s instead of complete or error", i, e.Type)
		case !e.Terminal() && e.Type != EventStatus && !e.IsPhase():
			return fmt.Errorf("event %d: unknown type %q", i, e.Type)
		}
	}
	return nil
}

// Collect drains ch until it is closed.
func Collect(ch <-chan Event) []Event {
	var events []Event
	for e := range ch {
		events = append(events, e)
	}
	return events
}
