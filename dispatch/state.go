package dispatch

import "horizon/display"

// State is the position of a turn in the dispatcher state machine.
type State int

const (
	Idle State = iota
	AwaitingModelResponse
	StreamingText
	ExecutingTool
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingModelResponse:
		return "awaiting_model_response"
	case StreamingText:
		return "streaming_text"
	case ExecutingTool:
		return "executing_tool"
	}
	return "unknown"
}

// EventType says what an Event carries.
type EventType string

const (
	// EventState reports a state transition.
	EventState EventType = "state"
	// EventDelta carries one text delta in arrival order.
	EventDelta EventType = "delta"
	// EventSkeleton carries a loading placeholder shown while a tool runs.
	EventSkeleton EventType = "skeleton"
	// EventDone carries the descriptor the turn ended with.
	EventDone EventType = "done"
)

// Event is reported to the turn's observer. Partial assistant text is only
// ever visible through delta events; it never enters the log.
type Event struct {
	TurnID     string              `json:"turnId"`
	Type       EventType           `json:"type"`
	State      State               `json:"-"`
	StateName  string              `json:"state"`
	Delta      string              `json:"delta,omitempty"`
	Descriptor *display.Descriptor `json:"descriptor,omitempty"`
}

// Observer receives the events of one turn. It runs on the consumer
// goroutine, so a slow observer slows the stream rather than losing chunks.
type Observer func(Event)
