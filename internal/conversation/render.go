package conversation

import "fmt"

// EventKind classifies a renderer event.
type EventKind int

const (
	TurnUpdated EventKind = iota
	TurnCompleted
	TurnFailed
	TurnCancelled
	TranscriptCleared
)

func (k EventKind) String() string {
	switch k {
	case TurnUpdated:
		return "turn_updated"
	case TurnCompleted:
		return "turn_completed"
	case TurnFailed:
		return "turn_failed"
	case TurnCancelled:
		return "turn_cancelled"
	case TranscriptCleared:
		return "transcript_cleared"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event describes a change to the transcript. Turn is a copy and is zero for
// TranscriptCleared.
type Event struct {
	Kind EventKind
	Turn Turn
}

// Renderer receives transcript events. Assistant turn events are delivered
// from the stream's read goroutine; a Renderer must not call back into the
// Engine synchronously.
type Renderer interface {
	Render(Event)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(Event)

func (f RendererFunc) Render(e Event) { f(e) }

type nopRenderer struct{}

func (nopRenderer) Render(Event) {}
