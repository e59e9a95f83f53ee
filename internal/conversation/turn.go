package conversation

import (
	"fmt"
	"time"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/segment"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the lifecycle of a turn. User turns are complete on creation;
// assistant turns stream first.
type Status int

const (
	StatusComplete Status = iota
	StatusStreaming
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusComplete:
		return "complete"
	case StatusStreaming:
		return "streaming"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Turn is one entry of the transcript.
type Turn struct {
	ID        int64
	Role      Role
	Text      string
	Segments  []segment.Segment
	Status    Status
	Err       string
	CreatedAt time.Time
}

// Answer returns the visible answer text with reasoning removed.
func (t Turn) Answer() string {
	return segment.Answer(t.Segments)
}

// Thinking reports whether the turn is currently inside a reasoning trace.
func (t Turn) Thinking() bool {
	return t.Status == StatusStreaming && segment.Thinking(t.Segments)
}

func (t Turn) clone() Turn {
	if t.Segments != nil {
		t.Segments = append([]segment.Segment(nil), t.Segments...)
	}
	return t
}
