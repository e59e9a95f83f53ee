// Package stream owns in-flight response streams: one Session per request,
// and Slots that keep at most one Session streaming per logical context.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/sse"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether no further events can follow s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// EndpointKind names the backend operation a request targets.
type EndpointKind string

const (
	EndpointChat    EndpointKind = "chat"
	EndpointAnalyze EndpointKind = "analyze"
)

// Request is what an Opener needs to start a stream.
type Request struct {
	Kind EndpointKind
	Body any
}

// Opener starts the outbound request and returns the response body. The
// returned stream is aborted by cancelling ctx or closing it.
type Opener interface {
	Open(ctx context.Context, req Request) (io.ReadCloser, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, req Request) (io.ReadCloser, error)

func (f OpenerFunc) Open(ctx context.Context, req Request) (io.ReadCloser, error) {
	return f(ctx, req)
}

// EventKind classifies an Event.
type EventKind int

const (
	EventDelta EventKind = iota
	EventCompleted
	EventFailed
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventDelta:
		return "delta"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is delivered to a Session's handler. Text is always the full
// accumulated text; Chunk is the content carried by the triggering frame.
type Event struct {
	Kind      EventKind
	SessionID uint64
	Text      string
	Chunk     string
	Aux       *bool
	Err       error
}

// Terminal reports whether e ends its session.
func (e Event) Terminal() bool {
	return e.Kind != EventDelta
}

// Handler receives session events in frame order. Handlers run while the
// session is locked: they must not call back into the same Session or the
// Slot that owns it.
type Handler func(Event)

// Session consumes one response stream.
type Session struct {
	id      uint64
	opener  Opener
	req     Request
	handler Handler
	logger  *slog.Logger

	mu     sync.Mutex
	state  State
	text   strings.Builder
	aux    *bool
	err    error
	cancel context.CancelFunc
	body   io.ReadCloser

	closeOnce sync.Once
	done      chan struct{}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession returns an idle session. A nil handler discards events.
func NewSession(id uint64, opener Opener, req Request, h Handler, opts ...SessionOption) *Session {
	if h == nil {
		h = func(Event) {}
	}
	s := &Session{
		id:      id,
		opener:  opener,
		req:     req,
		handler: h,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start moves the session to Streaming and begins consuming the stream in
// the background. It returns immediately; the outbound request is issued by
// the read loop.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		st := s.state
		s.mu.Unlock()
		return fmt.Errorf("session %d already %s", s.id, st)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.state = StateStreaming
	s.mu.Unlock()

	s.logger.Debug("stream session started", "session", s.id, "kind", s.req.Kind)
	go s.run(ctx)
	return nil
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	if ctx.Err() != nil {
		s.Cancel()
		return
	}
	body, err := s.opener.Open(ctx, s.req)
	if err != nil {
		if ctx.Err() != nil {
			s.Cancel()
			return
		}
		var upErr *UpstreamError
		if !errors.As(err, &upErr) {
			err = &sse.TransportError{Err: err}
		}
		s.fail(err)
		return
	}
	if !s.attach(body) {
		s.closeBody(body)
		return
	}
	defer s.closeBody(body)

	dec := sse.NewDecoder(body, sse.WithLogger(s.logger))
	for {
		f, ok := dec.Next()
		if !ok {
			return
		}
		if f.Err != nil && ctx.Err() != nil {
			// The read was aborted by the parent context, not the server.
			s.Cancel()
			return
		}
		if !s.apply(f) {
			return
		}
	}
}

func (s *Session) attach(body io.ReadCloser) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		return false
	}
	s.body = body
	return true
}

func (s *Session) closeBody(body io.ReadCloser) {
	s.closeOnce.Do(func() {
		if err := body.Close(); err != nil {
			s.logger.Debug("closing stream body", "session", s.id, "error", err)
		}
	})
}

// apply folds one frame into the session and reports whether reading should
// continue.
func (s *Session) apply(f sse.Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		return false
	}

	p := f.Payload
	changed := false
	if p.Content != "" {
		s.text.WriteString(p.Content)
		changed = true
	}
	if p.TextExtracted != nil {
		v := *p.TextExtracted
		s.aux = &v
		changed = true
	}
	if changed {
		s.emitLocked(Event{Kind: EventDelta, Chunk: p.Content})
	}

	if !f.Terminal {
		return true
	}
	if p.Error != "" {
		err := f.Err
		if err == nil {
			err = &UpstreamError{Message: p.Error}
		}
		s.failLocked(err)
		return false
	}
	s.state = StateCompleted
	s.logger.Debug("stream session completed", "session", s.id, "bytes", s.text.Len())
	s.emitLocked(Event{Kind: EventCompleted})
	return false
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStreaming {
		return
	}
	s.failLocked(err)
}

func (s *Session) failLocked(err error) {
	s.state = StateFailed
	s.err = err
	s.logger.Warn("stream session failed", "session", s.id, "kind", s.req.Kind, "error", err)
	s.emitLocked(Event{Kind: EventFailed, Err: err})
}

func (s *Session) emitLocked(ev Event) {
	ev.SessionID = s.id
	ev.Text = s.text.String()
	if s.aux != nil {
		v := *s.aux
		ev.Aux = &v
	}
	s.handler(ev)
}

// Cancel aborts a streaming session. The state flips to Cancelled and the
// cancellation event is delivered before Cancel returns; no event follows it.
// Cancel reports whether the session was streaming.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if s.state != StateStreaming {
		s.mu.Unlock()
		return false
	}
	s.state = StateCancelled
	s.cancel()
	body := s.body
	s.logger.Debug("stream session cancelled", "session", s.id, "bytes", s.text.Len())
	s.emitLocked(Event{Kind: EventCancelled})
	s.mu.Unlock()

	if body != nil {
		s.closeBody(body)
	}
	return true
}

// ID returns the session id.
func (s *Session) ID() uint64 {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Text returns the accumulated text.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text.String()
}

// Aux returns the last auxiliary signal received, or nil.
func (s *Session) Aux() *bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aux == nil {
		return nil
	}
	v := *s.aux
	return &v
}

// Err returns the failure of a Failed session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the read loop has exited and released the transport.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the read loop exits or ctx ends.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
