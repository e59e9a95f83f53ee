// Package analysis streams an explanation of the page being read.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/proxy"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/segment"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/storage"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/stream"
)

// Advisory is appended to a completed analysis of a page without extractable
// text.
const Advisory = "This page appears to be empty or contains no extractable text. " +
	"It might contain only images, diagrams, or formatted elements that could not be processed."

// ProgressStore reports what is known about a document's length.
type ProgressStore interface {
	GetProgress(documentRef string) (storage.Progress, error)
}

// Input selects the page to analyze.
type Input struct {
	DocumentRef string
	Page        int
	Context     string
}

// EventKind classifies an analysis event.
type EventKind int

const (
	Updated EventKind = iota
	Completed
	Failed
	Cancelled
)

func (k EventKind) String() string {
	switch k {
	case Updated:
		return "updated"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event carries the rendered state of the analysis after each frame.
type Event struct {
	Kind          EventKind
	DocumentRef   string
	Page          int
	Text          string
	Segments      []segment.Segment
	Answer        string
	TextExtracted bool
	Err           error
}

// Thinking reports whether the analysis is inside a reasoning trace.
func (e Event) Thinking() bool {
	return e.Kind == Updated && segment.Thinking(e.Segments)
}

// Renderer receives analysis events from the stream's read goroutine.
type Renderer interface {
	Render(Event)
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(Event)

func (f RendererFunc) Render(e Event) { f(e) }

// Engine runs at most one page analysis at a time.
type Engine struct {
	slot     *stream.Slot
	renderer Renderer
	progress ProgressStore
	logger   *slog.Logger

	mu   sync.Mutex
	auto bool
	last Event
}

// Option configures an Engine.
type Option func(*Engine)

func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithProgress lets Analyze reject pages past the known end of a document.
func WithProgress(p ProgressStore) Option {
	return func(e *Engine) { e.progress = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithAuto enables analysis on every page change.
func WithAuto(on bool) Option {
	return func(e *Engine) { e.auto = on }
}

// New creates an engine that opens analysis streams with opener.
func New(opener stream.Opener, opts ...Option) *Engine {
	e := &Engine{
		renderer: RendererFunc(func(Event) {}),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	e.slot = stream.NewSlot("analysis", opener, stream.WithSlotLogger(e.logger))
	return e
}

// Analyze starts analyzing in.Page, cancelling any analysis in progress.
func (e *Engine) Analyze(ctx context.Context, in Input) (*stream.Session, error) {
	if err := e.validate(in); err != nil {
		return nil, err
	}

	// The superseded analysis reports its cancellation before last is reset.
	e.slot.Cancel()
	e.mu.Lock()
	e.last = Event{DocumentRef: in.DocumentRef, Page: in.Page, TextExtracted: true}
	e.mu.Unlock()

	req := proxy.AnalyzeRequest{Filename: in.DocumentRef, PageNum: in.Page, Context: in.Context}
	s := e.slot.Start(ctx, stream.Request{Kind: stream.EndpointAnalyze, Body: req}, e.onEvent(in))
	e.logger.Debug("page analysis started", "document", in.DocumentRef, "page", in.Page, "session", s.ID())
	return s, nil
}

func (e *Engine) validate(in Input) error {
	const op = "analyze page"
	if in.DocumentRef == "" {
		return &stream.PreconditionError{Op: op, Reason: "no document selected"}
	}
	if in.Page < 1 {
		return &stream.PreconditionError{Op: op, Reason: fmt.Sprintf("page %d is before the first page", in.Page)}
	}
	if e.progress == nil {
		return nil
	}
	p, err := e.progress.GetProgress(in.DocumentRef)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Warn("reading progress for page check", "document", in.DocumentRef, "error", err)
		}
		return nil
	}
	if p.TotalPages > 0 && in.Page > p.TotalPages {
		return &stream.PreconditionError{Op: op, Reason: fmt.Sprintf("page %d is past the last page (%d)", in.Page, p.TotalPages)}
	}
	return nil
}

// PageChanged reacts to navigation: a stale analysis is cancelled, and a new
// one starts when auto-analysis is on. It returns nil when nothing started.
func (e *Engine) PageChanged(ctx context.Context, in Input) (*stream.Session, error) {
	e.mu.Lock()
	auto := e.auto
	e.mu.Unlock()
	if !auto {
		e.slot.Cancel()
		return nil, nil
	}
	return e.Analyze(ctx, in)
}

// SetAuto turns auto-analysis on page change on or off.
func (e *Engine) SetAuto(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.auto = on
}

func (e *Engine) onEvent(in Input) stream.Handler {
	return func(ev stream.Event) {
		out := Event{
			DocumentRef:   in.DocumentRef,
			Page:          in.Page,
			Text:          ev.Text,
			Segments:      segment.Split(ev.Text),
			TextExtracted: ev.Aux == nil || *ev.Aux,
			Err:           ev.Err,
		}
		out.Answer = segment.Answer(out.Segments)

		switch ev.Kind {
		case stream.EventDelta:
			out.Kind = Updated
		case stream.EventCompleted:
			out.Kind = Completed
			if !out.TextExtracted {
				out.Answer = withAdvisory(out.Answer)
			}
		case stream.EventFailed:
			out.Kind = Failed
			e.logger.Warn("page analysis failed", "document", in.DocumentRef, "page", in.Page, "error", ev.Err)
		case stream.EventCancelled:
			out.Kind = Cancelled
		}

		e.mu.Lock()
		e.last = out
		e.mu.Unlock()
		e.renderer.Render(out)
	}
}

func withAdvisory(answer string) string {
	if strings.TrimSpace(answer) == "" {
		return Advisory
	}
	return strings.TrimRight(answer, "\n") + "\n\n" + Advisory
}

// Last returns the most recent analysis event.
func (e *Engine) Last() Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.last
	out.Segments = append([]segment.Segment(nil), out.Segments...)
	return out
}

// Cancel stops the analysis in progress.
func (e *Engine) Cancel() bool {
	return e.slot.Cancel()
}

// Streaming reports whether an analysis is in progress.
func (e *Engine) Streaming() bool {
	return e.slot.Streaming()
}

// Wait blocks until the most recent analysis has finished.
func (e *Engine) Wait(ctx context.Context) error {
	return e.slot.Wait(ctx)
}
