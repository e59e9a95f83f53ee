// Package conversation keeps a chat transcript about the page being read and
// streams assistant replies into it.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/proxy"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/segment"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/storage"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/stream"
)

// titleRunes bounds the user message excerpt in a default note title.
const titleRunes = 50

// NoteStore persists rendered transcripts.
type NoteStore interface {
	CreateNote(documentRef string, page int, title, content string) (storage.Note, error)
}

// Engine owns one transcript and the chat slot that feeds it.
type Engine struct {
	slot     *stream.Slot
	notes    NoteStore
	renderer Renderer
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	turns  []Turn
	lastID int64
	doc    string
	page   int
}

// Option configures an Engine.
type Option func(*Engine)

func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine that opens chat streams with opener and saves notes
// to notes. notes may be nil, in which case SaveAsNote always fails.
func New(opener stream.Opener, notes NoteStore, opts ...Option) *Engine {
	e := &Engine{
		notes:    notes,
		renderer: nopRenderer{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	e.slot = stream.NewSlot("chat", opener, stream.WithSlotLogger(e.logger))
	return e
}

// SetDocument sets the document and page that questions refer to. The
// transcript is kept.
func (e *Engine) SetDocument(documentRef string, page int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.doc = documentRef
	e.page = page
}

// Document returns the current document and page.
func (e *Engine) Document() (string, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.doc, e.page
}

// AppendUserTurn records text as a user turn and starts streaming the reply
// into a new assistant turn, cancelling any reply still in progress. It
// returns the assistant turn id.
func (e *Engine) AppendUserTurn(ctx context.Context, text string) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, &stream.PreconditionError{Op: "append user turn", Reason: "message is empty"}
	}

	e.mu.Lock()
	doc := e.doc
	e.mu.Unlock()
	if doc == "" {
		return 0, &stream.PreconditionError{Op: "append user turn", Reason: "no document selected"}
	}

	// Settle the previous reply before its text can become history.
	e.slot.Cancel()

	e.mu.Lock()
	req := proxy.ChatRequest{
		Message:     text,
		Filename:    e.doc,
		PageNum:     e.page,
		ChatHistory: e.historyLocked(),
	}
	user := e.appendLocked(Turn{Role: RoleUser, Text: text, Segments: segment.Split(text), Status: StatusComplete})
	reply := e.appendLocked(Turn{Role: RoleAssistant, Status: StatusStreaming})
	e.mu.Unlock()

	e.renderer.Render(Event{Kind: TurnUpdated, Turn: user})
	e.renderer.Render(Event{Kind: TurnUpdated, Turn: reply})

	s := e.slot.Start(ctx, stream.Request{Kind: stream.EndpointChat, Body: req}, e.onEvent(reply.ID))
	e.logger.Debug("chat reply started", "turn", reply.ID, "session", s.ID(), "history", len(req.ChatHistory))
	return reply.ID, nil
}

func (e *Engine) appendLocked(t Turn) Turn {
	e.lastID++
	t.ID = e.lastID
	t.CreatedAt = e.now()
	e.turns = append(e.turns, t)
	return t.clone()
}

// historyLocked returns every turn with text, unabridged, reasoning included.
func (e *Engine) historyLocked() []proxy.ChatMessage {
	var history []proxy.ChatMessage
	for _, t := range e.turns {
		if t.Text == "" {
			continue
		}
		history = append(history, proxy.ChatMessage{Role: string(t.Role), Content: t.Text})
	}
	return history
}

func (e *Engine) indexLocked(id int64) int {
	for i := len(e.turns) - 1; i >= 0; i-- {
		if e.turns[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) onEvent(turnID int64) stream.Handler {
	return func(ev stream.Event) {
		e.mu.Lock()
		i := e.indexLocked(turnID)
		if i < 0 {
			// Cleared while streaming.
			e.mu.Unlock()
			return
		}
		t := &e.turns[i]
		t.Text = ev.Text
		t.Segments = segment.Split(ev.Text)

		kind := TurnUpdated
		switch ev.Kind {
		case stream.EventCompleted:
			t.Status = StatusComplete
			kind = TurnCompleted
		case stream.EventFailed:
			t.Status = StatusFailed
			t.Err = ev.Err.Error()
			kind = TurnFailed
		case stream.EventCancelled:
			t.Status = StatusCancelled
			kind = TurnCancelled
		}
		snapshot := t.clone()
		e.mu.Unlock()

		if kind == TurnFailed {
			e.logger.Warn("chat reply failed", "turn", turnID, "error", snapshot.Err)
		}
		e.renderer.Render(Event{Kind: kind, Turn: snapshot})
	}
}

// Cancel stops the reply in progress and reports whether one was streaming.
func (e *Engine) Cancel() bool {
	return e.slot.Cancel()
}

// Streaming reports whether a reply is in progress.
func (e *Engine) Streaming() bool {
	return e.slot.Streaming()
}

// Wait blocks until the most recent reply has finished.
func (e *Engine) Wait(ctx context.Context) error {
	return e.slot.Wait(ctx)
}

// Clear cancels any reply in progress and discards the transcript.
func (e *Engine) Clear() {
	e.slot.Cancel()

	e.mu.Lock()
	e.turns = nil
	e.mu.Unlock()

	e.renderer.Render(Event{Kind: TranscriptCleared})
}

// Turns returns a copy of the transcript.
func (e *Engine) Turns() []Turn {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Turn, len(e.turns))
	for i, t := range e.turns {
		out[i] = t.clone()
	}
	return out
}

// Turn returns a copy of the turn with the given id.
func (e *Engine) Turn(id int64) (Turn, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexLocked(id)
	if i < 0 {
		return Turn{}, false
	}
	return e.turns[i].clone(), true
}

// Transcript renders the conversation as role-labelled markdown. Reasoning
// traces are left out.
func (e *Engine) Transcript() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return renderTranscript(e.turns)
}

func renderTranscript(turns []Turn) string {
	var parts []string
	for _, t := range turns {
		text := t.Text
		label := "**You:**"
		if t.Role == RoleAssistant {
			text = t.Answer()
			label = "**AI:**"
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		parts = append(parts, label+" "+text)
	}
	return strings.Join(parts, "\n\n")
}

// SaveAsNote stores the rendered transcript as a note on the current page.
// An empty title is replaced by one derived from the first question. Saving
// while a reply streams stores the text received so far.
func (e *Engine) SaveAsNote(ctx context.Context, title string) (storage.Note, error) {
	e.mu.Lock()
	n := len(e.turns)
	doc, page := e.doc, e.page
	content := renderTranscript(e.turns)
	var first string
	for _, t := range e.turns {
		if t.Role == RoleUser {
			first = t.Text
			break
		}
	}
	e.mu.Unlock()

	switch {
	case n == 0:
		return storage.Note{}, &stream.PreconditionError{Op: "save note", Reason: "transcript is empty"}
	case doc == "":
		return storage.Note{}, &stream.PreconditionError{Op: "save note", Reason: "no document selected"}
	case e.notes == nil:
		return storage.Note{}, &stream.PreconditionError{Op: "save note", Reason: "no note store configured"}
	}
	if err := ctx.Err(); err != nil {
		return storage.Note{}, err
	}

	if strings.TrimSpace(title) == "" {
		title = DefaultTitle(page, first)
	}
	note, err := e.notes.CreateNote(doc, page, title, content)
	if err != nil {
		return storage.Note{}, &stream.PersistenceError{Op: "save note", Err: err}
	}
	e.logger.Info("saved chat as note", "note", note.ID, "document", doc, "page", page, "turns", n)
	return note, nil
}

// DefaultTitle is "Page N: " followed by the start of the first question.
func DefaultTitle(page int, firstMessage string) string {
	excerpt := strings.Join(strings.Fields(firstMessage), " ")
	if utf8.RuneCountInString(excerpt) > titleRunes {
		excerpt = string([]rune(excerpt)[:titleRunes]) + "..."
	}
	if excerpt == "" {
		excerpt = "Chat"
	}
	return fmt.Sprintf("Page %d: %s", page, excerpt)
}
