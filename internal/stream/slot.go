package stream

import (
	"context"
	"log/slog"
	"sync"
)

// Slot holds at most one active Session. Starting a new session cancels the
// previous one first, so the old session's cancellation event is delivered
// before the new session can emit anything.
type Slot struct {
	name   string
	opener Opener
	logger *slog.Logger

	mu     sync.Mutex
	gen    uint64
	active *Session
}

// SlotOption configures a Slot.
type SlotOption func(*Slot)

// WithSlotLogger sets the logger used by the slot and its sessions.
func WithSlotLogger(l *slog.Logger) SlotOption {
	return func(sl *Slot) { sl.logger = l }
}

// NewSlot returns an empty slot whose sessions open streams with opener.
func NewSlot(name string, opener Opener, opts ...SlotOption) *Slot {
	sl := &Slot{name: name, opener: opener, logger: slog.Default()}
	for _, o := range opts {
		o(sl)
	}
	sl.logger = sl.logger.With("slot", name)
	return sl
}

// Start cancels the active session, if any, and starts a new one.
func (sl *Slot) Start(ctx context.Context, req Request, h Handler) *Session {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.active != nil && sl.active.Cancel() {
		sl.logger.Debug("superseded active session", "session", sl.active.ID())
	}
	sl.gen++
	s := NewSession(sl.gen, sl.opener, req, h, WithLogger(sl.logger))
	sl.active = s
	// A fresh session is always idle.
	_ = s.Start(ctx)
	return s
}

// Cancel cancels the active session and reports whether one was streaming.
func (sl *Slot) Cancel() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.active == nil {
		return false
	}
	return sl.active.Cancel()
}

// Active returns the most recently started session, or nil.
func (sl *Slot) Active() *Session {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.active
}

// Streaming reports whether the most recent session is still streaming.
func (sl *Slot) Streaming() bool {
	s := sl.Active()
	return s != nil && s.State() == StateStreaming
}

// Wait blocks until the most recent session has released its transport.
func (sl *Slot) Wait(ctx context.Context) error {
	s := sl.Active()
	if s == nil {
		return nil
	}
	return s.Wait(ctx)
}

// Name returns the slot name.
func (sl *Slot) Name() string {
	return sl.name
}
