package sse

import (
	"errors"
	"fmt"
)

// ErrUnexpectedEnd is wrapped by the TransportError synthesized when the
// transport closes before a terminal frame.
var ErrUnexpectedEnd = errors.New("stream ended unexpectedly")

// ErrRecordTooLarge is wrapped by the FrameError logged for a record line
// longer than the decoder's limit.
var ErrRecordTooLarge = errors.New("record exceeds size limit")

// FrameError describes a record whose payload could not be parsed. It is
// logged and skipped; it never terminates a stream.
type FrameError struct {
	Record string
	Err    error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("malformed record %q: %v", truncate(e.Record, 80), e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// TransportError reports a failure of the underlying byte stream.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	if errors.Is(e.Err, ErrUnexpectedEnd) {
		return ErrUnexpectedEnd.Error()
	}
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
