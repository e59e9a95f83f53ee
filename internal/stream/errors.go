package stream

import "fmt"

// UpstreamError carries an explicit error reported by the server inside the
// stream.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return "upstream error: " + e.Message
}

// PreconditionError is returned synchronously, before any I/O, when an
// operation cannot run in the current state.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// PersistenceError wraps a failure of a note or progress store. The caller's
// in-memory state is left untouched so the operation can be retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
