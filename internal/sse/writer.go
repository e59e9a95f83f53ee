package sse

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteFrame encodes p as one "data:" record followed by a blank line.
func WriteFrame(w io.Writer, p Payload) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}
