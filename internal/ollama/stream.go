package ollama

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// ChatStream reads a streamed /api/chat reply line by line.
type ChatStream struct {
	body io.ReadCloser
	r    *bufio.Reader
	done bool
}

func newChatStream(body io.ReadCloser) *ChatStream {
	return &ChatStream{body: body, r: bufio.NewReader(body)}
}

// Next returns the next non-empty content chunk. It returns io.EOF after the
// final object, and io.ErrUnexpectedEOF if the body ends before it.
// Malformed lines are skipped.
func (s *ChatStream) Next() (string, error) {
	for !s.done {
		line, err := s.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var chunk chatResponse
			if jerr := json.Unmarshal(line, &chunk); jerr != nil {
				slog.Warn("skipping malformed ollama stream line", "error", jerr)
			} else {
				if chunk.Error != "" {
					s.done = true
					return "", fmt.Errorf("ollama: %s", chunk.Error)
				}
				if chunk.Done {
					s.done = true
				}
				if chunk.Message.Content != "" {
					return chunk.Message.Content, nil
				}
			}
		}
		if err != nil {
			if s.done {
				break
			}
			s.done = true
			if errors.Is(err, io.EOF) {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
	}
	return "", io.EOF
}

// Close releases the response body.
func (s *ChatStream) Close() error {
	return s.body.Close()
}
