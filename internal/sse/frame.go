package sse

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Payload is the JSON object carried by one "data:" record. Every field is
// optional; a zero value means the record carried no such signal.
type Payload struct {
	Content       string                     `json:"content,omitempty"`
	Done          bool                       `json:"done,omitempty"`
	Error         string                     `json:"error,omitempty"`
	TextExtracted *bool                      `json:"text_extracted,omitempty"`
	Extra         map[string]json.RawMessage `json:"-"`
}

// Frame is one decoded record of the stream.
type Frame struct {
	Payload  Payload
	Terminal bool
	// Err is set on frames synthesized by the decoder for transport failures.
	Err error
}

func (p Payload) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(p.Extra)+4)
	for k, v := range p.Extra {
		m[k] = v
	}
	if p.Content != "" {
		b, _ := json.Marshal(p.Content)
		m["content"] = b
	}
	if p.Done {
		m["done"] = json.RawMessage(`true`)
	}
	if p.Error != "" {
		b, _ := json.Marshal(p.Error)
		m["error"] = b
	}
	if p.TextExtracted != nil {
		b, _ := json.Marshal(*p.TextExtracted)
		m["text_extracted"] = b
	}
	return json.Marshal(m)
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("payload is not an object")
	}
	if v, ok := raw["content"]; ok {
		if err := json.Unmarshal(v, &p.Content); err != nil {
			return fmt.Errorf("content: %w", err)
		}
		delete(raw, "content")
	}
	if v, ok := raw["done"]; ok {
		if err := json.Unmarshal(v, &p.Done); err != nil {
			return fmt.Errorf("done: %w", err)
		}
		delete(raw, "done")
	}
	if v, ok := raw["error"]; ok {
		if err := json.Unmarshal(v, &p.Error); err != nil {
			return fmt.Errorf("error: %w", err)
		}
		delete(raw, "error")
	}
	if v, ok := raw["text_extracted"]; ok {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return fmt.Errorf("text_extracted: %w", err)
		}
		p.TextExtracted = &b
		delete(raw, "text_extracted")
	}
	if len(raw) > 0 {
		p.Extra = raw
	}
	return nil
}

// IsTerminal reports whether the payload ends the stream.
func (p Payload) IsTerminal() bool {
	return p.Done || p.Error != ""
}

// Bool returns a pointer to b, for building payloads.
func Bool(b bool) *bool {
	return &b
}
