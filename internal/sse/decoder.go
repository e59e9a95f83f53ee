// Package sse decodes the line-oriented "data: {json}" stream produced by the
// analysis and chat endpoints into discrete frames.
package sse

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"

	"github.com/kaptinlin/jsonrepair"
)

const (
	doneSentinel = "[DONE]"

	// DefaultMaxRecordSize bounds one record line, newline included.
	DefaultMaxRecordSize = 1 << 20
)

// Decoder turns a byte stream into frames. It is not safe for concurrent use
// and cannot be rewound; decode a fresh stream with a new Decoder.
type Decoder struct {
	r         *bufio.Reader
	logger    *slog.Logger
	maxRecord int
	done      bool
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used to report skipped records.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

// WithMaxRecordSize caps the length of a single record line. Longer lines
// are skipped without being buffered.
func WithMaxRecordSize(n int) Option {
	return func(d *Decoder) {
		if n > 0 {
			d.maxRecord = n
		}
	}
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		r:         bufio.NewReader(r),
		logger:    slog.Default(),
		maxRecord: DefaultMaxRecordSize,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Next returns the next frame. The second result is false once the terminal
// frame has been returned; Next never returns an error of its own, transport
// failures arrive as a terminal frame with Err set.
func (d *Decoder) Next() (Frame, bool) {
	if d.done {
		return Frame{}, false
	}
	for {
		line, oversized, err := d.readLine()
		// A trailing record without its newline is incomplete: only lines
		// that reached their boundary are decoded.
		if err == nil {
			if oversized {
				d.logger.Warn("skipping oversized stream record",
					"error", &FrameError{Record: string(line), Err: ErrRecordTooLarge})
				continue
			}
			if f, ok := d.decodeLine(line); ok {
				if f.Terminal {
					d.done = true
				}
				return f, true
			}
			continue
		}

		d.done = true
		if errors.Is(err, io.EOF) {
			if len(line) > 0 || oversized {
				d.logger.Debug("discarding partial record at end of stream", "bytes", len(line))
			}
			err = ErrUnexpectedEnd
		}
		terr := &TransportError{Err: err}
		return Frame{
			Payload:  Payload{Error: terr.Error()},
			Terminal: true,
			Err:      terr,
		}, true
	}
}

// readLine reads through the next newline. Once a line grows past the
// record limit the rest of it is discarded, and only a short prefix is
// returned for logging.
func (d *Decoder) readLine() (line []byte, oversized bool, err error) {
	for {
		chunk, err := d.r.ReadSlice('\n')
		if !oversized {
			if len(line)+len(chunk) > d.maxRecord {
				oversized = true
				line = append(line, chunk...)
				line = line[:min(len(line), 80)]
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, oversized, err
	}
}

func (d *Decoder) decodeLine(line []byte) (Frame, bool) {
	line = bytes.TrimRight(line, "\r\n")
	if len(line) == 0 {
		return Frame{}, false
	}

	data, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		// Comments, event names and keep-alives carry nothing for us.
		return Frame{}, false
	}
	data = bytes.TrimPrefix(data, []byte(" "))

	if string(bytes.TrimSpace(data)) == doneSentinel {
		return Frame{Payload: Payload{Done: true}, Terminal: true}, true
	}

	p, err := parsePayload(data)
	if err != nil {
		d.logger.Warn("skipping malformed stream record", "error", &FrameError{Record: string(data), Err: err})
		return Frame{}, false
	}
	return Frame{Payload: p, Terminal: p.IsTerminal()}, true
}

// parsePayload decodes one record. A record that fails strict decoding gets
// one repair pass, and the repair is kept only when it deletes characters
// (a trailing comma, a comment). Repairs that add text, such as closing a
// truncated string or quoting a bare word, would invent content.
func parsePayload(data []byte) (Payload, error) {
	var p Payload
	err := json.Unmarshal(data, &p)
	if err == nil {
		return p, nil
	}

	repaired, rerr := jsonrepair.JSONRepair(string(data))
	if rerr != nil || !deletionOnly(string(data), repaired) {
		return Payload{}, err
	}
	var rp Payload
	if json.Unmarshal([]byte(repaired), &rp) != nil {
		return Payload{}, err
	}
	return rp, nil
}

// deletionOnly reports whether repaired is orig with some bytes removed.
func deletionOnly(orig, repaired string) bool {
	j := 0
	for i := 0; i < len(orig) && j < len(repaired); i++ {
		if orig[i] == repaired[j] {
			j++
		}
	}
	return j == len(repaired)
}
