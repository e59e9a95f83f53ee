// Package segment classifies assistant output into visible answer text and
// <think>…</think> reasoning traces.
//
// Classification is a pure function of the cumulative text: callers re-run
// Split on every delta, so the result never depends on where chunk
// boundaries fell.
package segment

import "strings"

const (
	OpenMarker  = "<think>"
	CloseMarker = "</think>"
)

// Kind classifies a Segment.
type Kind int

const (
	KindAnswer Kind = iota
	KindReasoning
)

func (k Kind) String() string {
	if k == KindReasoning {
		return "reasoning"
	}
	return "answer"
}

// Segment is one classified span of assistant text, markers removed.
type Segment struct {
	Kind Kind
	Text string
	// Open marks a reasoning segment whose closing marker has not arrived.
	Open bool
}

// Split returns the ordered segments of text. Markers nest: reasoning ends
// only when every opening marker has been closed, and the inner markers are
// dropped. A closing marker with nothing open is dropped too. An opening
// marker that is never closed turns the rest of the text into an Open
// reasoning segment; it stays reasoning even after the stream ends so an
// incomplete trace never leaks into the answer.
func Split(text string) []Segment {
	var (
		segs  []Segment
		cur   strings.Builder
		depth int
	)
	for {
		i, marker := nextMarker(text)
		if i < 0 {
			cur.WriteString(text)
			break
		}
		cur.WriteString(text[:i])
		text = text[i+len(marker):]

		switch {
		case marker == OpenMarker && depth == 0:
			segs = appendAnswer(segs, cur.String())
			cur.Reset()
			depth = 1
		case marker == OpenMarker:
			depth++
		case depth == 0:
			// stray close
		case depth == 1:
			if cur.Len() > 0 {
				segs = append(segs, Segment{Kind: KindReasoning, Text: cur.String()})
			}
			cur.Reset()
			depth = 0
		default:
			depth--
		}
	}

	if depth > 0 {
		return append(segs, Segment{Kind: KindReasoning, Text: cur.String(), Open: true})
	}
	return appendAnswer(segs, cur.String())
}

// nextMarker returns the index and text of the first marker in s, or -1.
func nextMarker(s string) (int, string) {
	o := strings.Index(s, OpenMarker)
	c := strings.Index(s, CloseMarker)
	switch {
	case o < 0 && c < 0:
		return -1, ""
	case c < 0 || (o >= 0 && o < c):
		return o, OpenMarker
	}
	return c, CloseMarker
}

func appendAnswer(segs []Segment, s string) []Segment {
	if s == "" {
		return segs
	}
	return append(segs, Segment{Kind: KindAnswer, Text: s})
}

// Answer concatenates the answer segments in order.
func Answer(segs []Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		if s.Kind == KindAnswer {
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}

// Reasoning returns the text of every reasoning segment in order.
func Reasoning(segs []Segment) []string {
	var out []string
	for _, s := range segs {
		if s.Kind == KindReasoning {
			out = append(out, s.Text)
		}
	}
	return out
}

// Thinking reports whether the text currently ends inside an open reasoning
// segment.
func Thinking(segs []Segment) bool {
	return len(segs) > 0 && segs[len(segs)-1].Open
}

// Join concatenates all segments in order. It always equals
// StripMarkers(text) for the text the segments were split from.
func Join(segs []Segment) string {
	var sb strings.Builder
	for _, s := range segs {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// StripMarkers removes every think marker from text.
func StripMarkers(text string) string {
	return strings.NewReplacer(OpenMarker, "", CloseMarker, "").Replace(text)
}
