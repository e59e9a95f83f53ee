package segment

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_Example(t *testing.T) {
	segs := Split("Hello <think>why</think> world")

	require.Len(t, segs, 3)
	assert.Equal(t, "Hello  world", Answer(segs))
	assert.Equal(t, []string{"why"}, Reasoning(segs))
	assert.False(t, Thinking(segs))
}

func TestSplit_Cases(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		answer    string
		reasoning []string
		thinking  bool
	}{
		{name: "empty", in: ""},
		{name: "plain", in: "just text", answer: "just text"},
		{name: "leading", in: "<think>plan</think>\n\nAnswer.", answer: "\n\nAnswer.", reasoning: []string{"plan"}},
		{name: "multiple", in: "a<think>1</think>b<think>2</think>c", answer: "abc", reasoning: []string{"1", "2"}},
		{name: "multiline", in: "<think>line1\nline2</think>x", answer: "x", reasoning: []string{"line1\nline2"}},
		{name: "empty block", in: "<think></think>x", answer: "x"},
		{name: "open", in: "pre<think>still going", answer: "pre", reasoning: []string{"still going"}, thinking: true},
		{name: "just opened", in: "<think>", reasoning: []string{""}, thinking: true},
		{name: "closed then open", in: "<think>a</think>b<think>c", answer: "b", reasoning: []string{"a", "c"}, thinking: true},
		{name: "stray close", in: "a</think>b", answer: "ab"},
		{name: "stray close after block", in: "<think>r</think>a</think>b", answer: "ab", reasoning: []string{"r"}},
		{name: "nested", in: "x<think>a<think>b</think>c</think>y", answer: "xy", reasoning: []string{"abc"}},
		{name: "nested open", in: "x<think>a<think>b</think>c", answer: "x", reasoning: []string{"abc"}, thinking: true},
		{name: "partial marker stays answer", in: "x <thi", answer: "x <thi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs := Split(tt.in)
			assert.Equal(t, tt.answer, Answer(segs))
			assert.Equal(t, tt.reasoning, Reasoning(segs))
			assert.Equal(t, tt.thinking, Thinking(segs))
		})
	}
}

func TestSplit_OpenSegmentStaysReasoning(t *testing.T) {
	// A stream that dies mid-reasoning must not surface the trace as answer.
	segs := Split("Answer first. <think>half a thought")

	assert.Equal(t, "Answer first. ", Answer(segs))
	require.NotEmpty(t, segs)
	last := segs[len(segs)-1]
	assert.Equal(t, KindReasoning, last.Kind)
	assert.True(t, last.Open)
}

// randomBalanced builds text with paired, non-nested markers.
func randomBalanced(r *rand.Rand) string {
	words := []string{"alpha", " ", "beta", "\n", "γδ", "x<y", "</", "<th", "ank", ">"}
	var sb strings.Builder
	for i := 0; i < 1+r.Intn(6); i++ {
		for j := 0; j < r.Intn(5); j++ {
			sb.WriteString(words[r.Intn(len(words))])
		}
		if r.Intn(2) == 0 {
			sb.WriteString(OpenMarker)
			for j := 0; j < r.Intn(4); j++ {
				sb.WriteString(words[r.Intn(3)])
			}
			sb.WriteString(CloseMarker)
		}
	}
	return sb.String()
}

func TestSplit_JoinReproducesTextWithoutMarkers(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		s := randomBalanced(r)
		segs := Split(s)
		require.Equal(t, StripMarkers(s), Join(segs), "input %q", s)
	}
}

func TestSplit_ChunkBoundaryInvariance(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for i := 0; i < 300; i++ {
		s := randomBalanced(r)
		want := Split(s)

		// Feed the text through a random partition, re-splitting the
		// cumulative text after every chunk as a live consumer does.
		var acc strings.Builder
		var got []Segment
		for rest := s; rest != ""; {
			n := 1 + r.Intn(len(rest))
			acc.WriteString(rest[:n])
			rest = rest[n:]
			got = Split(acc.String())
		}
		if s == "" {
			got = Split("")
		}
		require.Equal(t, want, got, "input %q", s)
		require.Equal(t, Answer(want), Answer(got))
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "answer", KindAnswer.String())
	assert.Equal(t, "reasoning", KindReasoning.String())
}
