package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/segment"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/sse"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
	deltas chan Event
}

func newRecorder() *recorder {
	return &recorder{deltas: make(chan Event, 64)}
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	if ev.Kind == EventDelta {
		select {
		case r.deltas <- ev:
		default:
		}
	}
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) kinds() []EventKind {
	var out []EventKind
	for _, ev := range r.snapshot() {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) chunks() []string {
	var out []string
	for _, ev := range r.snapshot() {
		if ev.Kind == EventDelta && ev.Chunk != "" {
			out = append(out, ev.Chunk)
		}
	}
	return out
}

func contentFrame(s string) string {
	b, _ := json.Marshal(map[string]string{"content": s})
	return "data: " + string(b) + "\n\n"
}

const doneFrame = "data: {\"done\":true}\n\n"

func stringOpener(wire string) Opener {
	return OpenerFunc(func(context.Context, Request) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(wire)), nil
	})
}

// blockingOpener returns bodies that never produce data and unblock only
// when the request context ends.
func blockingOpener() Opener {
	return OpenerFunc(func(ctx context.Context, _ Request) (io.ReadCloser, error) {
		pr, pw := io.Pipe()
		go func() {
			<-ctx.Done()
			pw.CloseWithError(ctx.Err())
		}()
		return pr, nil
	})
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session %d did not finish", s.ID())
	}
}

func run(t *testing.T, opener Opener) (*Session, *recorder) {
	t.Helper()
	rec := newRecorder()
	s := NewSession(1, opener, Request{Kind: EndpointChat}, rec.handle)
	require.NoError(t, s.Start(context.Background()))
	waitDone(t, s)
	return s, rec
}

func TestSession_ThinkExample(t *testing.T) {
	wire := contentFrame("Hello <think>") + contentFrame("why") + contentFrame("</think> world") + doneFrame

	s, rec := run(t, stringOpener(wire))

	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, "Hello <think>why</think> world", s.Text())
	assert.Equal(t, []string{"Hello <think>", "why", "</think> world"}, rec.chunks())
	assert.Equal(t, []EventKind{EventDelta, EventDelta, EventDelta, EventCompleted}, rec.kinds())

	segs := segment.Split(s.Text())
	assert.Equal(t, "Hello  world", segment.Answer(segs))
	assert.Equal(t, []string{"why"}, segment.Reasoning(segs))
}

func TestSession_DeltaCarriesAccumulatedText(t *testing.T) {
	wire := contentFrame("a") + contentFrame("b") + contentFrame("c") + doneFrame

	_, rec := run(t, stringOpener(wire))

	var texts []string
	for _, ev := range rec.snapshot() {
		texts = append(texts, ev.Text)
	}
	assert.Equal(t, []string{"a", "ab", "abc", "abc"}, texts)
}

func TestSession_AbruptCloseFails(t *testing.T) {
	s, rec := run(t, stringOpener(contentFrame("partial")))

	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, "partial", s.Text())
	var terr *sse.TransportError
	require.ErrorAs(t, s.Err(), &terr)
	assert.ErrorIs(t, s.Err(), sse.ErrUnexpectedEnd)

	events := rec.snapshot()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, EventFailed, last.Kind)
	assert.Equal(t, "partial", last.Text)
}

func TestSession_MalformedRecordSkipped(t *testing.T) {
	wire := contentFrame("a") + "data: {not json at all\n\n" + contentFrame("b") + doneFrame

	s, rec := run(t, stringOpener(wire))

	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, "ab", s.Text())
	assert.Equal(t, []string{"a", "b"}, rec.chunks())
}

func TestSession_UpstreamErrorPayload(t *testing.T) {
	wire := contentFrame("so far") + "data: {\"error\":\"model not loaded\"}\n\n" + contentFrame("late")

	s, rec := run(t, stringOpener(wire))

	assert.Equal(t, StateFailed, s.State())
	assert.Equal(t, "so far", s.Text())
	var uerr *UpstreamError
	require.ErrorAs(t, s.Err(), &uerr)
	assert.Equal(t, "model not loaded", uerr.Message)
	assert.Equal(t, []EventKind{EventDelta, EventFailed}, rec.kinds())
}

func TestSession_AuxOnlyFrame(t *testing.T) {
	wire := "data: {\"text_extracted\":false}\n\n" + doneFrame

	s, rec := run(t, stringOpener(wire))

	assert.Equal(t, StateCompleted, s.State())
	assert.Empty(t, s.Text())
	require.NotNil(t, s.Aux())
	assert.False(t, *s.Aux())

	events := rec.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, EventDelta, events[0].Kind)
	require.NotNil(t, events[0].Aux)
	assert.False(t, *events[0].Aux)
}

func TestSession_ContentAndDoneInOneFrame(t *testing.T) {
	s, rec := run(t, stringOpener("data: {\"content\":\"tail\",\"done\":true}\n\n"))

	assert.Equal(t, StateCompleted, s.State())
	assert.Equal(t, "tail", s.Text())
	assert.Equal(t, []EventKind{EventDelta, EventCompleted}, rec.kinds())
}

func TestSession_OpenErrors(t *testing.T) {
	t.Run("connection refused", func(t *testing.T) {
		refused := errors.New("dial tcp: connection refused")
		s, rec := run(t, OpenerFunc(func(context.Context, Request) (io.ReadCloser, error) {
			return nil, refused
		}))

		assert.Equal(t, StateFailed, s.State())
		var terr *sse.TransportError
		require.ErrorAs(t, s.Err(), &terr)
		assert.ErrorIs(t, s.Err(), refused)
		assert.Equal(t, []EventKind{EventFailed}, rec.kinds())
	})

	t.Run("upstream status", func(t *testing.T) {
		s, _ := run(t, OpenerFunc(func(context.Context, Request) (io.ReadCloser, error) {
			return nil, &UpstreamError{Message: "status 500"}
		}))

		var uerr *UpstreamError
		require.ErrorAs(t, s.Err(), &uerr)
		assert.Equal(t, "status 500", uerr.Message)
	})
}

func TestSession_StartTwice(t *testing.T) {
	s, _ := run(t, stringOpener(doneFrame))
	assert.Error(t, s.Start(context.Background()))
}

// gatedBody hands out first immediately, then blocks until gate is closed
// before handing out rest.
type gatedBody struct {
	mu      sync.Mutex
	pending []byte
	rest    []byte
	gate    chan struct{}
	gated   bool
	closed  chan struct{}
	once    sync.Once
}

func newGatedBody(first, rest string) *gatedBody {
	return &gatedBody{
		pending: []byte(first),
		rest:    []byte(rest),
		gate:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

func (g *gatedBody) Read(p []byte) (int, error) {
	g.mu.Lock()
	if len(g.pending) == 0 && !g.gated {
		g.gated = true
		g.mu.Unlock()
		<-g.gate
		g.mu.Lock()
		g.pending = g.rest
	}
	defer g.mu.Unlock()
	if len(g.pending) == 0 {
		return 0, io.EOF
	}
	n := copy(p, g.pending)
	g.pending = g.pending[n:]
	return n, nil
}

func (g *gatedBody) Close() error {
	g.once.Do(func() { close(g.closed) })
	return nil
}

func TestSession_CancelIsSilent(t *testing.T) {
	body := newGatedBody(contentFrame("first"), contentFrame("second")+contentFrame("third")+doneFrame)
	rec := newRecorder()
	s := NewSession(1, OpenerFunc(func(context.Context, Request) (io.ReadCloser, error) {
		return body, nil
	}), Request{Kind: EndpointAnalyze}, rec.handle)
	require.NoError(t, s.Start(context.Background()))

	select {
	case <-rec.deltas:
	case <-time.After(5 * time.Second):
		t.Fatal("no delta")
	}

	require.True(t, s.Cancel())
	assert.Equal(t, StateCancelled, s.State())
	select {
	case <-body.closed:
	case <-time.After(5 * time.Second):
		t.Fatal("body not closed")
	}

	// Release bytes that were still in flight when the cancel happened.
	close(body.gate)
	waitDone(t, s)

	assert.Equal(t, []EventKind{EventDelta, EventCancelled}, rec.kinds())
	assert.Equal(t, "first", s.Text())
	assert.Equal(t, StateCancelled, s.State())
	assert.False(t, s.Cancel())
}

func TestSession_ParentContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder()
	s := NewSession(1, blockingOpener(), Request{Kind: EndpointChat}, rec.handle)
	require.NoError(t, s.Start(ctx))

	cancel()
	waitDone(t, s)

	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, []EventKind{EventCancelled}, rec.kinds())
}

func TestSession_CancelledBeforeRunSkipsOpen(t *testing.T) {
	var opened atomic.Int32
	rec := newRecorder()
	s := NewSession(1, OpenerFunc(func(ctx context.Context, req Request) (io.ReadCloser, error) {
		opened.Add(1)
		return stringOpener(contentFrame("x")+doneFrame).Open(ctx, req)
	}), Request{Kind: EndpointChat}, rec.handle)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Start(ctx))
	waitDone(t, s)

	assert.Zero(t, opened.Load())
	assert.Equal(t, StateCancelled, s.State())
	assert.Equal(t, []EventKind{EventCancelled}, rec.kinds())
}

func TestSession_CancelBeforeOpenReturns(t *testing.T) {
	release := make(chan struct{})
	opened := make(chan struct{})
	closed := make(chan struct{})
	rec := newRecorder()
	s := NewSession(1, OpenerFunc(func(context.Context, Request) (io.ReadCloser, error) {
		close(opened)
		<-release
		return closeNotifier{Reader: strings.NewReader(contentFrame("late")), closed: closed}, nil
	}), Request{Kind: EndpointChat}, rec.handle)
	require.NoError(t, s.Start(context.Background()))

	<-opened
	require.True(t, s.Cancel())
	close(release)
	waitDone(t, s)

	select {
	case <-closed:
	default:
		t.Fatal("late body was not closed")
	}
	assert.Equal(t, []EventKind{EventCancelled}, rec.kinds())
}

type closeNotifier struct {
	io.Reader
	closed chan struct{}
}

func (c closeNotifier) Close() error {
	close(c.closed)
	return nil
}

// chunkReader returns its data in the given chunk sizes.
type chunkReader struct {
	chunks [][]byte
}

func newChunkReader(data string, r *rand.Rand) *chunkReader {
	cr := &chunkReader{}
	for rest := []byte(data); len(rest) > 0; {
		n := 1 + r.Intn(len(rest))
		cr.chunks = append(cr.chunks, rest[:n])
		rest = rest[n:]
	}
	return cr
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func TestSession_ChunkBoundaryInvariance(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	pieces := []string{"Hel", "lo", " <thi", "nk>", "plan", "</th", "ink>", " world", "\n", "ünï"}

	for i := 0; i < 100; i++ {
		var contents []string
		var wire strings.Builder
		for j := 0; j < 1+r.Intn(8); j++ {
			c := pieces[r.Intn(len(pieces))]
			contents = append(contents, c)
			wire.WriteString(contentFrame(c))
		}
		wire.WriteString(doneFrame)

		cr := newChunkReader(wire.String(), r)
		s, rec := run(t, OpenerFunc(func(context.Context, Request) (io.ReadCloser, error) {
			return io.NopCloser(cr), nil
		}))

		want := strings.Join(contents, "")
		require.Equal(t, StateCompleted, s.State(), "iteration %d", i)
		require.Equal(t, want, s.Text())
		require.Equal(t, contents, rec.chunks(), "every chunk is observed")
		require.Equal(t, segment.Split(want), segment.Split(s.Text()))
	}
}

func TestStateAndEventStrings(t *testing.T) {
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateIdle.Terminal())
	assert.Equal(t, "delta", EventDelta.String())
	assert.Equal(t, "State(42)", fmt.Sprint(State(42)))
}
