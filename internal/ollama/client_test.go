package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// tagsJSON builds a /api/tags response with the given model names.
func tagsJSON(names ...string) []byte {
	r := tagsResponse{}
	for _, n := range names {
		r.Models = append(r.Models, modelEntry{Name: n})
	}
	b, _ := json.Marshal(r)
	return b
}

func TestIsRunning_Up(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("qwen3:8b"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if !c.IsRunning(context.Background()) {
		t.Error("IsRunning() = false, want true")
	}
}

func TestIsRunning_Down(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	if c.IsRunning(context.Background()) {
		t.Error("IsRunning() = true, want false")
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("qwen3:8b", "llama3.2:latest"))
	}))
	defer srv.Close()

	models, err := New(srv.URL + "/").ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	want := []string{"qwen3:8b", "llama3.2:latest"}
	if len(models) != len(want) {
		t.Fatalf("got %d models, want %d", len(models), len(want))
	}
	for i, w := range want {
		if models[i] != w {
			t.Errorf("models[%d] = %q, want %q", i, models[i], w)
		}
	}
}

func TestHasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("qwen3:8b", "llama3.2:latest"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	cases := map[string]bool{
		"qwen3:8b":  true,
		"llama3.2":  true,
		"qwen3:14b": false,
		"mistral":   false,
	}
	for name, want := range cases {
		if got := c.HasModel(context.Background(), name); got != want {
			t.Errorf("HasModel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestChat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"message":{"role":"assistant","content":"pong"},"done":true}`))
	}))
	defer srv.Close()

	reply, err := New(srv.URL).Chat(context.Background(), "qwen3:8b",
		[]Message{{Role: "user", Content: "ping"}}, &Options{Temperature: 0.7})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "pong" {
		t.Errorf("reply = %q, want pong", reply)
	}
	if got.Stream {
		t.Error("stream = true, want false")
	}
	if got.Options == nil || got.Options.Temperature != 0.7 {
		t.Errorf("options = %+v, want temperature 0.7", got.Options)
	}
}

func TestChat_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Chat(context.Background(), "missing", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "model not found") {
		t.Fatalf("err = %v, want model not found", err)
	}
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("stream = false, want true")
		}
		io.WriteString(w, `{"message":{"role":"assistant","content":"<think>"},"done":false}`+"\n")
		io.WriteString(w, "not json\n\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":""},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":"hm</think>Hi"},"done":false}`+"\n")
		io.WriteString(w, `{"message":{"role":"assistant","content":""},"done":true}`+"\n")
	}))
	defer srv.Close()

	s, err := New(srv.URL).ChatStream(context.Background(), "qwen3:8b", []Message{{Role: "user", Content: "hi"}}, nil)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	defer s.Close()

	var chunks []string
	for {
		c, err := s.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		chunks = append(chunks, c)
	}
	if strings.Join(chunks, "|") != "<think>|hm</think>Hi" {
		t.Errorf("chunks = %q", chunks)
	}
	if _, err := s.Next(); err != io.EOF {
		t.Errorf("Next after done = %v, want io.EOF", err)
	}
}

func TestChatStream_Truncated(t *testing.T) {
	s := newChatStream(io.NopCloser(strings.NewReader(`{"message":{"content":"par"},"done":false}`)))

	c, err := s.Next()
	if err != nil || c != "par" {
		t.Fatalf("Next = %q, %v", c, err)
	}
	if _, err := s.Next(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("err = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestChatStream_ErrorLine(t *testing.T) {
	s := newChatStream(io.NopCloser(strings.NewReader(`{"error":"out of memory"}` + "\n")))

	_, err := s.Next()
	if err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("err = %v, want out of memory", err)
	}
}

func TestPullModel_Progress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"pulling manifest"}`+"\n")
		io.WriteString(w, `{"status":"downloading","total":100,"completed":50}`+"\n")
		io.WriteString(w, `{"status":"success"}`+"\n")
	}))
	defer srv.Close()

	var statuses []string
	err := New(srv.URL).PullModel(context.Background(), "qwen3:8b", func(p PullProgress) {
		statuses = append(statuses, p.Status)
	})
	if err != nil {
		t.Fatalf("PullModel: %v", err)
	}
	if strings.Join(statuses, ",") != "pulling manifest,downloading,success" {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestEnsureReady(t *testing.T) {
	var chats int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.Write(tagsJSON("qwen3:8b"))
		case "/api/chat":
			chats++
			w.Write([]byte(`{"message":{"content":"pong"},"done":true}`))
		default:
			t.Errorf("unexpected request to %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := EnsureReady(context.Background(), New(srv.URL), "qwen3:8b", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if chats != 1 {
		t.Errorf("warm-up chats = %d, want 1", chats)
	}
	if !strings.Contains(out.String(), "model qwen3:8b: warm") {
		t.Errorf("output = %q", out.String())
	}
}

func TestEnsureReady_OllamaDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	err := EnsureReady(context.Background(), New(srv.URL), "qwen3:8b", io.Discard)
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("err = %v, want not running", err)
	}
}
