// Package api is the HTTP backend the reader streams from: page analysis
// and chat over "data:" records, plus the library, notes, progress and
// preferences endpoints.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/library"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/ollama"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/pdf"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// LLM is the local model backend.
type LLM interface {
	IsRunning(ctx context.Context) bool
	Chat(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options) (string, error)
	ChatStream(ctx context.Context, model string, messages []ollama.Message, opts *ollama.Options) (*ollama.ChatStream, error)
}

// Deps holds the handler dependencies.
type Deps struct {
	Store   *storage.Store
	Library *library.Library
	LLM     LLM
	Model   string
	Logger  *slog.Logger // optional; defaults to slog.Default()
}

// NewHandler returns the backend's HTTP routes.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Route("/ai", func(r chi.Router) {
		r.Get("/health", handleAIHealth(deps))
		r.Post("/analyze", handleAnalyze(deps))
		r.Post("/analyze/stream", handleAnalyzeStream(deps))
		r.Post("/chat", handleChat(deps))
		r.Get("/{filename}/context/{page}", handlePageContext(deps))
	})

	r.Route("/pdf", func(r chi.Router) {
		r.Get("/list", handleListPDFs(deps))
		r.Get("/{filename}/info", handlePDFInfo(deps))
		r.Get("/{filename}/text/{page}", handlePageText(deps))
		r.Get("/{filename}/file", handlePDFFile(deps))
		r.Post("/{filename}/extract", handleExtract(deps))
	})

	r.Route("/notes", func(r chi.Router) {
		r.Post("/", handleCreateNote(deps))
		r.Get("/summary", handleNotesSummary(deps))
		r.Get("/id/{id}", handleGetNote(deps))
		r.Get("/{filename}", handleListNotes(deps))
		r.Delete("/{id}", handleDeleteNote(deps))
	})

	r.Get("/progress", handleListProgress(deps))
	r.Get("/progress/{filename}", handleGetProgress(deps))
	r.Put("/progress/{filename}", handleSaveProgress(deps))

	r.Get("/prefs", handleAllPrefs(deps))
	r.Get("/prefs/{key}", handleGetPref(deps))
	r.Put("/prefs/{key}", handleSetPref(deps))

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ollamaState := "down"
		if deps.LLM.IsRunning(r.Context()) {
			ollamaState = "up"
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"model":  deps.Model,
			"ollama": ollamaState,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// documentError maps library and extraction errors to a response.
func documentError(w http.ResponseWriter, err error, what string) {
	var rangeErr *pdf.PageRangeError
	switch {
	case errors.Is(err, library.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "PDF not found")
	case errors.Is(err, pdf.ErrNotPDF), errors.As(err, &rangeErr):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%s: %v", what, err)
	}
}

// pathParam returns the decoded value of a route parameter.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v
	}
	if dec, err := url.PathUnescape(v); err == nil {
		return dec
	}
	return v
}

func pageParam(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}
