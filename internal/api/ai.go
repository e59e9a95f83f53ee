package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/analysis"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/library"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/ollama"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/proxy"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/segment"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/sse"
)

// maxContextPages caps the context_pages query parameter.
const maxContextPages = 10

func handleAIHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply, err := deps.LLM.Chat(r.Context(), deps.Model,
			[]ollama.Message{{Role: "user", Content: "Hello, are you working?"}}, nil)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "error", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "connected",
			"model":    deps.Model,
			"response": reply,
		})
	}
}

// AnalysisResponse is the body returned by POST /ai/analyze.
type AnalysisResponse struct {
	Filename      string `json:"filename"`
	PageNumber    int    `json:"page_number"`
	Analysis      string `json:"analysis"`
	TextExtracted bool   `json:"text_extracted"`
	TextLength    int    `json:"text_length,omitempty"`
}

// handleAnalyze answers in one response. Reasoning is stripped from the
// model reply; an empty page gets the advisory without a model call.
func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req proxy.AnalyzeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Filename == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "filename is required")
			return
		}

		text, err := deps.Library.PageText(req.Filename, req.PageNum)
		if err != nil {
			documentError(w, err, "analysis failed")
			return
		}
		resp := AnalysisResponse{Filename: req.Filename, PageNumber: req.PageNum}
		if strings.TrimSpace(text) == "" {
			resp.Analysis = analysis.Advisory
			writeJSON(w, http.StatusOK, resp)
			return
		}

		msgs := library.AnalysisMessages(req.Filename, req.PageNum, req.Context, text)
		reply, err := deps.LLM.Chat(r.Context(), deps.Model, msgs, &ollama.Options{Temperature: library.Temperature})
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "upstream error: %v", err)
			return
		}
		resp.Analysis = strings.TrimSpace(segment.Answer(segment.Split(reply)))
		resp.TextExtracted = true
		resp.TextLength = len(text)
		writeJSON(w, http.StatusOK, resp)
	}
}

func handleAnalyzeStream(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req proxy.AnalyzeRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Filename == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "filename is required")
			return
		}

		text, err := deps.Library.PageText(req.Filename, req.PageNum)
		if err != nil {
			documentError(w, err, "analysis failed")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		if strings.TrimSpace(text) == "" {
			startStream(w)
			sse.WriteFrame(w, sse.Payload{TextExtracted: sse.Bool(false)})
			sse.WriteFrame(w, sse.Payload{Done: true})
			flusher.Flush()
			return
		}

		msgs := library.AnalysisMessages(req.Filename, req.PageNum, req.Context, text)
		chunks, err := deps.LLM.ChatStream(r.Context(), deps.Model, msgs, &ollama.Options{Temperature: library.Temperature})
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "upstream error: %v", err)
			return
		}
		deps.Logger.Debug("page analysis streaming", "document", req.Filename, "page", req.PageNum, "text_len", len(text))
		relay(w, r, flusher, chunks, sse.Bool(true), deps.Logger)
	}
}

func handleChat(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req proxy.ChatRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Message) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}
		if req.Filename == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "filename is required")
			return
		}

		text, err := deps.Library.PageText(req.Filename, req.PageNum)
		if err != nil {
			documentError(w, err, "chat failed")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		history := make([]ollama.Message, len(req.ChatHistory))
		for i, m := range req.ChatHistory {
			history[i] = ollama.Message{Role: m.Role, Content: m.Content}
		}
		msgs := library.ChatMessages(req.Filename, req.PageNum, text, history, req.Message)

		chunks, err := deps.LLM.ChatStream(r.Context(), deps.Model, msgs, &ollama.Options{Temperature: library.Temperature})
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "upstream error: %v", err)
			return
		}
		deps.Logger.Debug("chat streaming", "document", req.Filename, "page", req.PageNum, "history", len(history))
		relay(w, r, flusher, chunks, nil, deps.Logger)
	}
}

func startStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

// relay forwards model chunks as content records until the model finishes,
// fails, or the client goes away.
func relay(w http.ResponseWriter, r *http.Request, flusher http.Flusher, chunks *ollama.ChatStream, extracted *bool, logger *slog.Logger) {
	defer chunks.Close()
	startStream(w)
	flusher.Flush()

	for {
		chunk, err := chunks.Next()
		if errors.Is(err, io.EOF) {
			sse.WriteFrame(w, sse.Payload{Done: true})
			flusher.Flush()
			return
		}
		if err != nil {
			if r.Context().Err() != nil {
				logger.Debug("client disconnected mid-stream")
				return
			}
			logger.Warn("model stream failed", "error", err)
			sse.WriteFrame(w, sse.Payload{Error: err.Error()})
			flusher.Flush()
			return
		}
		if err := sse.WriteFrame(w, sse.Payload{Content: chunk, TextExtracted: extracted}); err != nil {
			logger.Debug("writing stream record", "error", err)
			return
		}
		flusher.Flush()
	}
}

func handlePageContext(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := pageParam(r)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "page must be a number")
			return
		}
		n := parseIntParam(r, "context_pages", 1, maxContextPages)

		pc, err := deps.Library.Context(r.Context(), pathParam(r, "filename"), page, n)
		if err != nil {
			documentError(w, err, "error getting context")
			return
		}
		writeJSON(w, http.StatusOK, pc)
	}
}
