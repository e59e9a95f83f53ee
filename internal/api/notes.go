package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/storage"
)

// NoteRequest is the body of POST /notes.
type NoteRequest struct {
	DocumentRef string `json:"pdf_filename"`
	PageNumber  int    `json:"page_number"`
	Title       string `json:"title"`
	Content     string `json:"chat_content"`
}

// ProgressRequest is the body of PUT /progress/{filename}.
type ProgressRequest struct {
	LastPage   int `json:"last_page"`
	TotalPages int `json:"total_pages"`
}

// PreferenceRequest is the body of PUT /prefs/{key}.
type PreferenceRequest struct {
	Value string `json:"value"`
}

func handleCreateNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NoteRequest
		if !decodeBody(w, r, &req) {
			return
		}
		switch {
		case strings.TrimSpace(req.DocumentRef) == "":
			httpError(w, http.StatusBadRequest, "invalid_request_error", "pdf_filename is required")
			return
		case req.PageNumber < 1:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "page_number must be positive")
			return
		case strings.TrimSpace(req.Title) == "":
			httpError(w, http.StatusBadRequest, "invalid_request_error", "title is required")
			return
		}

		note, err := deps.Store.CreateNote(req.DocumentRef, req.PageNumber, req.Title, req.Content)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "error saving note: %v", err)
			return
		}
		deps.Logger.Info("note saved", "id", note.ID, "document", note.DocumentRef, "page", note.PageNumber)
		writeJSON(w, http.StatusCreated, note)
	}
}

func handleListNotes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := parseIntParam(r, "page", 0, 0)
		notes, err := deps.Store.ListNotes(pathParam(r, "filename"), page)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "error listing notes: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, notes)
	}
}

func handleGetNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		note, err := deps.Store.GetNote(chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "note not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "error getting note: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, note)
	}
}

func handleDeleteNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		err := deps.Store.DeleteNote(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "note not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "error deleting note: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
	}
}

func handleNotesSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summary, err := deps.Store.NotesSummary()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "error summarizing notes: %v", err)
			return
		}
		if summary == nil {
			summary = []storage.NoteSummary{}
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func handleGetProgress(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := deps.Store.GetProgress(pathParam(r, "filename"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "no reading progress")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "error getting progress: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleSaveProgress(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProgressRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.LastPage < 1 || req.TotalPages < 0 || (req.TotalPages > 0 && req.LastPage > req.TotalPages) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "last_page %d out of range 1..%d", req.LastPage, req.TotalPages)
			return
		}

		filename := pathParam(r, "filename")
		if err := deps.Store.SaveProgress(filename, req.LastPage, req.TotalPages); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "error saving progress: %v", err)
			return
		}
		p, err := deps.Store.GetProgress(filename)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "error reading progress: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func handleListProgress(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := deps.Store.ListProgress()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "error listing progress: %v", err)
			return
		}
		if all == nil {
			all = []storage.Progress{}
		}
		writeJSON(w, http.StatusOK, all)
	}
}

func handleAllPrefs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		prefs, err := deps.Store.AllPreferences()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "error listing preferences: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, prefs)
	}
}

func handleGetPref(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		v, err := deps.Store.GetPreference(key)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "preference %q not set", key)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "error getting preference: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": v})
	}
}

func handleSetPref(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		var req PreferenceRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if err := deps.Store.SetPreference(key, req.Value); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "error saving preference: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
	}
}
