package api

import (
	"fmt"
	"net/http"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/ingest"
)

func handleListPDFs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		infos, err := deps.Library.List(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "error listing PDFs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, infos)
	}
}

func handlePDFInfo(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := deps.Library.Info(pathParam(r, "filename"))
		if err != nil {
			documentError(w, err, "error getting PDF info")
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func handlePageText(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, ok := pageParam(r)
		if !ok {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "page must be a number")
			return
		}
		filename := pathParam(r, "filename")

		text, err := deps.Library.PageText(filename, page)
		if err != nil {
			documentError(w, err, "error extracting text")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"filename":    filename,
			"page_number": page,
			"text":        text,
		})
	}
}

func handlePDFFile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := pathParam(r, "filename")
		path, err := deps.Library.Path(filename)
		if err != nil {
			documentError(w, err, "error serving PDF")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
		http.ServeFile(w, r, path)
	}
}

func handleExtract(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := pathParam(r, "filename")
		if _, err := deps.Library.Path(filename); err != nil {
			documentError(w, err, "error queueing extraction")
			return
		}
		id, err := ingest.Enqueue(deps.Store, filename)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"job_id": id,
			"status": "queued",
		})
	}
}
