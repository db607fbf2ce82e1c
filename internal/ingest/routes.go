package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"corpusd/internal/api"
	"corpusd/internal/content"
	"corpusd/internal/embeddings"
)

// maxPartBytes caps one multipart entry; anything larger than the client's
// own batch byte limit is suspect.
const maxPartBytes = 64 << 20

// RegisterRoutes mounts the content API.
func RegisterRoutes(r chi.Router, svc *Service) {
	r.Patch("/content", handleUpload(svc, false))
	r.Put("/content", handleUpload(svc, true))
	r.Delete("/content/type/{contentType}", handlePurge(svc))
}

func handleUpload(svc *Service, force bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account := accountFrom(r)

		var typeFilter *content.Type
		if t := r.URL.Query().Get("type"); t != "" {
			if !content.Valid(t) {
				writeError(w, http.StatusBadRequest, "unknown content type "+t)
				return
			}
			ct := content.Type(t)
			typeFilter = &ct
		}

		mr, err := r.MultipartReader()
		if err != nil {
			writeError(w, http.StatusBadRequest, "expected multipart body: "+err.Error())
			return
		}

		var parts []ReceivedPart
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				// Malformed payload rejects the whole batch.
				writeError(w, http.StatusBadRequest, "malformed multipart body: "+err.Error())
				return
			}
			if part.FormName() != "files" || part.FileName() == "" {
				part.Close()
				continue
			}
			body, err := io.ReadAll(io.LimitReader(part, maxPartBytes))
			part.Close()
			if err != nil {
				writeError(w, http.StatusBadRequest, "reading part "+part.FileName()+": "+err.Error())
				return
			}
			parts = append(parts, ReceivedPart{
				Path: part.FileName(),
				MIME: part.Header.Get("Content-Type"),
				Body: body,
			})
		}

		statuses, err := svc.IngestBatch(r.Context(), account, parts, typeFilter, force)
		if err != nil {
			// Throttling gets its own status so clients back off and
			// resend instead of marking files failed.
			if errors.Is(err, embeddings.ErrThrottled) {
				writeError(w, http.StatusTooManyRequests, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, api.IngestResponse{Files: statuses})
	}
}

func handlePurge(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t := chi.URLParam(r, "contentType")
		if !content.Valid(t) {
			writeError(w, http.StatusBadRequest, "unknown content type "+t)
			return
		}
		if err := svc.Purge(r.Context(), accountFrom(r), content.Type(t)); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func accountFrom(r *http.Request) string {
	if c := r.URL.Query().Get("client"); c != "" {
		return c
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, api.ErrorResponse{Error: msg})
}
