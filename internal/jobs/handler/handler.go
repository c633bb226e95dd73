// Package handler exposes the transcription job service over REST.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/voicetyped/chunkscribe/internal/jobs"
	"github.com/voicetyped/chunkscribe/internal/profiles"
	"github.com/voicetyped/chunkscribe/pkg/export"
	"github.com/voicetyped/chunkscribe/pkg/transcript"
)

// DefaultMaxUploadBytes caps an upload when no limit is configured.
const DefaultMaxUploadBytes = 2 << 30

// multipartMemory is how much of a multipart form is buffered in memory
// before spilling to temporary files.
const multipartMemory = 32 << 20

// JobService is the subset of jobs.Service the REST surface needs.
type JobService interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
	Chunks(ctx context.Context, id string) ([]transcript.SegmentResult, error)
	Callbacks(ctx context.Context, id string) ([]jobs.CallbackAttempt, error)
	Cancel(ctx context.Context, id string) (*jobs.Job, error)
	Export(ctx context.Context, id string, f export.Format) ([]byte, string, error)
	Profiles() []profiles.Profile
}

// Handler provides REST endpoints for transcription jobs.
type Handler struct {
	svc            JobService
	maxUploadBytes int64
}

// NewHandler creates a job API handler. A non-positive maxUploadBytes
// selects DefaultMaxUploadBytes.
func NewHandler(svc JobService, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{svc: svc, maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes registers all job API routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/transcriptions", h.Create)
	mux.HandleFunc("GET /api/v1/transcriptions/{id}", h.Get)
	mux.HandleFunc("GET /api/v1/transcriptions/{id}/chunks", h.ListChunks)
	mux.HandleFunc("GET /api/v1/transcriptions/{id}/callbacks", h.ListCallbacks)
	mux.HandleFunc("POST /api/v1/transcriptions/{id}/cancel", h.Cancel)
	mux.HandleFunc("GET /api/v1/transcriptions/{id}/export/{format}", h.Export)
	mux.HandleFunc("GET /api/v1/profiles", h.ListProfiles)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "transcription not found")
	case errors.Is(err, jobs.ErrNotCancellable), errors.Is(err, jobs.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.ErrorContext(r.Context(), "transcription request failed",
			slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// Create handles POST /api/v1/transcriptions
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	job, err := h.svc.Submit(r.Context(), jobs.SubmitRequest{
		SourceName:  header.Filename,
		MimeType:    header.Header.Get("Content-Type"),
		Data:        data,
		Profile:     r.FormValue("profile"),
		CallbackURL: r.FormValue("callback_url"),
	})
	if err != nil {
		if errors.Is(err, jobs.ErrEmptyUpload) || errors.Is(err, jobs.ErrUnknownProfile) || errors.Is(err, jobs.ErrInvalidCallback) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/transcriptions/"+job.ID)
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

// Get handles GET /api/v1/transcriptions/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// ListChunks handles GET /api/v1/transcriptions/{id}/chunks
func (h *Handler) ListChunks(w http.ResponseWriter, r *http.Request) {
	chunks, err := h.svc.Chunks(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := make([]ChunkResponse, 0, len(chunks))
	for _, c := range chunks {
		resp = append(resp, toChunkResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListCallbacks handles GET /api/v1/transcriptions/{id}/callbacks
func (h *Handler) ListCallbacks(w http.ResponseWriter, r *http.Request) {
	attempts, err := h.svc.Callbacks(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	limit := len(attempts)
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n < limit {
			limit = n
		}
	}
	resp := make([]CallbackResponse, 0, limit)
	for _, a := range attempts[:limit] {
		resp = append(resp, toCallbackResponse(a))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Cancel handles POST /api/v1/transcriptions/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Cancel(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

// Export handles GET /api/v1/transcriptions/{id}/export/{format}
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := export.ParseFormat(r.PathValue("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	body, name, err := h.svc.Export(r.Context(), r.PathValue("id"), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// ListProfiles handles GET /api/v1/profiles
func (h *Handler) ListProfiles(w http.ResponseWriter, _ *http.Request) {
	list := h.svc.Profiles()
	resp := make([]ProfileResponse, 0, len(list))
	for _, p := range list {
		resp = append(resp, toProfileResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}
