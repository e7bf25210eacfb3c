// Package rest HTTP API сервиса обследований.
package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	app "roadsense/internal/application"
	"roadsense/internal/domain/port"
	"roadsense/internal/lgr"
)

const defaultMaxUpload = 10 << 20

// Options необязательные части API
type Options struct {
	MaxUploadBytes int64
	// Files раздаёт объекты локального хранилища по /storage/{bucket}/{key}
	Files http.Handler
}

// Router собирает обработчики /api и /storage
type Router struct {
	pipeline    *app.InspectionPipeline
	inspections *app.InspectionService
	verifier    port.TokenVerifier
	opts        Options
	now         func() time.Time
}

func NewRouter(pipeline *app.InspectionPipeline, inspections *app.InspectionService, verifier port.TokenVerifier, opts Options) *Router {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	return &Router{
		pipeline:    pipeline,
		inspections: inspections,
		verifier:    verifier,
		opts:        opts,
		now:         time.Now,
	}
}

func (r *Router) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", r.health)

	mux.Handle("POST /api/inspect", r.authenticate(r.inspect))

	mux.Handle("GET /api/inspections", r.authenticate(r.list))
	mux.Handle("GET /api/inspections/{id}", r.authenticate(r.get))
	mux.Handle("DELETE /api/inspections/{id}", r.authenticate(r.requireAdmin(r.delete)))

	mux.Handle("GET /api/stats", r.authenticate(r.requireAdmin(r.stats)))
	mux.Handle("GET /api/heatmap", r.authenticate(r.heatmap))

	mux.Handle("PATCH /api/workflow/{id}/status", r.authenticate(r.requireAdmin(r.updateStatus)))
	mux.Handle("POST /api/workflow/{id}/complete", r.authenticate(r.requireAdmin(r.complete)))
	mux.Handle("POST /api/workflow/{id}/feedback", r.authenticate(r.feedback))

	if r.opts.Files != nil {
		mux.Handle("GET /storage/{bucket}/{key}", r.opts.Files)
	}
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": r.now().UTC().Format(time.RFC3339Nano),
		"service":   "RoadSense API",
	})
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		lgr.Logger.Warn("write json", lgr.Err(err))
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorBody{Error: msg})
}

// respondServiceError переводит ошибки сервисов в коды ответа
func respondServiceError(w http.ResponseWriter, req *http.Request, err error) {
	var stageErr *app.StageError
	switch {
	case errors.As(err, &stageErr):
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to process inspection", Details: stageErr.Error()})
	case errors.Is(err, app.ErrInvalidSubmission), errors.Is(err, app.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrForbidden):
		respondError(w, http.StatusForbidden, "Access denied")
	case errors.Is(err, port.ErrInspectionNotFound):
		respondError(w, http.StatusNotFound, "Inspection not found")
	default:
		lgr.Logger.Error("request failed", "method", req.Method, "path", req.URL.Path, lgr.Err(err))
		respondJSON(w, http.StatusInternalServerError, errorBody{Error: "Internal server error", Details: err.Error()})
	}
}
