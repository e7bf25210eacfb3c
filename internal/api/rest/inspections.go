package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	app "roadsense/internal/application"
)

func (r *Router) list(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	res, err := r.inspections.List(req.Context(), identityFrom(req.Context()), page, limit)
	if err != nil {
		respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (r *Router) get(w http.ResponseWriter, req *http.Request) {
	rec, err := r.inspections.Get(req.Context(), identityFrom(req.Context()), req.PathValue("id"))
	if err != nil {
		respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func (r *Router) delete(w http.ResponseWriter, req *http.Request) {
	if err := r.inspections.Delete(req.Context(), identityFrom(req.Context()), req.PathValue("id")); err != nil {
		respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (r *Router) stats(w http.ResponseWriter, req *http.Request) {
	stats, err := r.inspections.Stats(req.Context(), identityFrom(req.Context()))
	if err != nil {
		respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (r *Router) heatmap(w http.ResponseWriter, req *http.Request) {
	points, err := r.inspections.Heatmap(req.Context())
	if err != nil {
		respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, points)
}

func (r *Router) updateStatus(w http.ResponseWriter, req *http.Request) {
	var body app.StatusRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := r.inspections.UpdateStatus(req.Context(), identityFrom(req.Context()), req.PathValue("id"), body)
	if err != nil {
		respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "inspection": rec})
}

func (r *Router) complete(w http.ResponseWriter, req *http.Request) {
	if !r.parseMultipart(w, req) {
		return
	}
	defer req.MultipartForm.RemoveAll()

	image, err := r.formFile(req, "after_image")
	switch {
	case errors.Is(err, errMissingFile):
		respondError(w, http.StatusBadRequest, "After image is required to complete inspection")
		return
	case errors.Is(err, errFileTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := r.inspections.Complete(req.Context(), identityFrom(req.Context()), req.PathValue("id"), app.CompletionRequest{
		Image:          image,
		CompletionDate: req.FormValue("completion_date"),
		AdminNotes:     req.FormValue("admin_notes"),
	})
	if err != nil {
		respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "inspection": rec})
}

func (r *Router) feedback(w http.ResponseWriter, req *http.Request) {
	var body app.FeedbackRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rec, err := r.inspections.AddFeedback(req.Context(), identityFrom(req.Context()), req.PathValue("id"), body)
	if err != nil {
		respondServiceError(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "inspection": rec})
}
