package rest

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	app "roadsense/internal/application"
)

// formOverhead запас на текстовые поля формы сверх самого снимка
const formOverhead = 1 << 20

var (
	errMissingFile  = errors.New("missing file")
	errFileTooLarge = errors.New("file too large")
)

func (r *Router) inspect(w http.ResponseWriter, req *http.Request) {
	if !r.parseMultipart(w, req) {
		return
	}
	defer req.MultipartForm.RemoveAll()

	latRaw, lngRaw := req.FormValue("lat"), req.FormValue("lng")
	if strings.TrimSpace(latRaw) == "" || strings.TrimSpace(lngRaw) == "" {
		respondError(w, http.StatusBadRequest, "Latitude and longitude are required")
		return
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(latRaw), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(lngRaw), 64)
	if errLat != nil || errLng != nil {
		respondError(w, http.StatusBadRequest, "Latitude and longitude must be numbers")
		return
	}

	var shotAt time.Time
	if ts := strings.TrimSpace(req.FormValue("timestamp")); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			respondError(w, http.StatusBadRequest, "timestamp must be RFC3339")
			return
		}
		shotAt = parsed
	}

	image, err := r.formFile(req, "image")
	switch {
	case errors.Is(err, errMissingFile):
		respondError(w, http.StatusBadRequest, "Image file is required")
		return
	case errors.Is(err, errFileTooLarge):
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := r.pipeline.Process(req.Context(), app.Submission{
		Image:       image,
		Lat:         lat,
		Lng:         lng,
		Timestamp:   shotAt,
		InspectorID: identityFrom(req.Context()).UserID,
	})
	if err != nil {
		respondServiceError(w, req, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"inspection": out.Record,
	})
}

// parseMultipart разбирает форму с ограничением размера; при ошибке ответ уже отправлен
func (r *Router) parseMultipart(w http.ResponseWriter, req *http.Request) bool {
	req.Body = http.MaxBytesReader(w, req.Body, r.opts.MaxUploadBytes+formOverhead)
	if err := req.ParseMultipartForm(r.opts.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", r.opts.MaxUploadBytes))
			return false
		}
		respondError(w, http.StatusBadRequest, "multipart form expected")
		return false
	}
	return true
}

func (r *Router) formFile(req *http.Request, field string) ([]byte, error) {
	f, _, err := req.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, errMissingFile
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, r.opts.MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	if int64(len(data)) > r.opts.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", errFileTooLarge, field, r.opts.MaxUploadBytes)
	}
	if len(data) == 0 {
		return nil, errMissingFile
	}
	return data, nil
}
