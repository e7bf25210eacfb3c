package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	app "roadsense/internal/application"
	"roadsense/internal/domain/entity"
	"roadsense/internal/infrastructure/auth"
	"roadsense/internal/infrastructure/objectstore"
	"roadsense/internal/infrastructure/storage"
	"roadsense/internal/infrastructure/vision"
)

const publicBase = "http://example.test/storage"

type stubDetector struct {
	name string
	dets []entity.Detection
	err  error
}

func (d *stubDetector) Name() string { return d.name }

func (d *stubDetector) Detect(context.Context, []byte) ([]entity.Detection, error) {
	return d.dets, d.err
}

type testServer struct {
	mux      *http.ServeMux
	potholes *stubDetector
}

func newTestServer(t *testing.T, maxUpload int64) *testServer {
	t.Helper()

	store, err := objectstore.NewFileStore(t.TempDir(), publicBase)
	require.NoError(t, err)
	repo, err := storage.NewSQLiteInspectionRepository(filepath.Join(t.TempDir(), "roadsense.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	potholes := &stubDetector{name: "pothole", dets: []entity.Detection{
		{Class: "pothole", Confidence: 0.88, X: 20, Y: 20, Width: 10, Height: 8},
	}}
	cracks := &stubDetector{name: "crack"}

	agg, err := app.NewDetectionAggregator(potholes, cracks, time.Second)
	require.NoError(t, err)
	pub, err := app.NewArtifactPublisher(store, app.PublisherConfig{OriginalsBucket: "road-originals", AnnotatedBucket: "road-annotated"})
	require.NoError(t, err)
	pipeline, err := app.NewInspectionPipeline(agg, vision.NewAnnotator(2), pub, app.NewLocationResolver(nil, 0), repo)
	require.NoError(t, err)

	verifier := auth.NewStaticVerifier(map[string]entity.Identity{
		"admin-token": {UserID: "admin-1", Role: entity.RoleAdmin},
		"insp-token":  {UserID: "user-1"},
		"other-token": {UserID: "user-2"},
	})

	mux := http.NewServeMux()
	NewRouter(pipeline, app.NewInspectionService(repo, store, "inspections"), verifier, Options{
		MaxUploadBytes: maxUpload,
		Files:          store.Handler(),
	}).Register(mux)

	return &testServer{mux: mux, potholes: potholes}
}

func (s *testServer) do(t *testing.T, method, path, token string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	s.mux.ServeHTTP(rr, req)
	return rr
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, "road.png")
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func roadPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 48; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 90, G: 90, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type inspectResponse struct {
	Success    bool                    `json:"success"`
	Inspection entity.InspectionRecord `json:"inspection"`
	Error      string                  `json:"error"`
	Details    string                  `json:"details"`
}

func (s *testServer) submit(t *testing.T, token string) inspectResponse {
	t.Helper()
	body, ct := multipartBody(t, map[string]string{"lat": "18.5204", "lng": "73.8567"}, "image", roadPNG(t))
	rr := s.do(t, http.MethodPost, "/api/inspect", token, body, ct)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp inspectResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, 0)
	rr := s.do(t, http.MethodGet, "/api/health", "", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t, 0)

	rr := s.do(t, http.MethodGet, "/api/inspections", "", nil, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "Missing or invalid authorization header")

	rr = s.do(t, http.MethodGet, "/api/inspections", "forged", nil, "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Contains(t, rr.Body.String(), "Invalid or expired token")

	rr = s.do(t, http.MethodGet, "/api/stats", "insp-token", nil, "")
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), "Admin access required")
}

func TestInspect_SavesRecordAndServesArtifacts(t *testing.T) {
	s := newTestServer(t, 0)

	resp := s.submit(t, "insp-token")
	require.True(t, resp.Success)
	rec := resp.Inspection
	require.Equal(t, 85, rec.Score)
	require.Equal(t, entity.StatusGood, rec.Status)
	require.Equal(t, 1, rec.DefectCount)
	require.Equal(t, "user-1", rec.InspectorID)
	require.Equal(t, "18.5204, 73.8567", rec.Address)
	require.Equal(t, entity.RepairPending, rec.RepairStatus)

	for _, url := range []string{rec.OriginalImageURL, rec.AnnotatedImageURL} {
		require.True(t, strings.HasPrefix(url, publicBase+"/"), url)
		rr := s.do(t, http.MethodGet, strings.TrimPrefix(url, "http://example.test"), "", nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		_, err := png.DecodeConfig(rr.Body)
		require.NoError(t, err)
	}

	rr := s.do(t, http.MethodGet, "/api/inspections/"+rec.ID, "insp-token", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestInspect_Validation(t *testing.T) {
	s := newTestServer(t, 0)

	body, ct := multipartBody(t, map[string]string{"lat": "18.5"}, "image", roadPNG(t))
	rr := s.do(t, http.MethodPost, "/api/inspect", "insp-token", body, ct)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Latitude and longitude are required")

	body, ct = multipartBody(t, map[string]string{"lat": "18.5", "lng": "73.8"}, "", nil)
	rr = s.do(t, http.MethodPost, "/api/inspect", "insp-token", body, ct)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Image file is required")

	body, ct = multipartBody(t, map[string]string{"lat": "95", "lng": "73.8"}, "image", roadPNG(t))
	rr = s.do(t, http.MethodPost, "/api/inspect", "insp-token", body, ct)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body, ct = multipartBody(t, map[string]string{"lat": "1", "lng": "2", "timestamp": "yesterday"}, "image", roadPNG(t))
	rr = s.do(t, http.MethodPost, "/api/inspect", "insp-token", body, ct)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInspect_TooLarge(t *testing.T) {
	s := newTestServer(t, 16)

	body, ct := multipartBody(t, map[string]string{"lat": "1", "lng": "2"}, "image", roadPNG(t))
	rr := s.do(t, http.MethodPost, "/api/inspect", "insp-token", body, ct)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestInspect_DetectorFailure(t *testing.T) {
	s := newTestServer(t, 0)
	s.potholes.err = errors.New("model unavailable")

	body, ct := multipartBody(t, map[string]string{"lat": "1", "lng": "2"}, "image", roadPNG(t))
	rr := s.do(t, http.MethodPost, "/api/inspect", "insp-token", body, ct)
	require.Equal(t, http.StatusInternalServerError, rr.Code)

	var resp inspectResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "Failed to process inspection", resp.Error)
	require.Contains(t, resp.Details, "model unavailable")

	rr = s.do(t, http.MethodGet, "/api/inspections", "admin-token", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"total":0`)
}

func TestInspections_ScopeAndAdminActions(t *testing.T) {
	s := newTestServer(t, 0)
	mine := s.submit(t, "insp-token").Inspection
	s.submit(t, "other-token")

	var page app.Page
	rr := s.do(t, http.MethodGet, "/api/inspections?page=1&limit=10", "insp-token", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Equal(t, 1, page.Total)
	require.Equal(t, mine.ID, page.Inspections[0].ID)

	rr = s.do(t, http.MethodGet, "/api/inspections", "admin-token", nil, "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &page))
	require.Equal(t, 2, page.Total)
	require.Equal(t, 1, page.TotalPages)

	rr = s.do(t, http.MethodGet, "/api/inspections/"+mine.ID, "other-token", nil, "")
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = s.do(t, http.MethodDelete, "/api/inspections/"+mine.ID, "insp-token", nil, "")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodGet, "/api/stats", "admin-token", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats entity.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Equal(t, 2, stats.TotalInspections)
	require.Equal(t, 85, stats.AvgScore)
	require.Equal(t, 2, stats.StatusBreakdown[entity.StatusGood])

	rr = s.do(t, http.MethodGet, "/api/heatmap", "insp-token", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	var points []entity.HeatmapPoint
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &points))
	require.Len(t, points, 2)
	require.Equal(t, 15, points[0].Weight)

	rr = s.do(t, http.MethodDelete, "/api/inspections/"+mine.ID, "admin-token", nil, "")
	require.Equal(t, http.StatusOK, rr.Code)
	rr = s.do(t, http.MethodGet, "/api/inspections/"+mine.ID, "admin-token", nil, "")
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWorkflow(t *testing.T) {
	s := newTestServer(t, 0)
	id := s.submit(t, "insp-token").Inspection.ID
	statusPath := "/api/workflow/" + id + "/status"

	rr := s.do(t, http.MethodPatch, statusPath, "admin-token", bytes.NewBufferString(`{"repair_status":"fixed"}`), "application/json")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPatch, statusPath, "insp-token", bytes.NewBufferString(`{"repair_status":"approved"}`), "application/json")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodPatch, statusPath, "admin-token",
		bytes.NewBufferString(`{"repair_status":"approved","estimated_completion_date":"2026-11-01","admin_notes":"crew A"}`), "application/json")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"approved_by":"admin-1"`)

	feedback := `{"user_feedback":"much better","user_rating":4}`
	rr = s.do(t, http.MethodPost, "/api/workflow/"+id+"/feedback", "insp-token", bytes.NewBufferString(feedback), "application/json")
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body, ct := multipartBody(t, nil, "", nil)
	rr = s.do(t, http.MethodPost, "/api/workflow/"+id+"/complete", "admin-token", body, ct)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body, ct = multipartBody(t, map[string]string{"completion_date": "2026-10-20"}, "after_image", roadPNG(t))
	rr = s.do(t, http.MethodPost, "/api/workflow/"+id+"/complete", "admin-token", body, ct)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var done inspectResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &done))
	require.Equal(t, entity.RepairCompleted, done.Inspection.RepairStatus)
	require.Equal(t, "2026-10-20", done.Inspection.CompletionDate)
	require.True(t, strings.HasPrefix(done.Inspection.AfterImageURL, publicBase+"/inspections/after-"+id+"-"))

	rr = s.do(t, http.MethodPost, "/api/workflow/"+id+"/feedback", "other-token", bytes.NewBufferString(feedback), "application/json")
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/workflow/"+id+"/feedback", "insp-token", bytes.NewBufferString(feedback), "application/json")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"user_rating":4`)
}
