package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"roadsense/internal/domain/entity"
	"roadsense/internal/domain/port"
)

// fakeDetector отвечает заранее заданным списком или ошибкой
type fakeDetector struct {
	name   string
	delay  time.Duration
	err    error
	result []entity.Detection
	byImg  map[string][]entity.Detection
}

func (f *fakeDetector) Name() string { return f.name }

func (f *fakeDetector) Detect(ctx context.Context, img []byte) ([]entity.Detection, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.byImg != nil {
		return append([]entity.Detection(nil), f.byImg[string(img)]...), nil
	}
	return append([]entity.Detection(nil), f.result...), nil
}

type object struct {
	data        []byte
	contentType string
}

// memStore хранилище объектов в памяти без перезаписи
type memStore struct {
	mu      sync.Mutex
	objects map[string]object
	failOn  map[string]error
	deleted []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string]object{}, failOn: map[string]error{}}
}

func (s *memStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failOn[bucket]; err != nil {
		return "", err
	}
	path := bucket + "/" + key
	if _, ok := s.objects[path]; ok {
		return "", port.ErrObjectExists
	}
	s.objects[path] = object{data: append([]byte(nil), data...), contentType: contentType}
	return "mem://" + path, nil
}

func (s *memStore) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucket+"/"+key)
	s.deleted = append(s.deleted, bucket+"/"+key)
	return nil
}

func (s *memStore) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.objects))
	for k := range s.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// memRepo хранилище обследований в памяти
type memRepo struct {
	mu        sync.Mutex
	records   map[string]entity.InspectionRecord
	order     []string
	createErr error
	creates   int
}

func newMemRepo() *memRepo {
	return &memRepo{records: map[string]entity.InspectionRecord{}}
}

func (r *memRepo) Create(ctx context.Context, rec *entity.InspectionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.records[rec.ID]; ok {
		return errors.New("duplicate id")
	}
	r.records[rec.ID] = *rec
	r.order = append(r.order, rec.ID)
	return nil
}

func (r *memRepo) visible(rec entity.InspectionRecord, scope entity.Scope) bool {
	return scope.All || rec.InspectorID == scope.InspectorID
}

func (r *memRepo) Get(ctx context.Context, id string, scope entity.Scope) (*entity.InspectionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || !r.visible(rec, scope) {
		return nil, port.ErrInspectionNotFound
	}
	return &rec, nil
}

func (r *memRepo) List(ctx context.Context, scope entity.Scope, limit, offset int) ([]entity.InspectionRecord, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []entity.InspectionRecord
	for i := len(r.order) - 1; i >= 0; i-- {
		if rec, ok := r.records[r.order[i]]; ok && r.visible(rec, scope) {
			all = append(all, rec)
		}
	}
	total := len(all)
	if offset > total {
		offset = total
	}
	end := min(offset+limit, total)
	return append([]entity.InspectionRecord{}, all[offset:end]...), total, nil
}

func (r *memRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return port.ErrInspectionNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *memRepo) mutate(id string, fn func(*entity.InspectionRecord)) (*entity.InspectionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, port.ErrInspectionNotFound
	}
	fn(&rec)
	r.records[id] = rec
	return &rec, nil
}

func (r *memRepo) UpdateRepairStatus(ctx context.Context, id string, u entity.StatusUpdate) (*entity.InspectionRecord, error) {
	return r.mutate(id, func(rec *entity.InspectionRecord) {
		rec.RepairStatus = u.RepairStatus
		if u.EstimatedCompletionDate != "" {
			rec.EstimatedCompletionDate = u.EstimatedCompletionDate
		}
		if u.AdminNotes != "" {
			rec.AdminNotes = u.AdminNotes
		}
		rec.ApprovedBy = u.ApprovedBy
		at := u.ApprovedAt
		rec.ApprovedAt = &at
	})
}

func (r *memRepo) Complete(ctx context.Context, id string, c entity.Completion) (*entity.InspectionRecord, error) {
	return r.mutate(id, func(rec *entity.InspectionRecord) {
		rec.RepairStatus = entity.RepairCompleted
		rec.AfterImageURL = c.AfterImageURL
		rec.CompletionDate = c.CompletionDate
		rec.ApprovedBy = c.ApprovedBy
		at := c.ApprovedAt
		rec.ApprovedAt = &at
	})
}

func (r *memRepo) AddFeedback(ctx context.Context, id string, f entity.Feedback) (*entity.InspectionRecord, error) {
	return r.mutate(id, func(rec *entity.InspectionRecord) {
		rec.UserFeedback = f.Text
		rec.UserRating = f.Rating
		at := f.FeedbackAt
		rec.FeedbackAt = &at
	})
}

func (r *memRepo) Summaries(ctx context.Context) ([]entity.InspectionSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]entity.InspectionSummary, 0, len(r.records))
	for i := len(r.order) - 1; i >= 0; i-- {
		rec, ok := r.records[r.order[i]]
		if !ok {
			continue
		}
		out = append(out, entity.InspectionSummary{
			ID: rec.ID, Lat: rec.Lat, Lng: rec.Lng, Score: rec.Score, Status: rec.Status,
			Address: rec.Address, DefectCount: rec.DefectCount, CreatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

type fakeGeocoder struct {
	address string
	err     error
}

func (g fakeGeocoder) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	return g.address, g.err
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x40, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

var (
	_ port.DefectDetector       = (*fakeDetector)(nil)
	_ port.ObjectStorage        = (*memStore)(nil)
	_ port.InspectionRepository = (*memRepo)(nil)
	_ port.Geocoder             = fakeGeocoder{}
)
