package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"roadsense/internal/domain/entity"
	"roadsense/internal/domain/port"
	"roadsense/internal/lgr"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100

	// MaxPage держит смещение (page-1)*limit в пределах int
	MaxPage = math.MaxInt32

	dateLayout = "2006-01-02"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

// Page страница записей для списка обследований
type Page struct {
	Inspections []entity.InspectionRecord `json:"inspections"`
	Total       int                       `json:"total"`
	Page        int                       `json:"page"`
	TotalPages  int                       `json:"totalPages"`
}

// StatusRequest решение администратора по ремонту
type StatusRequest struct {
	RepairStatus            string `json:"repair_status"`
	EstimatedCompletionDate string `json:"estimated_completion_date"`
	AdminNotes              string `json:"admin_notes"`
}

// CompletionRequest снимок после ремонта и сведения о завершении
type CompletionRequest struct {
	Image          []byte
	CompletionDate string
	AdminNotes     string
}

// FeedbackRequest отзыв инспектора
type FeedbackRequest struct {
	Text   string `json:"user_feedback"`
	Rating int    `json:"user_rating"`
}

// InspectionService чтение обследований и ремонтный процесс
type InspectionService struct {
	repo           port.InspectionRepository
	storage        port.ObjectStorage
	workflowBucket string
	now            func() time.Time
}

func NewInspectionService(repo port.InspectionRepository, storage port.ObjectStorage, workflowBucket string) *InspectionService {
	return &InspectionService{
		repo:           repo,
		storage:        storage,
		workflowBucket: workflowBucket,
		now:            time.Now,
	}
}

// List страница записей; инспектор видит только свои
func (s *InspectionService) List(ctx context.Context, who entity.Identity, page, limit int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	records, total, err := s.repo.List(ctx, who.Scope(), limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return &Page{
		Inspections: records,
		Total:       total,
		Page:        page,
		TotalPages:  (total + limit - 1) / limit,
	}, nil
}

func (s *InspectionService) Get(ctx context.Context, who entity.Identity, id string) (*entity.InspectionRecord, error) {
	return s.repo.Get(ctx, id, who.Scope())
}

// Delete только для администратора
func (s *InspectionService) Delete(ctx context.Context, who entity.Identity, id string) error {
	if !who.IsAdmin() {
		return ErrForbidden
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	lgr.Logger.Info("inspection deleted", "id", id, "by", who.UserID)
	return nil
}

// UpdateStatus меняет этап ремонта и фиксирует, кто его утвердил
func (s *InspectionService) UpdateStatus(ctx context.Context, who entity.Identity, id string, req StatusRequest) (*entity.InspectionRecord, error) {
	if !who.IsAdmin() {
		return nil, ErrForbidden
	}
	status := entity.RepairStatus(strings.TrimSpace(req.RepairStatus))
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown repair_status %q", ErrInvalidInput, req.RepairStatus)
	}
	if d := strings.TrimSpace(req.EstimatedCompletionDate); d != "" {
		if _, err := time.Parse(dateLayout, d); err != nil {
			return nil, fmt.Errorf("%w: estimated_completion_date must be YYYY-MM-DD", ErrInvalidInput)
		}
	}

	return s.repo.UpdateRepairStatus(ctx, id, entity.StatusUpdate{
		RepairStatus:            status,
		EstimatedCompletionDate: strings.TrimSpace(req.EstimatedCompletionDate),
		AdminNotes:              strings.TrimSpace(req.AdminNotes),
		ApprovedBy:              who.UserID,
		ApprovedAt:              s.now().UTC(),
	})
}

// Complete загружает снимок после ремонта и закрывает работы
func (s *InspectionService) Complete(ctx context.Context, who entity.Identity, id string, req CompletionRequest) (*entity.InspectionRecord, error) {
	if !who.IsAdmin() {
		return nil, ErrForbidden
	}
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: after image is required to complete inspection", ErrInvalidInput)
	}
	contentType := http.DetectContentType(req.Image)
	if contentType != "image/jpeg" && contentType != "image/png" {
		return nil, fmt.Errorf("%w: only jpeg and png images are allowed", ErrInvalidInput)
	}

	now := s.now().UTC()
	completionDate := strings.TrimSpace(req.CompletionDate)
	if completionDate == "" {
		completionDate = now.Format(dateLayout)
	} else if _, err := time.Parse(dateLayout, completionDate); err != nil {
		return nil, fmt.Errorf("%w: completion_date must be YYYY-MM-DD", ErrInvalidInput)
	}

	if _, err := s.repo.Get(ctx, id, entity.Scope{All: true}); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("after-%s-%d%s", id, now.UnixMilli(), extensionFor(contentType))
	url, err := s.storage.Put(ctx, s.workflowBucket, key, req.Image, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload after image: %w", err)
	}

	rec, err := s.repo.Complete(ctx, id, entity.Completion{
		AfterImageURL:  url,
		CompletionDate: completionDate,
		AdminNotes:     strings.TrimSpace(req.AdminNotes),
		ApprovedBy:     who.UserID,
		ApprovedAt:     now,
	})
	if err != nil {
		return nil, err
	}
	lgr.Logger.Info("repair completed", "id", id, "by", who.UserID)
	return rec, nil
}

// AddFeedback только автор записи и только после завершения ремонта
func (s *InspectionService) AddFeedback(ctx context.Context, who entity.Identity, id string, req FeedbackRequest) (*entity.InspectionRecord, error) {
	rec, err := s.repo.Get(ctx, id, entity.Scope{All: true})
	if err != nil {
		return nil, err
	}
	if rec.InspectorID != who.UserID {
		return nil, ErrForbidden
	}
	if rec.RepairStatus != entity.RepairCompleted {
		return nil, fmt.Errorf("%w: can only add feedback to completed inspections", ErrInvalidInput)
	}
	if req.Rating < 1 || req.Rating > 5 {
		return nil, fmt.Errorf("%w: user_rating must be between 1 and 5", ErrInvalidInput)
	}

	return s.repo.AddFeedback(ctx, id, entity.Feedback{
		Text:       strings.TrimSpace(req.Text),
		Rating:     req.Rating,
		FeedbackAt: s.now().UTC(),
	})
}
