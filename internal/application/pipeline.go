package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"roadsense/internal/domain/entity"
	"roadsense/internal/domain/port"
	"roadsense/internal/domain/scoring"
	"roadsense/internal/lgr"
)

// Stage этап обработки снимка
type Stage string

const (
	StageReceived   Stage = "received"
	StageDetecting  Stage = "detecting"
	StageAnnotating Stage = "annotating"
	StageScoring    Stage = "scoring"
	StagePublishing Stage = "publishing"
	StageResolving  Stage = "resolving"
	StagePersisting Stage = "persisting"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

var (
	ErrInvalidSubmission = errors.New("invalid submission")

	ErrDetection  = errors.New("defect detection failed")
	ErrAnnotation = errors.New("image annotation failed")
	ErrPublish    = errors.New("artifact upload failed")
	ErrPersist    = errors.New("inspection save failed")
)

// StageError фатальная ошибка этапа. errors.Is сопоставляет её с ErrDetection,
// ErrAnnotation, ErrPublish или ErrPersist.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func (e *StageError) Is(target error) bool {
	switch e.Stage {
	case StageDetecting:
		return target == ErrDetection
	case StageAnnotating:
		return target == ErrAnnotation
	case StagePublishing:
		return target == ErrPublish
	case StagePersisting:
		return target == ErrPersist
	}
	return false
}

// Submission один снимок от инспектора
type Submission struct {
	Image       []byte
	Lat         float64
	Lng         float64
	Timestamp   time.Time // время съёмки; нулевое значение заменяется временем приёма
	InspectorID string
}

func (s Submission) validate() error {
	switch {
	case len(s.Image) == 0:
		return fmt.Errorf("%w: image is empty", ErrInvalidSubmission)
	case math.IsNaN(s.Lat) || s.Lat < -90 || s.Lat > 90:
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidSubmission, s.Lat)
	case math.IsNaN(s.Lng) || s.Lng < -180 || s.Lng > 180:
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidSubmission, s.Lng)
	case strings.TrimSpace(s.InspectorID) == "":
		return fmt.Errorf("%w: inspector is unknown", ErrInvalidSubmission)
	}
	return nil
}

// Outcome сохранённая запись и аннотированный снимок для ответа инспектору
type Outcome struct {
	Record    *entity.InspectionRecord
	Annotated []byte
}

// StageObserver получает каждый этап в порядке прохождения
type StageObserver func(id string, stage Stage)

// Option настройка конвейера
type Option func(*InspectionPipeline)

func WithTracer(t trace.Tracer) Option {
	return func(p *InspectionPipeline) { p.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(p *InspectionPipeline) { p.now = now }
}

func WithStageObserver(o StageObserver) Option {
	return func(p *InspectionPipeline) { p.observe = o }
}

// InspectionPipeline проводит снимок через обнаружение, отрисовку, оценку,
// загрузку и геокодирование и сохраняет ровно одну запись.
// Не хранит состояния между вызовами.
type InspectionPipeline struct {
	detector  *DetectionAggregator
	annotator port.ImageAnnotator
	publisher *ArtifactPublisher
	resolver  *LocationResolver
	repo      port.InspectionRepository

	tracer  trace.Tracer
	now     func() time.Time
	observe StageObserver
}

func NewInspectionPipeline(
	detector *DetectionAggregator,
	annotator port.ImageAnnotator,
	publisher *ArtifactPublisher,
	resolver *LocationResolver,
	repo port.InspectionRepository,
	opts ...Option,
) (*InspectionPipeline, error) {
	if detector == nil || annotator == nil || publisher == nil || repo == nil {
		return nil, errors.New("pipeline collaborators are not configured")
	}
	if resolver == nil {
		resolver = NewLocationResolver(nil, 0)
	}

	p := &InspectionPipeline{
		detector:  detector,
		annotator: annotator,
		publisher: publisher,
		resolver:  resolver,
		repo:      repo,
		tracer:    noop.NewTracerProvider().Tracer("roadsense"),
		now:       time.Now,
		observe:   func(string, Stage) {},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process обрабатывает снимок. При ошибке этапа запись не создаётся.
func (p *InspectionPipeline) Process(ctx context.Context, sub Submission) (*Outcome, error) {
	if err := sub.validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	received := p.now().UTC()
	p.observe(id, StageReceived)

	ctx, span := p.tracer.Start(ctx, "inspection.process", trace.WithAttributes(
		attribute.String("inspection.id", id),
		attribute.String("inspector.id", sub.InspectorID),
		attribute.Int("image.bytes", len(sub.Image)),
	))
	defer span.End()

	fail := func(stage Stage, err error) (*Outcome, error) {
		p.observe(id, StageFailed)
		stageErr := &StageError{Stage: stage, Err: err}
		span.RecordError(stageErr)
		span.SetStatus(codes.Error, string(stage))
		wrapped := xerrors.Errorf("process inspection: %w", stageErr)
		lgr.Logger.Error("inspection failed", "id", id, "stage", string(stage), lgr.Err(wrapped))
		return nil, wrapped
	}

	p.observe(id, StageDetecting)
	defects, err := p.detector.Detect(ctx, sub.Image)
	if err != nil {
		return fail(StageDetecting, err)
	}
	span.SetAttributes(attribute.Int("inspection.defects", len(defects)))

	p.observe(id, StageAnnotating)
	annotated, err := p.annotator.Annotate(sub.Image, defects)
	if err != nil {
		return fail(StageAnnotating, err)
	}

	// Оценка и геокодирование не зависят от загрузки и идут параллельно с ней
	p.observe(id, StageScoring)
	result := scoring.Score(defects)

	var (
		artifacts Artifacts
		address   string
		g         errgroup.Group
	)
	name := NewArtifactName(received, sub.Image)

	p.observe(id, StagePublishing)
	g.Go(func() error {
		var err error
		artifacts, err = p.publisher.Publish(ctx, name, sub.Image, annotated)
		return err
	})

	p.observe(id, StageResolving)
	g.Go(func() error {
		address = p.resolver.Resolve(ctx, sub.Lat, sub.Lng)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fail(StagePublishing, err)
	}

	timestamp := sub.Timestamp
	if timestamp.IsZero() {
		timestamp = received
	}

	record := &entity.InspectionRecord{
		ID:                id,
		Lat:               sub.Lat,
		Lng:               sub.Lng,
		Address:           address,
		Timestamp:         timestamp.UTC(),
		Score:             result.Score,
		Status:            result.Status,
		DefectCount:       len(defects),
		Defects:           defects,
		OriginalImageURL:  artifacts.OriginalURL,
		AnnotatedImageURL: artifacts.AnnotatedURL,
		InspectorID:       sub.InspectorID,
		CreatedAt:         received,
		RepairStatus:      entity.RepairPending,
	}

	p.observe(id, StagePersisting)
	if err := p.repo.Create(ctx, record); err != nil {
		return fail(StagePersisting, err)
	}

	p.observe(id, StageDone)
	span.SetAttributes(attribute.Int("inspection.score", result.Score), attribute.String("inspection.status", string(result.Status)))
	lgr.Logger.Info("inspection saved",
		"id", id,
		"inspector_id", sub.InspectorID,
		"score", result.Score,
		"status", string(result.Status),
		"defects", len(defects),
	)

	return &Outcome{Record: record, Annotated: annotated}, nil
}
