package container

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"roadsense/config"
	app "roadsense/internal/application"
	"roadsense/internal/domain/entity"
	"roadsense/internal/domain/port"
	"roadsense/internal/infrastructure/auth"
	"roadsense/internal/infrastructure/geocoding"
	"roadsense/internal/infrastructure/objectstore"
	"roadsense/internal/infrastructure/roboflow"
	"roadsense/internal/infrastructure/storage"
	"roadsense/internal/infrastructure/vision"
)

// dialogIdle после суток тишины диалог с ботом начинается заново
const dialogIdle = 24 * time.Hour

// Container собранные сервисы приложения
type Container struct {
	UserService       *app.UserService
	InspectionService *app.InspectionService
	Pipeline          *app.InspectionPipeline
	Verifier          port.TokenVerifier
	// Files отдаёт локальные объекты; nil, если снимки лежат в Supabase
	Files http.Handler
	// Dialogs диалоги бота; просроченные чистит Sweep
	Dialogs *storage.MemoryUserRepository

	closers []func() error
}

// New собирает адаптеры и сервисы по конфигурации
func New(cfg *config.Config) (*Container, error) {
	if !cfg.DetectorsConfigured() {
		return nil, errors.New("both detector urls are required (ROBOFLOW_POTHOLE_URL, ROBOFLOW_CRACK_URL)")
	}

	client := &http.Client{}
	c := &Container{}

	first, err := roboflow.NewDetector(detectorConfig(cfg.Detectors.APIKey, cfg.Detectors.Pothole), client)
	if err != nil {
		return nil, err
	}
	second, err := roboflow.NewDetector(detectorConfig(cfg.Detectors.APIKey, cfg.Detectors.Crack), client)
	if err != nil {
		return nil, err
	}
	detector, err := app.NewDetectionAggregator(first, second, cfg.Detectors.Timeout)
	if err != nil {
		return nil, err
	}

	store, err := c.objectStorage(cfg, client)
	if err != nil {
		return nil, err
	}
	publisher, err := app.NewArtifactPublisher(store, app.PublisherConfig{
		OriginalsBucket: cfg.Storage.OriginalsBucket,
		AnnotatedBucket: cfg.Storage.AnnotatedBucket,
		Timeout:         cfg.Storage.Timeout,
		Compensate:      cfg.Storage.CompensateOnFailure,
	})
	if err != nil {
		return nil, err
	}

	resolver := app.NewLocationResolver(
		geocoding.NewGoogle(geocoding.GoogleConfig{BaseURL: cfg.Geocoding.BaseURL, APIKey: cfg.Geocoding.APIKey}, client),
		cfg.Geocoding.Timeout,
	)

	repo, err := storage.NewSQLiteInspectionRepository(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open inspections db: %w", err)
	}
	c.closers = append(c.closers, repo.Close)

	annotator := vision.NewAnnotator(cfg.Annotation.Thickness)
	annotator.MaxPixels = cfg.Annotation.MaxPixels

	c.Pipeline, err = app.NewInspectionPipeline(detector, annotator, publisher, resolver, repo,
		app.WithTracer(otel.Tracer("roadsense/pipeline")),
	)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Verifier, err = verifier(cfg, client)
	if err != nil {
		c.Close()
		return nil, err
	}

	c.Dialogs = storage.NewMemoryUserRepository(dialogIdle)
	c.UserService = app.NewUserService(c.Dialogs)
	c.InspectionService = app.NewInspectionService(repo, store, cfg.Storage.WorkflowBucket)
	return c, nil
}

// Close освобождает ресурсы в обратном порядке
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil
	return errors.Join(errs...)
}

func detectorConfig(apiKey string, d config.Detector) roboflow.Config {
	return roboflow.Config{
		Name:       d.Name,
		URL:        d.URL,
		APIKey:     apiKey,
		Confidence: d.Confidence,
		Overlap:    d.Overlap,
	}
}

func (c *Container) objectStorage(cfg *config.Config, client *http.Client) (port.ObjectStorage, error) {
	switch cfg.Storage.Backend {
	case "supabase":
		return objectstore.NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.ServiceKey, client)
	default:
		fs, err := objectstore.NewFileStore(cfg.Storage.Root, cfg.Storage.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		c.Files = fs.Handler()
		return fs, nil
	}
}

func verifier(cfg *config.Config, client *http.Client) (port.TokenVerifier, error) {
	if cfg.Auth.Backend == "supabase" {
		return auth.NewSupabaseVerifier(auth.SupabaseConfig{
			URL:      cfg.Supabase.URL,
			AnonKey:  cfg.Supabase.AnonKey,
			Attempts: cfg.Auth.Attempts,
			Backoff:  cfg.Auth.Backoff,
		}, client)
	}

	tokens := make(map[string]entity.Identity, len(cfg.Auth.Tokens))
	for token, id := range cfg.Auth.Tokens {
		tokens[token] = entity.Identity{
			UserID: id.UserID,
			Email:  id.Email,
			Role:   entity.Role(strings.ToLower(strings.TrimSpace(id.Role))),
		}
	}
	return auth.NewStaticVerifier(tokens), nil
}
