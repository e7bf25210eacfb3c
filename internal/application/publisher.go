package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"roadsense/internal/domain/port"
	"roadsense/internal/lgr"
)

const (
	DefaultStorageTimeout = 30 * time.Second

	annotatedContentType = "image/png"
	annotatedExt         = ".png"
)

// ArtifactName имя пары снимков одного обследования: <unix-ms>_<random>
type ArtifactName struct {
	Base        string
	OriginalExt string
	ContentType string
}

// NewArtifactName подбирает уникальное имя и расширение по содержимому оригинала
func NewArtifactName(now time.Time, original []byte) ArtifactName {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	contentType := http.DetectContentType(original)
	return ArtifactName{
		Base:        fmt.Sprintf("%d_%s", now.UnixMilli(), suffix),
		OriginalExt: extensionFor(contentType),
		ContentType: contentType,
	}
}

func (n ArtifactName) OriginalKey() string {
	return n.Base + n.OriginalExt
}

func (n ArtifactName) AnnotatedKey() string {
	return n.Base + annotatedExt
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ""
	}
}

// Artifacts публичные адреса загруженных снимков
type Artifacts struct {
	OriginalURL  string
	AnnotatedURL string
}

// PublisherConfig бакеты и поведение при частичной загрузке
type PublisherConfig struct {
	OriginalsBucket string
	AnnotatedBucket string
	Timeout         time.Duration
	// Compensate удаляет уже загруженный снимок, если второй загрузить не удалось
	Compensate bool
}

// ArtifactPublisher загружает оригинал и аннотированный снимок параллельно
type ArtifactPublisher struct {
	store port.ObjectStorage
	cfg   PublisherConfig
}

func NewArtifactPublisher(store port.ObjectStorage, cfg PublisherConfig) (*ArtifactPublisher, error) {
	if store == nil {
		return nil, errors.New("object storage is required")
	}
	if cfg.OriginalsBucket == "" || cfg.AnnotatedBucket == "" {
		return nil, errors.New("both buckets are required")
	}
	if cfg.OriginalsBucket == cfg.AnnotatedBucket {
		return nil, errors.New("originals and annotated buckets must differ")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultStorageTimeout
	}
	return &ArtifactPublisher{store: store, cfg: cfg}, nil
}

type upload struct {
	bucket, key, contentType string
	data                     []byte
	url                      *string
}

// Publish возвращает оба адреса только если обе загрузки прошли
func (p *ArtifactPublisher) Publish(ctx context.Context, name ArtifactName, original, annotated []byte) (Artifacts, error) {
	var (
		out  Artifacts
		mu   sync.Mutex
		done []upload
	)
	uploads := []upload{
		{bucket: p.cfg.OriginalsBucket, key: name.OriginalKey(), contentType: name.ContentType, data: original, url: &out.OriginalURL},
		{bucket: p.cfg.AnnotatedBucket, key: name.AnnotatedKey(), contentType: annotatedContentType, data: annotated, url: &out.AnnotatedURL},
	}

	// без общей отмены: каждая загрузка завершается независимо от соседней
	var g errgroup.Group
	for _, u := range uploads {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
			defer cancel()

			url, err := p.store.Put(callCtx, u.bucket, u.key, u.data, u.contentType)
			if err != nil {
				return fmt.Errorf("upload to %s: %w", u.bucket, err)
			}
			*u.url = url

			mu.Lock()
			done = append(done, u)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if p.cfg.Compensate {
			p.compensate(ctx, done)
		}
		return Artifacts{}, err
	}
	return out, nil
}

func (p *ArtifactPublisher) compensate(ctx context.Context, done []upload) {
	ctx = context.WithoutCancel(ctx)
	for _, u := range done {
		delCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		err := p.store.Delete(delCtx, u.bucket, u.key)
		cancel()
		if err != nil {
			lgr.Logger.Warn("orphaned artifact left in storage", "bucket", u.bucket, "key", u.key, lgr.Err(err))
			continue
		}
		lgr.Logger.Info("orphaned artifact removed", "bucket", u.bucket, "key", u.key)
	}
}
