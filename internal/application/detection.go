package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"roadsense/internal/domain/entity"
	"roadsense/internal/domain/port"
)

// DefaultDetectorTimeout ограничение на один вызов детектора
const DefaultDetectorTimeout = 30 * time.Second

// DetectionAggregator опрашивает две модели параллельно и склеивает ответы.
// Ждёт обе модели; ошибка любой из них означает ошибку всего шага.
type DetectionAggregator struct {
	detectors [2]port.DefectDetector
	timeout   time.Duration
}

// NewDetectionAggregator результаты first идут перед результатами second
func NewDetectionAggregator(first, second port.DefectDetector, timeout time.Duration) (*DetectionAggregator, error) {
	if first == nil || second == nil {
		return nil, errors.New("both detectors are required")
	}
	if timeout <= 0 {
		timeout = DefaultDetectorTimeout
	}
	return &DetectionAggregator{
		detectors: [2]port.DefectDetector{first, second},
		timeout:   timeout,
	}, nil
}

// Detect возвращает дефекты первой модели, затем второй, каждую в порядке её ответа
func (a *DetectionAggregator) Detect(ctx context.Context, imageData []byte) (entity.DetectionSet, error) {
	var parts [2][]entity.Detection

	g, gctx := errgroup.WithContext(ctx)
	for i, d := range a.detectors {
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, a.timeout)
			defer cancel()

			found, err := d.Detect(callCtx, imageData)
			if err != nil {
				return fmt.Errorf("detector %s: %w", d.Name(), err)
			}
			for j, det := range found {
				if err := det.Validate(); err != nil {
					return fmt.Errorf("detector %s: prediction %d: %w", d.Name(), j, err)
				}
			}
			parts[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return entity.MergeDetections(parts[0], parts[1]), nil
}
