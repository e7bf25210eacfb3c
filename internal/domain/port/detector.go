package port

import (
	"context"

	"roadsense/internal/domain/entity"
)

// DefectDetector интерфейс внешнего детектора дефектов
type DefectDetector interface {
	// Name имя модели для журналов и сообщений об ошибках
	Name() string

	// Detect отправляет снимок в модель и возвращает найденные дефекты в порядке ответа
	Detect(ctx context.Context, imageData []byte) ([]entity.Detection, error)
}

// ImageAnnotator интерфейс отрисовки рамок дефектов
type ImageAnnotator interface {
	// Annotate возвращает новый снимок без потерь с нарисованными рамками и подписями
	Annotate(imageData []byte, defects []entity.Detection) ([]byte, error)
}
