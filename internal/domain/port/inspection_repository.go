package port

import (
	"context"
	"errors"

	"roadsense/internal/domain/entity"
)

// ErrInspectionNotFound запись не найдена или не видна пользователю
var ErrInspectionNotFound = errors.New("inspection not found")

// InspectionRepository интерфейс хранилища обследований
type InspectionRepository interface {
	// Create сохраняет новую запись целиком одной транзакцией
	Create(ctx context.Context, record *entity.InspectionRecord) error

	// Get возвращает запись, если она видна в указанной области
	Get(ctx context.Context, id string, scope entity.Scope) (*entity.InspectionRecord, error)

	// List возвращает страницу записей (новые первыми) и общее их число
	List(ctx context.Context, scope entity.Scope, limit, offset int) ([]entity.InspectionRecord, int, error)

	// Delete удаляет запись
	Delete(ctx context.Context, id string) error

	// UpdateRepairStatus фиксирует решение администратора
	UpdateRepairStatus(ctx context.Context, id string, update entity.StatusUpdate) (*entity.InspectionRecord, error)

	// Complete отмечает ремонт завершённым
	Complete(ctx context.Context, id string, completion entity.Completion) (*entity.InspectionRecord, error)

	// AddFeedback сохраняет отзыв инспектора
	AddFeedback(ctx context.Context, id string, feedback entity.Feedback) (*entity.InspectionRecord, error)

	// Summaries возвращает краткие данные всех записей
	Summaries(ctx context.Context) ([]entity.InspectionSummary, error)
}
