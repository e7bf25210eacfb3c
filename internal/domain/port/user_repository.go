package port

import (
	"context"

	"roadsense/internal/domain/entity"
)

// UserRepository хранилище диалогов инспекторов с ботом
type UserRepository interface {
	// Get возвращает диалог пользователя; новый или забытый начинается в главном меню
	Get(ctx context.Context, userID, chatID int64) (*entity.User, error)

	// Update меняет диалог под блокировкой: fn видит текущее состояние,
	// и если fn вернула ошибку, диалог остаётся прежним
	Update(ctx context.Context, userID, chatID int64, fn func(*entity.User) error) (*entity.User, error)

	// Forget удаляет диалог целиком
	Forget(ctx context.Context, userID int64) error
}
