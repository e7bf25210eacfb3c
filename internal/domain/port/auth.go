package port

import (
	"context"
	"errors"

	"roadsense/internal/domain/entity"
)

// ErrInvalidToken токен не прошёл проверку
var ErrInvalidToken = errors.New("invalid or expired token")

// TokenVerifier интерфейс проверки сессии пользователя
type TokenVerifier interface {
	// Verify возвращает владельца токена и его роль
	Verify(ctx context.Context, token string) (entity.Identity, error)
}
