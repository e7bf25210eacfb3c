package port

import (
	"context"
	"errors"
)

// ErrObjectExists объект с таким ключом уже загружен
var ErrObjectExists = errors.New("object already exists")

// ObjectStorage интерфейс хранилища снимков
type ObjectStorage interface {
	// Put загружает объект без перезаписи и возвращает его публичный URL
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error)

	// Delete удаляет объект; отсутствие объекта не считается ошибкой
	Delete(ctx context.Context, bucket, key string) error
}
