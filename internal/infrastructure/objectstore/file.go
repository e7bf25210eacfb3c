// Package objectstore хранилища снимков: локальный каталог и Supabase Storage.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"roadsense/internal/domain/port"
)

// FileStore хранит объекты в каталоге root/<bucket>/<key>
type FileStore struct {
	root    string
	baseURL string
}

// NewFileStore создаёт хранилище; по адресу baseURL отдаётся Handler.
func NewFileStore(root, baseURL string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("file store root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	return &FileStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Put записывает объект, если ключ ещё не занят
func (s *FileStore) Put(ctx context.Context, bucket, key string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.path(bucket, key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create bucket %s: %w", bucket, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("%s/%s: %w", bucket, key, port.ErrObjectExists)
	}
	if err != nil {
		return "", fmt.Errorf("open %s/%s: %w", bucket, key, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write %s/%s: %w", bucket, key, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close %s/%s: %w", bucket, key, err)
	}
	return s.PublicURL(bucket, key), nil
}

// Delete удаляет объект; отсутствующий объект не ошибка
func (s *FileStore) Delete(_ context.Context, bucket, key string) error {
	path, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

// PublicURL адрес объекта для клиентов
func (s *FileStore) PublicURL(bucket, key string) string {
	return s.baseURL + "/" + url.PathEscape(bucket) + "/" + url.PathEscape(key)
}

// Handler отдаёт объекты по маршруту с параметрами {bucket} и {key}
func (s *FileStore) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, err := s.path(r.PathValue("bucket"), r.PathValue("key"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=86400")
		http.ServeFile(w, r, path)
	})
}

func (s *FileStore) path(bucket, key string) (string, error) {
	if !validName(bucket) || !validName(key) {
		return "", fmt.Errorf("invalid object name %q/%q", bucket, key)
	}
	return filepath.Join(s.root, bucket, key), nil
}

// validName запрещает пустые имена, вложенные пути и выход за пределы каталога
func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.ContainsRune(name, 0)
}

// Проверка реализации интерфейса
var _ port.ObjectStorage = (*FileStore)(nil)
