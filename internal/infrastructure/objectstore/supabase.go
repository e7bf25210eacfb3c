package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"roadsense/internal/domain/port"
)

// SupabaseStore клиент Supabase Storage REST API
type SupabaseStore struct {
	baseURL    string
	serviceKey string
	client     *http.Client
}

func NewSupabaseStore(baseURL, serviceKey string, client *http.Client) (*SupabaseStore, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" || serviceKey == "" {
		return nil, errors.New("supabase url and service key are required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SupabaseStore{baseURL: baseURL, serviceKey: serviceKey, client: client}, nil
}

// Put загружает объект с x-upsert: false, чтобы занятый ключ давал ошибку
func (s *SupabaseStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if !validName(bucket) || !validName(key) {
		return "", fmt.Errorf("invalid object name %q/%q", bucket, key)
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.objectURL(bucket, key), bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	s.authorize(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if duplicate(resp.StatusCode, body) {
			return "", fmt.Errorf("%s/%s: %w", bucket, key, port.ErrObjectExists)
		}
		return "", fmt.Errorf("upload %s/%s: status %d: %s", bucket, key, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return s.PublicURL(bucket, key), nil
}

// Delete удаляет объект; 404 не считается ошибкой
func (s *SupabaseStore) Delete(ctx context.Context, bucket, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.objectURL(bucket, key), nil)
	if err != nil {
		return err
	}
	s.authorize(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", bucket, key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete %s/%s: status %d", bucket, key, resp.StatusCode)
	}
	return nil
}

// PublicURL адрес объекта в публичном бакете
func (s *SupabaseStore) PublicURL(bucket, key string) string {
	return s.baseURL + "/storage/v1/object/public/" + url.PathEscape(bucket) + "/" + url.PathEscape(key)
}

func (s *SupabaseStore) objectURL(bucket, key string) string {
	return s.baseURL + "/storage/v1/object/" + url.PathEscape(bucket) + "/" + url.PathEscape(key)
}

func (s *SupabaseStore) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
}

// duplicate распознаёт конфликт ключа: новые версии отвечают 409,
// старые 400 с "Duplicate" в теле.
func duplicate(status int, body []byte) bool {
	if status == http.StatusConflict {
		return true
	}
	return status == http.StatusBadRequest && bytes.Contains(bytes.ToLower(body), []byte("duplicate"))
}

// Проверка реализации интерфейса
var _ port.ObjectStorage = (*SupabaseStore)(nil)
