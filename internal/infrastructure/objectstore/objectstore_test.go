package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"roadsense/internal/domain/port"
)

func TestFileStore_PutNoOverwrite(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root, "http://localhost:5000/storage/")
	require.NoError(t, err)

	ctx := context.Background()
	u, err := s.Put(ctx, "road-originals", "1700000000000_abc.jpg", []byte("first"), "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:5000/storage/road-originals/1700000000000_abc.jpg", u)

	_, err = s.Put(ctx, "road-originals", "1700000000000_abc.jpg", []byte("second"), "image/jpeg")
	require.ErrorIs(t, err, port.ErrObjectExists)

	data, err := os.ReadFile(filepath.Join(root, "road-originals", "1700000000000_abc.jpg"))
	require.NoError(t, err)
	require.Equal(t, "first", string(data))
}

func TestFileStore_ConcurrentSameKey(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), "http://x")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Put(context.Background(), "b", "same.png", []byte("x"), "image/png"); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, success)
}

func TestFileStore_RejectsTraversal(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), "http://x")
	require.NoError(t, err)

	for _, key := range []string{"", "..", "../etc/passwd", "a/b.png", `a\b.png`} {
		_, err := s.Put(context.Background(), "bucket", key, []byte("x"), "")
		require.Error(t, err, key)
	}
	_, err = s.Put(context.Background(), "..", "k.png", []byte("x"), "")
	require.Error(t, err)
}

func TestFileStore_DeleteAndServe(t *testing.T) {
	s, err := NewFileStore(t.TempDir(), "http://x")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Put(ctx, "road-annotated", "a.png", []byte("\x89PNG\r\n\x1a\nrest"), "image/png")
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("GET /storage/{bucket}/{key}", s.Handler())
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/storage/road-annotated/a.png")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, strings.HasPrefix(string(body), "\x89PNG"))
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	require.NoError(t, s.Delete(ctx, "road-annotated", "a.png"))
	require.NoError(t, s.Delete(ctx, "road-annotated", "a.png"))

	resp, err = http.Get(srv.URL + "/storage/road-annotated/a.png")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSupabaseStore_Put(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer service", r.Header.Get("Authorization"))
		require.Equal(t, "service", r.Header.Get("apikey"))
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			require.Equal(t, "false", r.Header.Get("x-upsert"))
			require.Equal(t, "image/png", r.Header.Get("Content-Type"))
			if seen[r.URL.Path] {
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"error":"Duplicate","message":"The resource already exists"}`))
				return
			}
			seen[r.URL.Path] = true
			_, _ = w.Write([]byte(`{"Key":"road-annotated/a.png"}`))
		case http.MethodDelete:
			if !seen[r.URL.Path] {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(seen, r.URL.Path)
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	s, err := NewSupabaseStore(srv.URL+"/", "service", srv.Client())
	require.NoError(t, err)
	ctx := context.Background()

	u, err := s.Put(ctx, "road-annotated", "a.png", []byte("png"), "image/png")
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/storage/v1/object/public/road-annotated/a.png", u)

	_, err = s.Put(ctx, "road-annotated", "a.png", []byte("png"), "image/png")
	require.ErrorIs(t, err, port.ErrObjectExists)

	require.NoError(t, s.Delete(ctx, "road-annotated", "a.png"))
	require.NoError(t, s.Delete(ctx, "road-annotated", "a.png"))
}

func TestSupabaseStore_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "legacy") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"statusCode":"409","error":"Duplicate"}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewSupabaseStore(srv.URL, "service", srv.Client())
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "legacy", "a.png", []byte("x"), "image/png")
	require.ErrorIs(t, err, port.ErrObjectExists)

	_, err = s.Put(context.Background(), "road-originals", "a.png", []byte("x"), "image/png")
	require.Error(t, err)
	require.NotErrorIs(t, err, port.ErrObjectExists)

	require.Error(t, s.Delete(context.Background(), "road-originals", "a.png"))

	_, err = NewSupabaseStore("", "k", nil)
	require.Error(t, err)
}
