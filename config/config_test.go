package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SUPABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "file", cfg.Storage.Backend)
	require.Equal(t, "static", cfg.Auth.Backend)
	require.Equal(t, "road-originals", cfg.Storage.OriginalsBucket)
	require.Equal(t, "road-annotated", cfg.Storage.AnnotatedBucket)
	require.Equal(t, 3, cfg.Annotation.Thickness)
	require.Equal(t, 40_000_000, cfg.Annotation.MaxPixels)
	require.False(t, cfg.Tracing.LogSpans)
	require.Equal(t, 30, cfg.Detectors.Pothole.Confidence)
	require.Equal(t, 25, cfg.Detectors.Crack.Overlap)
	require.False(t, cfg.DetectorsConfigured())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
http_addr: ":7000"
detectors:
  timeout: 5s
  pothole:
    name: potholes-v2
    url: https://detect.example/pothole/2
  crack:
    url: https://detect.example/crack/1
storage:
  root: /srv/objects
auth:
  backend: static
  tokens:
    secret-admin:
      user_id: admin-1
      role: admin
annotation:
  thickness: 5
  max_pixels: 1000000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ROBOFLOW_CRACK_URL", "https://detect.example/crack/9")
	t.Setenv("PORT", "8081")
	t.Setenv("TRACE_LOG_SPANS", "true")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8081", cfg.HTTPAddr)
	require.Equal(t, 5*time.Second, cfg.Detectors.Timeout)
	require.Equal(t, "potholes-v2", cfg.Detectors.Pothole.Name)
	require.Equal(t, "https://detect.example/crack/9", cfg.Detectors.Crack.URL)
	require.Equal(t, 30, cfg.Detectors.Crack.Confidence)
	require.Equal(t, "/srv/objects", cfg.Storage.Root)
	require.Equal(t, 5, cfg.Annotation.Thickness)
	require.Equal(t, 1_000_000, cfg.Annotation.MaxPixels)
	require.True(t, cfg.Tracing.LogSpans)
	require.Equal(t, "admin", cfg.Auth.Tokens["secret-admin"].Role)
	require.True(t, cfg.DetectorsConfigured())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Auth.Backend = "static"
	require.NoError(t, cfg.Validate())

	cfg.Storage.Backend = "s3"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Auth.Backend = "static"
	cfg.Storage.AnnotatedBucket = cfg.Storage.OriginalsBucket
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Auth.Backend = "supabase"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Auth.Backend = "static"
	cfg.Annotation.Thickness = 0
	require.NoError(t, cfg.Validate())
	require.Equal(t, 1, cfg.Annotation.Thickness)
}
