package lgr

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestNew_WritesJSONWithErrorTrace(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Options{Level: "debug"})

	log.Error("upload failed", Err(errors.New("bucket missing")), slog.String("bucket", "road-originals"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "upload failed", entry["msg"])
	require.Equal(t, "road-originals", entry["bucket"])

	errAttr, ok := entry["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "bucket missing", errAttr["msg"])
	require.NotEmpty(t, errAttr["trace"])
}

func TestNew_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Options{Level: "warn"})

	log.Info("hidden")
	require.Zero(t, buf.Len())

	log.Warn("shown")
	require.Contains(t, buf.String(), "shown")
}

func TestErr_PrintsWrappedFrames(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Options{})

	err := xerrors.Errorf("process inspection: %w", errors.New("detector down"))
	log.Error("inspection failed", Err(err))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	errAttr, ok := entry["error"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "process inspection: detector down", errAttr["msg"])
	require.Contains(t, errAttr["detail"], "lgr_test.go")
	require.Contains(t, errAttr["detail"], "detector down")
	require.NotEmpty(t, errAttr["trace"])
}

func TestErr_PlainErrorHasNoDetail(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, Options{}).Error("x", Err(errors.New("plain")))
	require.NotContains(t, buf.String(), `"detail"`)
}
