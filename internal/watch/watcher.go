// Package watch принимает обследования из каталога-инбокса.
//
// Клиент кладёт в каталог снимок и рядом <name>.json:
//
//	{"image":"road.jpg","lat":18.52,"lng":73.85,"inspector_id":"cam-7","timestamp":"2026-04-01T08:00:00Z"}
//
// Сайдкар нужно записывать последним. После обработки оба файла переезжают
// в processed/ (вместе с <name>.result.json) или в failed/ (с <name>.error).
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	app "roadsense/internal/application"
	"roadsense/internal/lgr"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "failed"

	sidecarExt = ".json"
	resultExt  = ".result.json"
)

// Processor конвейер обследования
type Processor interface {
	Process(ctx context.Context, sub app.Submission) (*app.Outcome, error)
}

// Sidecar описание снимка в инбоксе
type Sidecar struct {
	Image       string  `json:"image"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	InspectorID string  `json:"inspector_id"`
	Timestamp   string  `json:"timestamp"`
}

// Watcher следит за каталогом и прогоняет каждый сайдкар через конвейер
type Watcher struct {
	dir       string
	pipeline  Processor
	inspector string
}

// New inspector подставляется, если в сайдкаре нет inspector_id
func New(dir string, pipeline Processor, inspector string) *Watcher {
	return &Watcher{dir: dir, pipeline: pipeline, inspector: inspector}
}

// Run обрабатывает уже лежащие файлы, затем новые, пока не отменён ctx.
// Файлы обрабатываются по одному.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	lgr.Logger.Info("inbox watcher started", "dir", w.dir)

	if err := w.Backfill(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 && isSidecar(evt.Name) {
				w.handle(ctx, evt.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			lgr.Logger.Warn("inbox watcher error", lgr.Err(err))
		}
	}
}

// Backfill обрабатывает сайдкары, уже лежащие в каталоге
func (w *Watcher) Backfill(ctx context.Context) error {
	entries, err := filepath.Glob(filepath.Join(w.dir, "*"+sidecarExt))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil
		}
		if isSidecar(e) {
			w.handle(ctx, e)
		}
	}
	return nil
}

func isSidecar(path string) bool {
	name := filepath.Base(path)
	return strings.EqualFold(filepath.Ext(name), sidecarExt) &&
		!strings.HasSuffix(strings.ToLower(name), resultExt) &&
		!strings.HasPrefix(name, ".")
}

func (w *Watcher) handle(ctx context.Context, sidecarPath string) {
	raw, err := os.ReadFile(sidecarPath)
	if errors.Is(err, fs.ErrNotExist) {
		// уже обработан
		return
	}
	if err != nil {
		lgr.Logger.Warn("read sidecar", "path", sidecarPath, lgr.Err(err))
		return
	}

	var sc Sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			// файл ещё дописывается; дождёмся следующего события
			lgr.Logger.Debug("sidecar not ready", "path", sidecarPath, lgr.Err(err))
			return
		}
		w.finish(sidecarPath, "", nil, err)
		return
	}

	imagePath := ""
	if sc.Image != "" {
		imagePath = filepath.Join(w.dir, filepath.Base(sc.Image))
	}
	out, err := w.process(ctx, sc, imagePath)
	if ctx.Err() != nil {
		// остановка сервиса: файлы остаются в инбоксе до следующего запуска
		return
	}
	w.finish(sidecarPath, imagePath, out, err)
}

func (w *Watcher) process(ctx context.Context, sc Sidecar, imagePath string) (*app.Outcome, error) {
	if imagePath == "" {
		return nil, errors.New("sidecar has no image")
	}
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	var shotAt time.Time
	if sc.Timestamp != "" {
		if shotAt, err = time.Parse(time.RFC3339, sc.Timestamp); err != nil {
			return nil, fmt.Errorf("timestamp: %w", err)
		}
	}

	inspector := strings.TrimSpace(sc.InspectorID)
	if inspector == "" {
		inspector = w.inspector
	}

	return w.pipeline.Process(ctx, app.Submission{
		Image:       image,
		Lat:         sc.Lat,
		Lng:         sc.Lng,
		Timestamp:   shotAt,
		InspectorID: inspector,
	})
}

// finish переносит файлы и оставляет рядом итог обработки
func (w *Watcher) finish(sidecarPath, imagePath string, out *app.Outcome, procErr error) {
	sub := ProcessedDir
	if procErr != nil {
		sub = FailedDir
	}
	target := filepath.Join(w.dir, sub)
	if err := os.MkdirAll(target, 0o755); err != nil {
		lgr.Logger.Error("create inbox dir", "dir", target, lgr.Err(err))
		return
	}

	base := strings.TrimSuffix(filepath.Base(sidecarPath), filepath.Ext(sidecarPath))
	if procErr != nil {
		lgr.Logger.Warn("inbox item failed", "item", base, lgr.Err(procErr))
		if err := os.WriteFile(filepath.Join(target, base+".error"), []byte(procErr.Error()+"\n"), 0o644); err != nil {
			lgr.Logger.Warn("write error note", "item", base, lgr.Err(err))
		}
	} else {
		data, err := json.MarshalIndent(out.Record, "", "  ")
		if err == nil {
			err = os.WriteFile(filepath.Join(target, base+resultExt), data, 0o644)
		}
		if err != nil {
			lgr.Logger.Warn("write result", "item", base, lgr.Err(err))
		}
		lgr.Logger.Info("inbox item processed", "item", base, "id", out.Record.ID, "score", out.Record.Score)
	}

	for _, p := range []string{imagePath, sidecarPath} {
		if p == "" {
			continue
		}
		if err := os.Rename(p, filepath.Join(target, filepath.Base(p))); err != nil && !errors.Is(err, fs.ErrNotExist) {
			lgr.Logger.Warn("move inbox file", "path", p, lgr.Err(err))
		}
	}
}
