// Package lgr общий структурированный журнал сервиса.
package lgr

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdobak/go-xerrors"
	"github.com/natefinch/lumberjack"
	xfmt "golang.org/x/xerrors"
)

// Logger журнал по умолчанию; до вызова Setup пишет JSON в stdout.
var Logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{ReplaceAttr: replaceAttr}))

// Options настройки журнала
type Options struct {
	Level string // debug, info, warn, error
	File  string // путь к файлу с ротацией; если пусто, пишем только в stdout
}

// Setup пересоздаёт Logger по настройкам и делает его журналом slog по умолчанию.
func Setup(opts Options) {
	Logger = New(os.Stdout, opts)
	slog.SetDefault(Logger)
}

// New создаёт журнал, пишущий в out и, если задан файл, в ротируемый файл.
func New(out io.Writer, opts Options) *slog.Logger {
	w := out
	if opts.File != "" {
		w = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     7, // days
			Compress:   true,
		})
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       parseLevel(opts.Level),
		ReplaceAttr: replaceAttr,
	}))
}

// Err атрибут ошибки со стеком вызова. Если ошибка собрана через
// golang.org/x/xerrors, её кадры попадают в поле detail.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Any("error", nil)
	}
	logged := xerrors.New(err.Error())
	if _, ok := err.(xfmt.Formatter); ok {
		return slog.Any("error", &detailed{error: logged, detail: fmt.Sprintf("%+v", err)})
	}
	return slog.Any("error", logged)
}

// detailed ошибка журнала с развёрнутой цепочкой %+v
type detailed struct {
	error
	detail string
}

func (d *detailed) Unwrap() error { return d.error }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type stackFrame struct {
	Func   string `json:"func"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindAny {
		return a
	}
	err, ok := a.Value.Any().(error)
	if !ok {
		return a
	}

	attrs := []slog.Attr{slog.String("msg", err.Error())}
	if d, ok := err.(*detailed); ok {
		attrs = append(attrs, slog.String("detail", d.detail))
		err = d.error
	}
	if trace := marshalStack(err); len(trace) > 0 {
		attrs = append(attrs, slog.Any("trace", trace))
	}
	a.Value = slog.GroupValue(attrs...)
	return a
}

func marshalStack(err error) []stackFrame {
	trace := xerrors.StackTrace(err)
	if len(trace) == 0 {
		return nil
	}

	frames := trace.Frames()
	out := make([]stackFrame, 0, len(frames))
	for _, f := range frames {
		out = append(out, stackFrame{
			Func:   filepath.Base(f.Function),
			Source: filepath.Join(filepath.Base(filepath.Dir(f.File)), filepath.Base(f.File)),
			Line:   f.Line,
		})
	}
	return out
}
