package lgr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerProvider пишет каждый завершённый спан одной записью журнала.
// Спан с ошибкой уходит на уровне warn, остальные на debug.
type TracerProvider struct {
	embedded.TracerProvider

	log *slog.Logger
}

// NewTracerProvider log == nil означает текущий Logger на момент записи
func NewTracerProvider(log *slog.Logger) *TracerProvider {
	return &TracerProvider{log: log}
}

func (p *TracerProvider) Tracer(name string, _ ...trace.TracerOption) trace.Tracer {
	return &tracer{provider: p, scope: name}
}

func (p *TracerProvider) logger() *slog.Logger {
	if p.log != nil {
		return p.log
	}
	return Logger
}

type tracer struct {
	embedded.Tracer

	provider *TracerProvider
	scope    string
}

func (t *tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	cfg := trace.NewSpanStartConfig(opts...)
	s := &span{
		tracer: t,
		name:   name,
		start:  time.Now(),
		attrs:  append([]attribute.KeyValue(nil), cfg.Attributes()...),
	}
	if parent, ok := trace.SpanFromContext(ctx).(*span); ok {
		s.parent = parent.name
	}
	return trace.ContextWithSpan(ctx, s), s
}

type span struct {
	noop.Span

	tracer *tracer
	start  time.Time

	mu     sync.Mutex
	name   string
	parent string
	attrs  []attribute.KeyValue
	errs   []string
	code   codes.Code
	desc   string
	ended  bool
}

func (s *span) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended
}

func (s *span) SetName(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

func (s *span) SetAttributes(kv ...attribute.KeyValue) {
	s.mu.Lock()
	s.attrs = append(s.attrs, kv...)
	s.mu.Unlock()
}

func (s *span) RecordError(err error, _ ...trace.EventOption) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.errs = append(s.errs, err.Error())
	s.mu.Unlock()
}

func (s *span) SetStatus(code codes.Code, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Ok окончательный, его не перебить
	if s.code == codes.Ok {
		return
	}
	s.code, s.desc = code, description
}

func (s *span) TracerProvider() trace.TracerProvider {
	return s.tracer.provider
}

func (s *span) End(_ ...trace.SpanEndOption) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true

	attrs := make([]any, 0, len(s.attrs))
	for _, kv := range s.attrs {
		attrs = append(attrs, slog.Any(string(kv.Key), kv.Value.AsInterface()))
	}
	args := []any{
		slog.String("scope", s.tracer.scope),
		slog.Duration("duration", time.Since(s.start)),
		slog.String("status", s.code.String()),
		slog.Group("attributes", attrs...),
	}
	if s.parent != "" {
		args = append(args, slog.String("parent", s.parent))
	}
	if s.desc != "" {
		args = append(args, slog.String("status_description", s.desc))
	}
	if len(s.errs) > 0 {
		args = append(args, slog.Any("errors", s.errs))
	}
	level := slog.LevelDebug
	if s.code == codes.Error {
		level = slog.LevelWarn
	}
	name := s.name
	s.mu.Unlock()

	s.tracer.provider.logger().Log(context.Background(), level, "span "+name, args...)
}
