package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"roadsense/config"
	"roadsense/internal/api/rest"
	telegram "roadsense/internal/api/telegram"
	"roadsense/internal/container"
	"roadsense/internal/lgr"
	"roadsense/internal/watch"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		lgr.Logger.Error("roadsense stopped", lgr.Err(err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	lgr.Setup(lgr.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if cfg.Tracing.LogSpans {
		otel.SetTracerProvider(lgr.NewTracerProvider(nil))
	}

	// Собираем сервисы приложения
	c, err := container.New(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	mux := http.NewServeMux()
	rest.NewRouter(c.Pipeline, c.InspectionService, c.Verifier, rest.Options{
		MaxUploadBytes: cfg.Limits.MaxUploadBytes,
		Files:          c.Files,
	}).Register(mux)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		lgr.Logger.Info("http listening", "addr", cfg.HTTPAddr, "storage", cfg.Storage.Backend, "auth", cfg.Auth.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.TelegramToken != "" {
		bot, err := telegram.NewBot(cfg.TelegramToken, c.UserService, c.Pipeline)
		if err != nil {
			return err
		}
		g.Go(func() error { return bot.Run(ctx) })
		g.Go(func() error {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					if n := c.Dialogs.Sweep(); n > 0 {
						lgr.Logger.Debug("idle dialogs removed", "count", n)
					}
				}
			}
		})
	} else {
		lgr.Logger.Info("telegram bot disabled: TELEGRAM_TOKEN is empty")
	}

	if cfg.InboxDir != "" {
		if err := os.MkdirAll(cfg.InboxDir, 0o755); err != nil {
			return err
		}
		g.Go(func() error { return watch.New(cfg.InboxDir, c.Pipeline, "inbox").Run(ctx) })
	}

	return g.Wait()
}
