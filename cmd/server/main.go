package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/tripmatch/internal/app"
	"github.com/example/tripmatch/internal/config"
	httpapi "github.com/example/tripmatch/internal/http"
	"github.com/example/tripmatch/internal/logging"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	var idem *httpapi.Idempotency
	if a.Redis != nil {
		idem = httpapi.NewIdempotency(httpapi.NewRedisCache(a.Redis), cfg.IdempotencyTTL)
	}
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpapi.NewServer(httpapi.Deps{
			Matcher:     a.Matcher,
			WS:          a.WS,
			Idempotency: idem,
			Ready:       a.Ready,
			Logger:      logger,
		}),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go a.Matcher.RunExpirySweeper(ctx, cfg.ExpirySweepInterval)

	go func() {
		logger.Info("tripmatch listening", "addr", cfg.HTTPAddr, "match_mode", cfg.MatchMode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
