package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/echocode/echo/backend/internal/app"
	"github.com/echocode/echo/backend/internal/config"
	"github.com/echocode/echo/backend/internal/handler"
	"github.com/echocode/echo/backend/internal/logging"
	"github.com/echocode/echo/backend/internal/service/capture"
	"github.com/echocode/echo/backend/internal/service/simulator"
	"github.com/echocode/echo/backend/internal/service/speech"
	"github.com/echocode/echo/backend/internal/service/workspace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logRuntime, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		log.Fatalf("failed to initialise logging: %v", err)
	}
	defer logRuntime.Close()
	logger := logRuntime.Logger
	slog.SetDefault(logger)

	if err := run(ctx, *cfg, logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, kv, err := app.OpenSessions(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer kv.Close()
	logger.Info("session store opened", "backend", cfg.Store.Backend, "path", cfg.Store.Path, "saved", len(store.List()))

	gens, err := app.NewGenerators(ctx, cfg, logger)
	if err != nil {
		return err
	}

	deps := handler.Deps{
		Workspace:   workspace.New(gens.Workspace, logger),
		Sessions:    store,
		Simulator:   simulator.New(logger, cfg.Simulator.Delay),
		CodeService: gens.Local,
		Logger:      logger,
	}

	// Interfaces stay nil unless a backend is configured so handlers can tell.
	var recognizer capture.Recognizer
	switch cfg.Speech.Mode {
	case config.SpeechModeVolcengine:
		streaming := speech.NewStreamingRecognizer(cfg.Speech, logger)
		recognizer, deps.Audio = streaming, streaming
		logger.Info("speech recognition via volcengine", "endpoint", cfg.Speech.ASREndpoint)
	default:
		relay := speech.NewRelayRecognizer(logger)
		recognizer, deps.Relay = relay, relay
		logger.Info("speech recognition via client relay")
	}
	deps.Capture = capture.NewController(logger, recognizer)

	return startServer(ctx, cfg.Server, handler.NewRouter(deps), logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("echo backend listening", "addr", serverCfg.Addr)
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
