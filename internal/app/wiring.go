// Package app assembles services from configuration for the binaries in cmd/.
package app

import (
	"context"
	"log/slog"

	"github.com/echocode/echo/backend/internal/config"
	"github.com/echocode/echo/backend/internal/logging"
	"github.com/echocode/echo/backend/internal/service/ai"
	"github.com/echocode/echo/backend/internal/service/generation"
	"github.com/echocode/echo/backend/internal/service/sessions"
	"github.com/echocode/echo/backend/internal/service/workspace"
	"github.com/echocode/echo/backend/internal/storage"
)

// Generators holds the code generators resolved from configuration. Either may be nil.
type Generators struct {
	// Workspace drives the editor: the remote generation service when an endpoint is
	// configured, the in-process model otherwise.
	Workspace workspace.Generator
	// Local is the in-process model, served on POST /generate.
	Local workspace.Generator
}

// NewGenerators resolves generators from cfg. A model that fails to initialise is
// logged and left out rather than aborting startup.
func NewGenerators(ctx context.Context, cfg config.Config, logger *slog.Logger) (Generators, error) {
	logger = logging.OrDiscard(logger)
	var gens Generators

	if cfg.AI.Enabled() {
		local, err := ai.NewCodeGenerator(ctx, cfg.AI, logger)
		if err != nil {
			logger.Warn("code model unavailable, check ARK_* settings", "err", err)
		} else {
			gens.Local = local
			logger.Info("code model initialised", "model", cfg.AI.Model)
		}
	} else {
		logger.Info("ark credentials not configured, in-process generation disabled")
	}

	if cfg.Generation.Endpoint != "" {
		client, err := generation.NewClient(cfg.Generation.Endpoint, cfg.Generation.Timeout, logger)
		if err != nil {
			return Generators{}, err
		}
		gens.Workspace = client
		logger.Info("using remote generation service", "endpoint", client.Endpoint())
	} else if gens.Local != nil {
		gens.Workspace = gens.Local
	}
	return gens, nil
}

// OpenSessions opens the configured key-value backend and loads the saved-session store.
// The caller closes the returned KV.
func OpenSessions(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*sessions.Store, storage.KV, error) {
	logger = logging.OrDiscard(logger)
	kv, err := storage.Open(cfg.Backend, cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	var opts []sessions.Option
	if cfg.Key != "" {
		opts = append(opts, sessions.WithKey(cfg.Key))
	}
	return sessions.New(ctx, kv, logger, opts...), kv, nil
}
