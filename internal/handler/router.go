package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	capturehandler "github.com/echocode/echo/backend/internal/handler/capture"
	generatehandler "github.com/echocode/echo/backend/internal/handler/generate"
	sessionshandler "github.com/echocode/echo/backend/internal/handler/sessions"
	workspacehandler "github.com/echocode/echo/backend/internal/handler/workspace"
	middlewarePkg "github.com/echocode/echo/backend/internal/middleware"
	"github.com/echocode/echo/backend/internal/service/capture"
	"github.com/echocode/echo/backend/internal/service/sessions"
	"github.com/echocode/echo/backend/internal/service/simulator"
	"github.com/echocode/echo/backend/internal/service/workspace"
	"github.com/echocode/echo/backend/pkg/utils"
)

// Deps are the services the HTTP surface is built on. CodeService, Relay and Audio
// may be nil when the corresponding backend is not configured.
type Deps struct {
	Capture   *capture.Controller
	Workspace *workspace.Orchestrator
	Sessions  *sessions.Store
	Simulator *simulator.Simulator
	// CodeService answers POST /generate. It is the in-process model, never the
	// remote client the workspace may be pointed at.
	CodeService workspace.Generator
	Relay     capturehandler.TranscriptRelay
	Audio     capturehandler.AudioSink
	Logger    *slog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"generator": deps.Workspace.HasGenerator(),
			"capturing": deps.Capture.Snapshot().Status,
		})
	})

	// Generation service contract consumed by other Echo frontends.
	generatehandler.New(deps.CodeService, deps.Logger).RegisterRoutes(r)

	r.Route("/api", func(api chi.Router) {
		capturehandler.New(deps.Capture, deps.Relay, deps.Audio, deps.Logger).RegisterRoutes(api)
		workspacehandler.New(deps.Workspace, deps.Capture, deps.Simulator, deps.Logger).RegisterRoutes(api)
		sessionshandler.New(deps.Sessions, deps.Workspace, deps.Capture, deps.Logger).RegisterRoutes(api)
	})

	return r
}
