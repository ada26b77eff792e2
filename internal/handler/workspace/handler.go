package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/echocode/echo/backend/internal/logging"
	"github.com/echocode/echo/backend/internal/service/simulator"
	workspaceservice "github.com/echocode/echo/backend/internal/service/workspace"
	"github.com/echocode/echo/backend/pkg/utils"
)

// MaxImportSize bounds an uploaded source file.
const MaxImportSize = 1 << 20

// TranscriptSource supplies the current capture transcript.
type TranscriptSource interface {
	Transcript() string
}

// Runner simulates running source code.
type Runner interface {
	Run(ctx context.Context, source string) (simulator.Result, error)
}

// Handler serves the editor workspace: generation, file import/export and runs.
type Handler struct {
	ws         *workspaceservice.Orchestrator
	transcript TranscriptSource
	runner     Runner
	logger     *slog.Logger
}

// New creates a workspace handler.
func New(ws *workspaceservice.Orchestrator, transcript TranscriptSource, runner Runner, logger *slog.Logger) *Handler {
	return &Handler{
		ws:         ws,
		transcript: transcript,
		runner:     runner,
		logger:     logging.OrDiscard(logger),
	}
}

// RegisterRoutes mounts the workspace routes under /workspace.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/workspace", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/generate", h.handleGenerate)
		r.Put("/code", h.handleSetCode)
		r.Post("/import", h.handleImport)
		r.Get("/export", h.handleExport)
		r.Get("/history", h.handleHistory)
		r.Post("/run", h.handleRun)
		r.Get("/run/stream", h.handleRunStream)
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.ws.Snapshot())
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Prompt       *string `json:"prompt"`
		ExistingCode *string `json:"existingCode"`
	}
	if err := utils.DecodeJSON(w, r, &payload, true); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prompt := ""
	if payload.Prompt != nil {
		prompt = *payload.Prompt
	} else if h.transcript != nil {
		prompt = h.transcript.Transcript()
	}

	var err error
	if payload.ExistingCode != nil {
		_, err = h.ws.GenerateWith(r.Context(), prompt, *payload.ExistingCode)
	} else {
		_, err = h.ws.Generate(r.Context(), prompt)
	}

	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, h.ws.Snapshot())
	case errors.Is(err, workspaceservice.ErrEmptyPrompt):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, workspaceservice.ErrBusy):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		// The failure is already visible as the placeholder code.
		utils.RespondJSON(w, http.StatusBadGateway, map[string]any{
			"error":     workspaceservice.ErrGenerationFailed.Error(),
			"workspace": h.ws.Snapshot(),
		})
	}
}

func (h *Handler) handleSetCode(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		GeneratedCode *string `json:"generatedCode"`
		ExistingCode  *string `json:"existingCode"`
	}
	if err := utils.DecodeJSON(w, r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.GeneratedCode == nil && payload.ExistingCode == nil {
		utils.RespondError(w, http.StatusBadRequest, "generatedCode or existingCode is required")
		return
	}

	state := h.ws.Snapshot()
	if payload.GeneratedCode != nil {
		state = h.ws.SetGeneratedCode(*payload.GeneratedCode)
	}
	if payload.ExistingCode != nil {
		state = h.ws.SetExistingCode(*payload.ExistingCode)
	}
	utils.RespondJSON(w, http.StatusOK, state)
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxImportSize+4096)
	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, MaxImportSize+1))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}
	if len(content) > MaxImportSize {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	state, err := h.ws.ImportFile(header.Filename, string(content))
	if err != nil {
		utils.RespondError(w, http.StatusUnsupportedMediaType, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, state)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	artifact := h.ws.Export()
	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Name))
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, artifact.Content); err != nil {
		h.logger.Warn("export write failed", "err", err)
	}
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.ws.History())
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Code *string `json:"code"`
	}
	if err := utils.DecodeJSON(w, r, &payload, true); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	source := h.ws.Snapshot().GeneratedCode
	if payload.Code != nil {
		source = *payload.Code
	}

	result, err := h.runner.Run(r.Context(), source)
	if err != nil {
		utils.RespondError(w, http.StatusRequestTimeout, "run cancelled")
		return
	}
	utils.RespondJSON(w, http.StatusOK, result)
}

// handleRunStream emits a "running" event, then the "result" event once the
// simulated run completes.
func (h *Handler) handleRunStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	source := h.ws.Snapshot().GeneratedCode
	if code, ok := r.URL.Query()["code"]; ok && len(code) > 0 {
		source = strings.Join(code, "\n")
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	if err := utils.SendSSEEvent(w, flusher, "running", map[string]bool{"running": true}); err != nil {
		h.logger.Debug("run stream closed early", "err", err)
		return
	}

	result, err := h.runner.Run(r.Context(), source)
	if err != nil {
		h.logger.Debug("run stream cancelled", "err", err)
		return
	}
	if err := utils.SendSSEEvent(w, flusher, "result", result); err != nil {
		h.logger.Debug("run result not delivered", "err", err)
	}
}
