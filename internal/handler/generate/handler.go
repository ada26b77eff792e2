// Package generate serves the code generation contract: {prompt, existing_code} in,
// {code, explanation} out.
package generate

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/echocode/echo/backend/internal/logging"
	"github.com/echocode/echo/backend/internal/model/generation"
	"github.com/echocode/echo/backend/internal/service/workspace"
	"github.com/echocode/echo/backend/pkg/utils"
)

// Handler exposes a Generator over HTTP.
type Handler struct {
	generator workspace.Generator
	logger    *slog.Logger
}

// New creates a Handler. A nil generator answers 503.
func New(generator workspace.Generator, logger *slog.Logger) *Handler {
	return &Handler{generator: generator, logger: logging.OrDiscard(logger)}
}

// RegisterRoutes mounts POST /generate.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/generate", h.handleGenerate)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if h.generator == nil {
		utils.RespondError(w, http.StatusServiceUnavailable, "code generation unavailable")
		return
	}

	var req generation.Request
	if err := utils.DecodeJSON(w, r, &req, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		utils.RespondError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	result, err := h.generator.Generate(r.Context(), req)
	if err != nil {
		h.logger.Error("generate request failed", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "code generation failed")
		return
	}

	utils.RespondJSON(w, http.StatusOK, result)
}
