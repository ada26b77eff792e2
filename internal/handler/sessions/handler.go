package sessions

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/echocode/echo/backend/internal/logging"
	capturemodel "github.com/echocode/echo/backend/internal/model/capture"
	"github.com/echocode/echo/backend/internal/model/session"
	sessionservice "github.com/echocode/echo/backend/internal/service/sessions"
	"github.com/echocode/echo/backend/internal/service/workspace"
	"github.com/echocode/echo/backend/pkg/utils"
)

// Capture is the part of the capture controller a restore touches.
type Capture interface {
	Snapshot() capturemodel.Session
	SetTranscript(text string) (capturemodel.Session, error)
}

// Handler serves the saved-session store.
type Handler struct {
	store   *sessionservice.Store
	ws      *workspace.Orchestrator
	capture Capture
	logger  *slog.Logger
}

// New creates a sessions handler.
func New(store *sessionservice.Store, ws *workspace.Orchestrator, capture Capture, logger *slog.Logger) *Handler {
	return &Handler{store: store, ws: ws, capture: capture, logger: logging.OrDiscard(logger)}
}

// RegisterRoutes mounts the routes under /sessions.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleSave)
		r.Get("/{id}", h.handleLoad)
		r.Delete("/{id}", h.handleDelete)
		r.Post("/{id}/restore", h.handleRestore)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.store.List())
}

// handleSave stores a snapshot. Code and prompt default to the current
// workspace code and capture transcript.
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name   string  `json:"name"`
		Code   *string `json:"code"`
		Prompt *string `json:"prompt"`
	}
	if err := utils.DecodeJSON(w, r, &payload, true); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	code := h.ws.Snapshot().GeneratedCode
	if payload.Code != nil {
		code = *payload.Code
	}
	prompt := ""
	if payload.Prompt != nil {
		prompt = *payload.Prompt
	} else if h.capture != nil {
		prompt = h.capture.Snapshot().Transcript
	}

	saved, err := h.store.Save(r.Context(), payload.Name, code, prompt)
	if err != nil {
		h.logger.Error("save session failed", "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to save session")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, saved)
}

func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	saved, ok := h.lookup(w, r)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete session failed", "id", id, "err", err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRestore loads a saved session back into the editor and transcript.
func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	saved, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var transcript capturemodel.Session
	if h.capture != nil {
		var err error
		if transcript, err = h.capture.SetTranscript(saved.Prompt); err != nil {
			utils.RespondError(w, http.StatusConflict, "stop capture before restoring a session")
			return
		}
	}
	state := h.ws.Restore(saved)

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session":   saved,
		"workspace": state,
		"capture":   transcript,
	})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (session.SavedSession, bool) {
	id, ok := parseID(w, r)
	if !ok {
		return session.SavedSession{}, false
	}
	saved, err := h.store.Load(id)
	if errors.Is(err, sessionservice.ErrNotFound) {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return session.SavedSession{}, false
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return session.SavedSession{}, false
	}
	return saved, true
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid session id")
		return 0, false
	}
	return id, true
}
