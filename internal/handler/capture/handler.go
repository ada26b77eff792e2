package capture

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/echocode/echo/backend/internal/logging"
	capturemodel "github.com/echocode/echo/backend/internal/model/capture"
	captureservice "github.com/echocode/echo/backend/internal/service/capture"
	"github.com/echocode/echo/backend/pkg/utils"
)

// Controller is the capture state machine driven by this handler.
type Controller interface {
	Start(ctx context.Context) (capturemodel.Session, error)
	Stop(ctx context.Context) (capturemodel.Session, error)
	SetTranscript(text string) (capturemodel.Session, error)
	Snapshot() capturemodel.Session
	Watch(fn func(capturemodel.Session)) func()
}

// TranscriptRelay receives recognition results produced by the client.
type TranscriptRelay interface {
	Publish(text string, isFinal bool, confidence float64) error
	Fail(err error) error
}

// AudioSink receives raw audio for server-side recognition.
type AudioSink interface {
	PushAudio(chunk []byte) error
}

// Handler serves the capture REST endpoints and websocket.
type Handler struct {
	ctrl     Controller
	relay    TranscriptRelay
	audio    AudioSink
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New creates a capture handler. relay and audio may be nil when the matching
// recognizer is not configured.
func New(ctrl Controller, relay TranscriptRelay, audio AudioSink, logger *slog.Logger) *Handler {
	return &Handler{
		ctrl:   ctrl,
		relay:  relay,
		audio:  audio,
		logger: logging.OrDiscard(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the capture routes under /capture.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/capture", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Post("/start", h.handleStart)
		r.Post("/stop", h.handleStop)
		r.Put("/transcript", h.handleSetTranscript)
		r.Get("/ws", h.handleWebSocket)
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	session, err := h.ctrl.Start(r.Context())
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	session, err := h.ctrl.Stop(r.Context())
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func (h *Handler) handleSetTranscript(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Transcript string `json:"transcript"`
	}
	if err := utils.DecodeJSON(w, r, &payload, false); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.ctrl.SetTranscript(payload.Transcript)
	if err != nil {
		respondCaptureError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session)
}

func respondCaptureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, captureservice.ErrCaptureUnavailable):
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, captureservice.ErrAlreadyListening):
		utils.RespondError(w, http.StatusConflict, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
