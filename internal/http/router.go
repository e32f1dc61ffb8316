package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"interview-transcription-service/internal/app"
	"interview-transcription-service/internal/models"
	"interview-transcription-service/internal/service/session"
	"interview-transcription-service/internal/storage/sqlite"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Error   string           `json:"error"`
	Kind    models.ErrorKind `json:"kind,omitempty"`
	Source  models.Source    `json:"source,omitempty"`
	Stage   models.Stage     `json:"stage,omitempty"`
	Message string           `json:"message,omitempty"`
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("starting"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	h := &handlers{app: application}

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Post("/recordings", h.startRecording)
		r.Route("/recordings/current", func(r chi.Router) {
			r.Get("/", h.recordingStatus)
			r.Get("/utterances", h.utterances)
			r.Post("/pause", h.pause(true))
			r.Post("/resume", h.pause(false))
			r.Post("/stop", h.stopRecording)
		})
		r.Get("/recordings/{sessionID}", h.savedTranscript)
		r.Get("/cases/{caseID}/recordings", h.caseSessions)

		// websockets
		r.Get("/live", application.Hub.ServeHTTP)
		r.Get("/capture/{source}", h.capture)
		r.Post("/capture/{source}/deny", h.denyCapture)
	})

	return r
}

type handlers struct {
	app *app.Application
}

func (h *handlers) startRecording(w http.ResponseWriter, r *http.Request) {
	var req app.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	sessionID, err := h.app.StartRecording(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"sessionId": sessionID})
}

func (h *handlers) recordingStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.app.RecordingStatus())
}

func (h *handlers) utterances(w http.ResponseWriter, _ *http.Request) {
	u := h.app.Utterances()
	if u == nil {
		u = []models.RenderedUtterance{}
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *handlers) pause(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if err := h.app.PauseRecording(paused); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.app.RecordingStatus())
	}
}

func (h *handlers) stopRecording(w http.ResponseWriter, r *http.Request) {
	t, err := h.app.StopRecording(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handlers) savedTranscript(w http.ResponseWriter, r *http.Request) {
	t, err := h.app.SavedTranscript(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *handlers) caseSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.app.CaseSessions(r.Context(), chi.URLParam(r, "caseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessionIds": ids})
}

func (h *handlers) capture(w http.ResponseWriter, r *http.Request) {
	source, err := models.ParseSource(chi.URLParam(r, "source"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	h.app.Ingest.Handle(w, r, source)
}

func (h *handlers) denyCapture(w http.ResponseWriter, r *http.Request) {
	source, err := models.ParseSource(chi.URLParam(r, "source"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	h.app.Ingest.Deny(source)
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var serr *models.SessionError
	switch {
	case errors.As(err, &serr):
		resp.Kind = serr.Kind
		resp.Source = serr.Source
		resp.Stage = serr.Stage
		resp.Message = serr.UserMessage()
		status = http.StatusServiceUnavailable
		if serr.Kind == models.KindAuth {
			status = http.StatusUnauthorized
		}
	case errors.Is(err, app.ErrRecordingActive), errors.Is(err, session.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, app.ErrNoRecording), errors.Is(err, sqlite.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrNoStore):
		status = http.StatusNotImplemented
	case errors.Is(err, session.ErrStopped):
		status = http.StatusConflict
	case errors.Is(err, app.ErrInvalidRequest):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
