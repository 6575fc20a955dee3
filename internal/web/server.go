// Package web is the HTTP surface of the service: session control, remote
// transport commands, voice previews and a websocket event stream.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"rosary-audio/internal/media"
	"rosary-audio/internal/preview"
	"rosary-audio/internal/queue"
	"rosary-audio/internal/session"
	"rosary-audio/internal/version"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// VoiceLister lists the installed voices.
type VoiceLister interface {
	Voices() ([]string, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	ctl          *session.Controller
	coord        *media.Coordinator
	engine       *queue.Engine
	previews     *preview.Previewer
	voices       VoiceLister
	defaultVoice string
}

// NewServer creates a server. voices may be nil, in which case any voice is
// accepted.
func NewServer(
	ctl *session.Controller,
	coord *media.Coordinator,
	engine *queue.Engine,
	previews *preview.Previewer,
	voices VoiceLister,
	defaultVoice string,
) *Server {
	return &Server{
		ctl:          ctl,
		coord:        coord,
		engine:       engine,
		previews:     previews,
		voices:       voices,
		defaultVoice: defaultVoice,
	}
}

// Routes registers every endpoint on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.Get())
	})

	mux.HandleFunc("GET /voices", s.HandleVoices)

	mux.HandleFunc("GET /session", s.HandleState)
	mux.HandleFunc("GET /session/units", s.HandleUnits)
	mux.HandleFunc("POST /session/start", s.HandleStart)
	mux.HandleFunc("POST /session/stop", s.HandleStop)
	mux.HandleFunc("POST /session/play", s.HandlePlay)
	mux.HandleFunc("POST /session/pause", s.HandlePause)
	mux.HandleFunc("POST /session/resume", s.HandleResume)
	mux.HandleFunc("POST /session/skip", s.HandleSkip)
	mux.HandleFunc("POST /session/speed", s.HandleSpeed)
	mux.HandleFunc("POST /session/volume", s.HandleVolume)

	mux.HandleFunc("POST /remote/{command}", s.HandleRemote)
	mux.HandleFunc("POST /preview", s.HandlePreview)
	mux.HandleFunc("GET /events", s.HandleEvents)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON decodes the request body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// errorStatus maps an error from the session or queue layer to a status code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, session.ErrSessionActive), errors.Is(err, session.ErrChannelBlocked):
		return http.StatusConflict
	case errors.Is(err, queue.ErrEmptyQueue):
		return http.StatusUnprocessableEntity
	case errors.Is(err, session.ErrUnknownUnit),
		errors.Is(err, queue.ErrTrackOutOfRange),
		errors.Is(err, queue.ErrNoAnchor):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeErr(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}
