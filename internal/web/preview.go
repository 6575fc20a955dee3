package web

import (
	"errors"
	"net/http"

	"rosary-audio/internal/queue"
)

// HandlePreview handles POST /preview. A running prayer session is
// interrupted and can be resumed afterwards.
func (s *Server) HandlePreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Voice string `json:"voice"`
		Path  string `json:"path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Voice == "" {
		req.Voice = s.defaultVoice
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path required")
		return
	}
	if !s.knownVoice(req.Voice) {
		writeError(w, http.StatusBadRequest, "unknown voice "+req.Voice)
		return
	}

	runID, err := s.previews.Preview(r.Context(), req.Voice, req.Path)
	if err != nil {
		if errors.Is(err, queue.ErrEmptyQueue) {
			writeError(w, http.StatusNotFound, "recording not found")
			return
		}
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"run_id": runID,
		"voice":  req.Voice,
		"path":   req.Path,
	})
}
