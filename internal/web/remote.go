package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"rosary-audio/internal/media"
	"rosary-audio/internal/session"
)

// HandleRemote handles POST /remote/{command}. The command goes to the
// active channel. When no channel takes it, play resumes the session (which
// reclaims the channel), pause and stop fall back to the engine directly and
// everything else is ignored.
func (s *Server) HandleRemote(w http.ResponseWriter, r *http.Request) {
	cmd, err := media.ParseCommand(r.PathValue("command"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var args []any
	if cmd == media.CommandSeekTo {
		ms, err := strconv.ParseInt(r.URL.Query().Get("position_ms"), 10, 64)
		if err != nil || ms < 0 {
			writeError(w, http.StatusBadRequest, "position_ms must be a non-negative integer")
			return
		}
		args = append(args, time.Duration(ms)*time.Millisecond)
	}

	// A handler may release the channel, so read it first.
	channel := s.coord.ActiveChannel()
	if s.coord.Dispatch(cmd, args...) {
		writeJSON(w, http.StatusOK, map[string]any{
			"dispatched": true,
			"command":    cmd,
			"channel":    channel,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"dispatched": false,
		"command":    cmd,
		"fallback":   s.hostDefault(r.Context(), cmd),
	})
}

// hostDefault applies cmd when no channel handled it. Play never drives the
// engine without an owner: it goes through the session or is ignored.
func (s *Server) hostDefault(ctx context.Context, cmd media.Command) string {
	var err error
	switch cmd {
	case media.CommandPlay:
		err = s.ctl.Resume(ctx)
		if errors.Is(err, session.ErrNoSession) {
			return "ignored"
		}
	case media.CommandPause:
		err = s.engine.Pause()
	case media.CommandStop:
		err = s.engine.Stop()
	default:
		return "ignored"
	}
	if err != nil {
		slog.Debug("remote fallback failed", "command", string(cmd), "error", err)
		return "failed"
	}
	return "applied"
}
