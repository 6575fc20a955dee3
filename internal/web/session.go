package web

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"rosary-audio/internal/prayer"
	"rosary-audio/internal/queue"
	"rosary-audio/internal/session"
)

type stateResponse struct {
	session.State
	SavedAgo string `json:"saved_ago,omitempty"`
}

func (s *Server) stateResponse() stateResponse {
	st := s.ctl.State()
	resp := stateResponse{State: st}
	if st.SavedAt != nil {
		resp.SavedAgo = humanize.Time(*st.SavedAt)
	}
	return resp
}

// HandleState handles GET /session.
func (s *Server) HandleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.stateResponse())
}

type unitView struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Text       string `json:"text"`
	Group      int    `json:"group"`
	GroupTitle string `json:"group_title"`
	Position   int    `json:"position,omitempty"`
	HasAudio   bool   `json:"has_audio"`
}

// HandleUnits handles GET /session/units.
func (s *Server) HandleUnits(w http.ResponseWriter, r *http.Request) {
	units := s.ctl.Units()
	if units == nil {
		writeError(w, http.StatusNotFound, session.ErrNoSession.Error())
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(units, func(u prayer.Unit, _ int) unitView {
		return unitView{
			ID:         u.ID,
			Kind:       u.Kind.String(),
			Title:      u.Title,
			Text:       u.Text,
			Group:      u.Group,
			GroupTitle: prayer.GroupTitle(u.Group),
			Position:   u.Position,
			HasAudio:   u.HasAudio(),
		}
	}))
}

// HandleVoices handles GET /voices.
func (s *Server) HandleVoices(w http.ResponseWriter, r *http.Request) {
	voices := []string{s.defaultVoice}
	if s.voices != nil {
		found, err := s.voices.Voices()
		if err != nil {
			writeErr(w, err)
			return
		}
		voices = lo.Uniq(append(voices, found...))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default": s.defaultVoice,
		"voices":  voices,
	})
}

type startRequest struct {
	Voice     string             `json:"voice"`
	Form      prayer.Form        `json:"form"`
	Mysteries *prayer.MysterySet `json:"mysteries"`
	Season    prayer.Season      `json:"season"`
	Decade    int                `json:"decade"`
	Speed     *float64           `json:"speed"`
}

// HandleStart handles POST /session/start. Units are generated once here;
// the session replays exactly this list from then on.
func (s *Server) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings := prayer.Settings{
		Voice:     req.Voice,
		Form:      req.Form,
		Mysteries: prayer.DefaultMysteries(time.Now().Weekday()),
		Season:    req.Season,
		Decade:    req.Decade,
	}
	if settings.Voice == "" {
		settings.Voice = s.defaultVoice
	}
	if req.Mysteries != nil {
		settings.Mysteries = *req.Mysteries
	}
	if err := settings.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.knownVoice(settings.Voice) {
		writeError(w, http.StatusBadRequest, "unknown voice "+settings.Voice)
		return
	}
	if req.Speed != nil {
		if err := queue.CheckSpeed(*req.Speed); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	units := prayer.Generate(settings, nil)
	if err := s.ctl.Start(r.Context(), units, settings, session.Callbacks{}); err != nil {
		writeErr(w, err)
		return
	}
	if req.Speed != nil {
		if err := s.ctl.SetSpeed(*req.Speed); err != nil {
			writeErr(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, s.stateResponse())
}

// knownVoice reports whether voice is installed. Without a voice listing, or
// with an empty one, every voice is accepted.
func (s *Server) knownVoice(voice string) bool {
	if s.voices == nil || voice == s.defaultVoice {
		return true
	}
	voices, err := s.voices.Voices()
	if err != nil || len(voices) == 0 {
		return true
	}
	return lo.Contains(voices, voice)
}

// HandleStop handles POST /session/stop.
func (s *Server) HandleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Stop(); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse())
}

// HandlePlay handles POST /session/play.
func (s *Server) HandlePlay(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.ctl.Play(r.Context()))
}

// HandlePause handles POST /session/pause.
func (s *Server) HandlePause(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.ctl.Pause())
}

// HandleResume handles POST /session/resume.
func (s *Server) HandleResume(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.ctl.Resume(r.Context()))
}

type skipRequest struct {
	UnitID string `json:"unit_id"`
	Track  *int   `json:"track"`
}

// HandleSkip handles POST /session/skip.
func (s *Server) HandleSkip(w http.ResponseWriter, r *http.Request) {
	var req skipRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch {
	case req.UnitID != "":
		s.respond(w, s.ctl.SkipToUnit(r.Context(), req.UnitID))
	case req.Track != nil:
		s.respond(w, s.ctl.SkipToTrack(r.Context(), *req.Track))
	default:
		writeError(w, http.StatusBadRequest, "unit_id or track required")
	}
}

// HandleSpeed handles POST /session/speed.
func (s *Server) HandleSpeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := queue.CheckSpeed(req.Speed); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respond(w, s.ctl.SetSpeed(req.Speed))
}

// HandleVolume handles POST /session/volume.
func (s *Server) HandleVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume *float64 `json:"volume"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Volume == nil {
		writeError(w, http.StatusBadRequest, "volume required")
		return
	}
	s.respond(w, s.ctl.SetVolume(*req.Volume))
}

// respond writes the session state, or err.
func (s *Server) respond(w http.ResponseWriter, err error) {
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.stateResponse())
}
