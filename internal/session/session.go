// Package session runs one guided prayer session on the shared queue engine:
// start and stop, pause and resume including reclaim after another channel
// interrupted, and debounced persistence of the resume point.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"rosary-audio/internal/prayer"
)

// Channel is the coordinator channel name of prayer sessions.
const Channel = "rosary"

// EventState is published on the coordinator bus with a State payload after
// every observable change.
const EventState = "session.state"

var (
	ErrNoSession      = errors.New("no active session")
	ErrSessionActive  = errors.New("session already active")
	ErrUnknownUnit    = errors.New("unknown unit")
	ErrChannelBlocked = errors.New("session does not hold the playback channel")
)

// Store is the durable key/value store snapshots live in. Get returns nil
// without error for a missing key.
type Store interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Remove(key string) error
}

// Callbacks are optional hooks for the presentation layer. They run on the
// goroutine that caused the change, never under the controller's lock.
type Callbacks struct {
	OnUnitChanged   func(unit prayer.Unit)
	OnComplete      func()
	OnBuildProgress func(done, total int)
}

// State is the observable session state.
type State struct {
	SessionID     string           `json:"session_id,omitempty"`
	Active        bool             `json:"active"`
	Playing       bool             `json:"playing"`
	Completed     bool             `json:"completed"`
	Interrupted   bool             `json:"interrupted"`
	Rebuilding    bool             `json:"rebuilding"`
	CurrentUnitID string           `json:"current_unit_id,omitempty"`
	CurrentTitle  string           `json:"current_title,omitempty"`
	Group         int              `json:"group"`
	GroupTitle    string           `json:"group_title,omitempty"`
	Position      int              `json:"position,omitempty"`
	LastUnitID    string           `json:"last_unit_id,omitempty"`
	TrackIndex    int              `json:"track_index"`
	QueueLength   int              `json:"queue_length"`
	BuildDone     int              `json:"build_done"`
	BuildTotal    int              `json:"build_total"`
	Speed         float64          `json:"speed"`
	Volume        float64          `json:"volume"`
	Settings      *prayer.Settings `json:"settings,omitempty"`
	Units         int              `json:"units"`
	SavedAt       *time.Time       `json:"saved_at,omitempty"`
}

// session is the mutable runtime state of one session.
type session struct {
	id       string
	units    []prayer.Unit
	byID     map[string]int
	settings prayer.Settings

	current     string
	lastKnown   string
	trackIndex  int
	playing     bool
	completed   bool
	interrupted bool
	rebuilding  bool
	buildDone   int
	buildTotal  int
	speed       float64
	volume      float64
	savedAt     time.Time
}

func newSession(units []prayer.Unit, settings prayer.Settings) *session {
	return &session{
		id:       uuid.NewString(),
		units:    units,
		byID:     prayer.Index(units),
		settings: settings,
		speed:    1.0,
		volume:   1.0,
	}
}

func (s *session) unit(id string) (prayer.Unit, bool) {
	i, ok := s.byID[id]
	if !ok {
		return prayer.Unit{}, false
	}
	return s.units[i], true
}

func (s *session) snapshot() *Snapshot {
	return &Snapshot{
		SessionID:  s.id,
		Units:      s.units,
		Settings:   s.settings,
		LastUnitID: s.lastKnown,
		Speed:      s.speed,
		SavedAt:    time.Now().UTC(),
	}
}

func (s *session) state() State {
	st := State{
		SessionID:     s.id,
		Active:        true,
		Playing:       s.playing,
		Completed:     s.completed,
		Interrupted:   s.interrupted,
		Rebuilding:    s.rebuilding,
		CurrentUnitID: s.current,
		LastUnitID:    s.lastKnown,
		TrackIndex:    s.trackIndex,
		BuildDone:     s.buildDone,
		BuildTotal:    s.buildTotal,
		Speed:         s.speed,
		Volume:        s.volume,
		Units:         len(s.units),
	}
	settings := s.settings
	st.Settings = &settings
	if u, ok := s.unit(s.current); ok {
		st.CurrentTitle = u.Title
		st.Group = u.Group
		st.GroupTitle = prayer.GroupTitle(u.Group)
		st.Position = u.Position
	}
	if !s.savedAt.IsZero() {
		saved := s.savedAt
		st.SavedAt = &saved
	}
	return st
}
