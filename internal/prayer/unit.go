package prayer

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

const (
	// GroupOpening holds the prayers before the first decade.
	GroupOpening = 0
	// GroupClosing holds the prayers after the last decade.
	GroupClosing = 6
)

// Unit is one item of spoken content. Units are values and are never
// modified after Generate returns them.
type Unit struct {
	ID       string   `json:"id"`
	Kind     Kind     `json:"kind"`
	Title    string   `json:"title"`
	Text     string   `json:"text"`
	Order    int      `json:"order"`
	Group    int      `json:"group"`
	Position int      `json:"position,omitempty"` // 1-based within the group, 0 if not counted
	Audio    AudioRef `json:"audio"`
}

// HasAudio reports whether the unit references any recording.
func (u Unit) HasAudio() bool {
	return len(u.Audio.Segments()) > 0
}

// Settings are the user choices a session is generated from.
type Settings struct {
	Voice     string     `json:"voice"`
	Form      Form       `json:"form"`
	Mysteries MysterySet `json:"mysteries"`
	Season    Season     `json:"season"`
	Decade    int        `json:"decade,omitempty"` // FormSingleDecade only: 1..5, 0 selects the first
}

// Validate checks the settings before generation.
func (s Settings) Validate() error {
	if s.Voice == "" {
		return fmt.Errorf("voice is required")
	}
	if s.Form == FormSingleDecade && (s.Decade < 0 || s.Decade > 5) {
		return fmt.Errorf("decade must be between 1 and 5, or 0 for the first (got %d)", s.Decade)
	}
	return nil
}

// GroupTitle names a group for display, e.g. "3rd Decade".
func GroupTitle(group int) string {
	switch group {
	case GroupOpening:
		return "Opening Prayers"
	case GroupClosing:
		return "Closing Prayers"
	default:
		return humanize.Ordinal(group) + " Decade"
	}
}

// Index maps unit IDs to their position in units.
func Index(units []Unit) map[string]int {
	idx := make(map[string]int, len(units))
	for i, u := range units {
		idx[u.ID] = i
	}
	return idx
}
