// Package queue flattens prayer units into playable tracks and drives
// single-track-at-a-time playback with auto-advance.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/samber/lo"
)

var (
	ErrEmptyQueue      = errors.New("queue has no playable tracks")
	ErrNoQueue         = errors.New("no queue loaded")
	ErrNoAnchor        = errors.New("unit has no tracks in queue")
	ErrTrackOutOfRange = errors.New("track index out of range")
	ErrBuildCanceled   = errors.New("queue build canceled")
)

// Resolver maps a logical audio path in a voice to a playable URI.
// ok is false when the segment should be omitted; Resolve never fails
// in any other way.
type Resolver interface {
	Resolve(ctx context.Context, voice, path string) (uri string, ok bool)
}

// Player is the shared playback surface. It holds at most one loaded track.
//
// Load replaces any loaded track and leaves it paused at the start. done is
// called exactly once for the loaded track, with nil on natural end or the
// fault that stopped it, unless the track is replaced or stopped first.
// Implementations must not call done from inside their own methods.
type Player interface {
	Load(uri string, done func(err error)) error
	Play() error
	Pause() error
	Stop() error
	Seek(d time.Duration) error
	Position() time.Duration
	SetSpeed(speed float64) error
	SetVolume(volume float64) error
}

// Track is one playable entry in a queue.
type Track struct {
	Index  int    `json:"index"`
	UnitID string `json:"unit_id"`
	Path   string `json:"path"`
	URI    string `json:"uri"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
}

// Queue is the flat track list built from a unit list. Tracks of one unit
// are contiguous and in segment order.
type Queue struct {
	tracks  []Track
	anchors map[string]int // unit id -> first track index
	owners  []string       // track index -> unit id
}

func newQueue() *Queue {
	return &Queue{anchors: make(map[string]int)}
}

func (q *Queue) append(t Track) {
	t.Index = len(q.tracks)
	if _, ok := q.anchors[t.UnitID]; !ok {
		q.anchors[t.UnitID] = t.Index
	}
	q.tracks = append(q.tracks, t)
	q.owners = append(q.owners, t.UnitID)
}

// Len returns the number of tracks.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.tracks)
}

// Track returns the track at index i.
func (q *Queue) Track(i int) (Track, bool) {
	if q == nil || i < 0 || i >= len(q.tracks) {
		return Track{}, false
	}
	return q.tracks[i], true
}

// Tracks returns a copy of all tracks.
func (q *Queue) Tracks() []Track {
	if q == nil {
		return nil
	}
	return append([]Track(nil), q.tracks...)
}

// Anchor returns the first track index of a unit.
func (q *Queue) Anchor(unitID string) (int, bool) {
	if q == nil {
		return 0, false
	}
	i, ok := q.anchors[unitID]
	return i, ok
}

// Anchors returns a copy of the unit -> first track index map.
func (q *Queue) Anchors() map[string]int {
	if q == nil {
		return nil
	}
	return lo.Assign(q.anchors)
}

// UnitAt returns the unit owning track i.
func (q *Queue) UnitAt(i int) (string, bool) {
	if q == nil || i < 0 || i >= len(q.owners) {
		return "", false
	}
	return q.owners[i], true
}
