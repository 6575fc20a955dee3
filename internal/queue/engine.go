package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"rosary-audio/internal/prayer"
)

// State is the engine's playback state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EventType distinguishes engine notifications.
type EventType int

const (
	EventTrackChanged EventType = iota
	EventQueueComplete
	EventBuildProgress
	EventStateChanged
)

// Event is delivered to subscribers in the order it happened.
type Event struct {
	Type   EventType
	UnitID string // EventTrackChanged
	Index  int    // EventTrackChanged
	Done   int    // EventBuildProgress
	Total  int    // EventBuildProgress
	State  State  // EventStateChanged
}

const (
	// previousRestartThreshold is how far into a track Previous restarts it
	// instead of going back.
	previousRestartThreshold = 3 * time.Second

	MinSpeed = 0.5
	MaxSpeed = 2.0
)

// CheckSpeed validates a playback rate.
func CheckSpeed(speed float64) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("speed must be between %.1f and %.1f (got %.2f)", MinSpeed, MaxSpeed, speed)
	}
	return nil
}

// Engine plays a Queue on a Player.
type Engine struct {
	player   Player
	resolver Resolver

	mu      sync.Mutex
	queue   *Queue
	current int
	state   State
	speed   float64
	volume  float64
	loadID  uint64 // bumped on every load/stop, stale done callbacks are ignored
	buildID uint64 // bumped on every build/stop, superseded builds are discarded

	emitMu   sync.Mutex
	emitting bool
	pending  []Event
	subs     []subscriber
	nextSub  uint64
}

type subscriber struct {
	id uint64
	fn func(Event)
}

// NewEngine creates an idle engine.
func NewEngine(player Player, resolver Resolver) *Engine {
	return &Engine{
		player:   player,
		resolver: resolver,
		current:  -1,
		state:    StateIdle,
		speed:    1.0,
		volume:   1.0,
	}
}

// Subscribe registers fn for every future event. The returned func removes it.
func (e *Engine) Subscribe(fn func(Event)) (cancel func()) {
	e.emitMu.Lock()
	e.nextSub++
	id := e.nextSub
	e.subs = append(e.subs, subscriber{id: id, fn: fn})
	e.emitMu.Unlock()

	return func() {
		e.emitMu.Lock()
		defer e.emitMu.Unlock()
		for i, s := range e.subs {
			if s.id == id {
				e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

// BuildQueue resolves units in order and replaces the current queue. Any
// playback is stopped first. Returns ErrEmptyQueue if nothing resolved.
func (e *Engine) BuildQueue(ctx context.Context, voice string, units []prayer.Unit) (*Queue, error) {
	e.mu.Lock()
	e.buildID++
	id := e.buildID
	e.haltLocked()
	e.queue = nil
	e.current = -1
	e.setStateLocked(StateLoading)
	e.mu.Unlock()
	e.flush()

	q := newQueue()
	for i, u := range units {
		if err := ctx.Err(); err != nil {
			e.abandonBuild(id)
			return nil, fmt.Errorf("build queue: %w", err)
		}
		if !e.isCurrentBuild(id) {
			return nil, ErrBuildCanceled
		}

		for _, path := range u.Audio.Segments() {
			uri, ok := e.resolver.Resolve(ctx, voice, path)
			if !ok {
				slog.Warn("audio segment not resolved, skipping",
					"unit_id", u.ID,
					"voice", voice,
					"path", path,
				)
				continue
			}
			q.append(Track{
				UnitID: u.ID,
				Path:   path,
				URI:    uri,
				Title:  u.Title,
				Artist: voice,
				Album:  prayer.GroupTitle(u.Group),
			})
		}

		e.push(Event{Type: EventBuildProgress, Done: i + 1, Total: len(units)})
		e.flush()
	}

	e.mu.Lock()
	if id != e.buildID {
		e.mu.Unlock()
		return nil, ErrBuildCanceled
	}
	if q.Len() == 0 {
		e.setStateLocked(StateIdle)
		e.mu.Unlock()
		e.flush()
		return nil, ErrEmptyQueue
	}
	e.queue = q
	e.current = 0
	e.setStateLocked(StateReady)
	e.mu.Unlock()
	e.flush()

	slog.Debug("queue built", "units", len(units), "tracks", q.Len())
	return q, nil
}

func (e *Engine) isCurrentBuild(id uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return id == e.buildID
}

func (e *Engine) abandonBuild(id uint64) {
	e.mu.Lock()
	if id == e.buildID {
		e.setStateLocked(StateIdle)
	}
	e.mu.Unlock()
	e.flush()
}

// Play starts the current track, resumes a paused one, or restarts a
// completed queue from the top.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.flush()
	defer e.mu.Unlock()

	switch e.state {
	case StatePlaying:
		return nil
	case StateLoading:
		return ErrNoQueue
	case StatePaused:
		if err := e.player.Play(); err != nil {
			slog.Warn("resume failed, advancing", "track_index", e.current, "error", err)
			e.startLocked(e.current + 1)
			return nil
		}
		e.setStateLocked(StatePlaying)
		return nil
	}

	if e.queue == nil {
		return ErrNoQueue
	}
	if e.state == StateCompleted || e.current < 0 {
		e.current = 0
	}
	e.startLocked(e.current)
	return nil
}

// Pause halts the current track in place.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.flush()
	defer e.mu.Unlock()

	if e.state != StatePlaying {
		return nil
	}
	if err := e.player.Pause(); err != nil {
		return fmt.Errorf("pause: %w", err)
	}
	e.setStateLocked(StatePaused)
	return nil
}

// Stop halts playback, rewinds the current track and cancels any build in
// progress. It is always safe to call.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.flush()
	defer e.mu.Unlock()

	e.buildID++
	e.haltLocked()
	e.setStateLocked(StateIdle)
	return nil
}

// SkipToTrack loads and plays track i immediately.
func (e *Engine) SkipToTrack(i int) error {
	e.mu.Lock()
	defer e.flush()
	defer e.mu.Unlock()

	if e.queue == nil {
		return ErrNoQueue
	}
	if i < 0 || i >= e.queue.Len() {
		return ErrTrackOutOfRange
	}
	e.startLocked(i)
	return nil
}

// SkipToUnit loads and plays the first track of a unit. A unit without
// tracks leaves the engine untouched.
func (e *Engine) SkipToUnit(unitID string) error {
	e.mu.Lock()
	defer e.flush()
	defer e.mu.Unlock()

	if e.queue == nil {
		return ErrNoQueue
	}
	i, ok := e.queue.Anchor(unitID)
	if !ok {
		slog.Warn("skip to unit without tracks ignored", "unit_id", unitID)
		return ErrNoAnchor
	}
	e.startLocked(i)
	return nil
}

// Cue positions the engine at a unit's first track without playing it.
func (e *Engine) Cue(unitID string) error {
	e.mu.Lock()
	defer e.flush()
	defer e.mu.Unlock()

	if e.queue == nil {
		return ErrNoQueue
	}
	i, ok := e.queue.Anchor(unitID)
	if !ok {
		return ErrNoAnchor
	}
	e.haltLocked()
	e.current = i
	e.setStateLocked(StateReady)
	return nil
}

// Next skips to the following track, completing the queue after the last.
func (e *Engine) Next() error {
	e.mu.Lock()
	defer e.flush()
	defer e.mu.Unlock()

	if e.queue == nil {
		return ErrNoQueue
	}
	if e.state == StateCompleted {
		return nil
	}
	e.startLocked(e.current + 1)
	return nil
}

// Previous restarts the current track, or goes back one track when near its
// start.
func (e *Engine) Previous() error {
	e.mu.Lock()
	defer e.flush()
	defer e.mu.Unlock()

	if e.queue == nil {
		return ErrNoQueue
	}
	if e.player.Position() > previousRestartThreshold || e.current <= 0 {
		e.startLocked(max(e.current, 0))
		return nil
	}
	e.startLocked(e.current - 1)
	return nil
}

// Seek moves within the current track.
func (e *Engine) Seek(d time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StatePlaying && e.state != StatePaused {
		return nil
	}
	if d < 0 {
		d = 0
	}
	return e.player.Seek(d)
}

// SetSpeed changes the playback rate of this and every later track.
func (e *Engine) SetSpeed(speed float64) error {
	if err := CheckSpeed(speed); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.speed = speed
	return e.player.SetSpeed(speed)
}

// SetVolume changes the volume (0..1) of this and every later track.
func (e *Engine) SetVolume(volume float64) error {
	volume = min(max(volume, 0), 1)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.volume = volume
	return e.player.SetVolume(volume)
}

// State returns the current playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current returns the current track.
func (e *Engine) Current() (Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Track(e.current)
}

// Queue returns the current queue, nil while none is built.
func (e *Engine) Queue() *Queue {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue
}

// Position returns the position within the current track.
func (e *Engine) Position() time.Duration {
	return e.player.Position()
}

// Speed returns the retained playback rate.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// Volume returns the retained volume.
func (e *Engine) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// startLocked plays track i, advancing past tracks that fail to load, and
// completes the queue when it runs out.
func (e *Engine) startLocked(i int) {
	for ; i < e.queue.Len(); i++ {
		e.loadID++
		id := e.loadID
		t := e.queue.tracks[i]
		e.current = i

		if err := e.player.Load(t.URI, func(err error) { e.onTrackDone(id, err) }); err != nil {
			slog.Warn("track failed to load, advancing", "track_index", i, "unit_id", t.UnitID, "error", err)
			continue
		}
		if err := e.player.Play(); err != nil {
			slog.Warn("track failed to start, advancing", "track_index", i, "unit_id", t.UnitID, "error", err)
			continue
		}

		e.setStateLocked(StatePlaying)
		e.push(Event{Type: EventTrackChanged, UnitID: t.UnitID, Index: i})
		return
	}
	e.completeLocked()
}

func (e *Engine) completeLocked() {
	e.haltLocked()
	if e.queue.Len() > 0 {
		e.current = e.queue.Len() - 1
	}
	e.setStateLocked(StateCompleted)
	e.push(Event{Type: EventQueueComplete})
}

// haltLocked stops the player and invalidates pending done callbacks.
func (e *Engine) haltLocked() {
	e.loadID++
	if err := e.player.Stop(); err != nil {
		slog.Warn("player stop failed", "error", err)
	}
}

func (e *Engine) onTrackDone(id uint64, err error) {
	e.mu.Lock()
	if id != e.loadID || (e.state != StatePlaying && e.state != StatePaused) {
		e.mu.Unlock()
		return
	}
	if err != nil {
		slog.Warn("playback fault, advancing", "track_index", e.current, "error", err)
	}
	e.startLocked(e.current + 1)
	e.mu.Unlock()
	e.flush()
}

func (e *Engine) setStateLocked(s State) {
	if e.state == s {
		return
	}
	e.state = s
	e.push(Event{Type: EventStateChanged, State: s})
}

func (e *Engine) push(ev Event) {
	e.emitMu.Lock()
	e.pending = append(e.pending, ev)
	e.emitMu.Unlock()
}

// flush delivers pending events. Only one goroutine delivers at a time, so
// events reach subscribers in the order they were pushed; events pushed by a
// subscriber are delivered after it returns.
func (e *Engine) flush() {
	e.emitMu.Lock()
	if e.emitting {
		e.emitMu.Unlock()
		return
	}
	e.emitting = true

	for len(e.pending) > 0 {
		ev := e.pending[0]
		e.pending = e.pending[1:]
		subs := append([]subscriber(nil), e.subs...)
		e.emitMu.Unlock()

		for _, s := range subs {
			s.fn(ev)
		}

		e.emitMu.Lock()
	}

	e.emitting = false
	e.emitMu.Unlock()
}
