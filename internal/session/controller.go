package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bep/debounce"

	"rosary-audio/internal/media"
	"rosary-audio/internal/prayer"
	"rosary-audio/internal/queue"
)

// Config holds controller settings.
type Config struct {
	// Channel defaults to Channel.
	Channel string
	// PersistDebounce is the quiet period before a snapshot is written.
	PersistDebounce time.Duration
}

// Controller orchestrates the engine and the coordinator for one session at
// a time.
//
// The controller never holds its own lock while calling into the engine or
// the coordinator; both call back into it synchronously.
type Controller struct {
	engine  *queue.Engine
	coord   *media.Coordinator
	store   Store
	channel string

	debounced func(func())

	mu      sync.Mutex
	session *session
	cb      Callbacks

	// persistMu serializes snapshot writes and removals.
	persistMu sync.Mutex

	unsubscribeEngine func()
	activatedSub      uint64
}

// NewController wires a controller to the shared engine and coordinator and
// registers its remote command handlers. Call Close to detach it.
func NewController(engine *queue.Engine, coord *media.Coordinator, store Store, cfg Config) *Controller {
	if cfg.Channel == "" {
		cfg.Channel = Channel
	}
	if cfg.PersistDebounce <= 0 {
		cfg.PersistDebounce = 2 * time.Second
	}

	c := &Controller{
		engine:    engine,
		coord:     coord,
		store:     store,
		channel:   cfg.Channel,
		debounced: debounce.New(cfg.PersistDebounce),
	}

	c.unsubscribeEngine = engine.Subscribe(c.onEngineEvent)
	c.activatedSub = coord.Subscribe(media.EventChannelActivated, c.onChannelActivated)
	coord.Register(c.channel, media.Handlers{
		Play:     func() error { return c.Play(context.Background()) },
		Pause:    c.Pause,
		Stop:     c.Stop,
		Next:     c.Next,
		Previous: c.Previous,
		SeekTo:   c.Seek,
	})

	return c
}

// Close detaches the controller from the engine and coordinator. Pending
// snapshot writes are flushed.
func (c *Controller) Close() {
	c.Flush()
	c.unsubscribeEngine()
	c.coord.Unsubscribe(media.EventChannelActivated, c.activatedSub)
	c.coord.Unregister(c.channel)
}

// Channel returns the coordinator channel this controller plays on.
func (c *Controller) Channel() string {
	return c.channel
}

// Start begins a new session: it claims the channel, builds the queue from
// units and starts playback. A session whose units resolve to no audio fails
// with an error wrapping queue.ErrEmptyQueue.
func (c *Controller) Start(ctx context.Context, units []prayer.Unit, settings prayer.Settings, cb Callbacks) error {
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	s := newSession(units, settings)
	s.speed = c.engine.Speed()
	s.volume = c.engine.Volume()

	c.mu.Lock()
	if c.session != nil && !c.session.completed {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.session = s
	c.cb = cb
	c.mu.Unlock()

	slog.Info("starting session",
		"session_id", s.id,
		"voice", settings.Voice,
		"form", settings.Form.String(),
		"mysteries", settings.Mysteries.String(),
		"units", len(units),
	)

	// Claim before building so engine events of the build are ours.
	c.coord.Claim(c.channel)

	if _, err := c.engine.BuildQueue(ctx, settings.Voice, units); err != nil {
		c.abandon(s)
		return fmt.Errorf("start session: %w", err)
	}
	// Stop or another channel may have landed while the queue was building.
	if err := c.checkOwner(s); err != nil {
		c.abandon(s)
		return fmt.Errorf("start session: %w", err)
	}
	if err := c.engine.Play(); err != nil {
		c.abandon(s)
		return fmt.Errorf("start session: %w", err)
	}

	c.schedulePersist()
	c.publishState()
	return nil
}

// abandon drops s if it is still the current session.
func (c *Controller) abandon(s *session) {
	c.mu.Lock()
	if c.session != s {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.cb = Callbacks{}
	c.mu.Unlock()

	if c.coord.IsActive(c.channel) {
		c.engine.Stop()
		c.coord.Release(c.channel)
	}
	c.publishState()
}

// Stop ends the session, releases the channel if held and clears the
// persisted snapshot. It is always safe to call.
func (c *Controller) Stop() error {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.cb = Callbacks{}
	c.mu.Unlock()

	// Replace any pending snapshot write.
	c.debounced(func() {})

	if c.coord.IsActive(c.channel) {
		if err := c.engine.Stop(); err != nil {
			slog.Warn("engine stop failed", "error", err)
		}
		c.coord.Release(c.channel)
	}

	err := c.clearSnapshot()
	if s != nil {
		slog.Info("session stopped", "session_id", s.id, "last_unit_id", s.lastKnown)
		c.publishState()
	}
	return err
}

// Play plays the session. Without the channel it behaves like Resume.
func (c *Controller) Play(ctx context.Context) error {
	if !c.hasSession() {
		return ErrNoSession
	}
	if !c.coord.IsActive(c.channel) || c.engine.Queue() == nil {
		return c.Resume(ctx)
	}
	return c.engine.Play()
}

// Pause pauses the session in place.
func (c *Controller) Pause() error {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	s.playing = false
	c.mu.Unlock()

	if !c.coord.IsActive(c.channel) {
		c.publishState()
		return nil
	}
	return c.engine.Pause()
}

// Resume continues the session. If another channel took the playback surface
// since, the channel is reclaimed and the queue rebuilt at the last-known
// unit first.
func (c *Controller) Resume(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.mu.Unlock()
	if s == nil {
		return ErrNoSession
	}

	if err := c.ensureHeld(ctx); err != nil {
		return err
	}
	if err := c.checkOwner(s); err != nil {
		return err
	}
	return c.engine.Play()
}

// SkipToUnit plays the first track of a unit.
func (c *Controller) SkipToUnit(ctx context.Context, unitID string) error {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if _, ok := s.byID[unitID]; !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w %q", ErrUnknownUnit, unitID)
	}
	c.mu.Unlock()

	if err := c.ensureHeld(ctx); err != nil {
		return err
	}
	return c.engine.SkipToUnit(unitID)
}

// SkipToTrack plays track i of the queue.
func (c *Controller) SkipToTrack(ctx context.Context, i int) error {
	if err := c.ensureHeld(ctx); err != nil {
		return err
	}
	return c.engine.SkipToTrack(i)
}

// Next skips to the following track.
func (c *Controller) Next() error {
	if err := c.requireHeld(); err != nil {
		return err
	}
	return c.engine.Next()
}

// Previous restarts the track or goes back one.
func (c *Controller) Previous() error {
	if err := c.requireHeld(); err != nil {
		return err
	}
	return c.engine.Previous()
}

// Seek moves within the current track.
func (c *Controller) Seek(d time.Duration) error {
	if err := c.requireHeld(); err != nil {
		return err
	}
	return c.engine.Seek(d)
}

// SetSpeed sets the playback rate. Without the channel the rate is kept and
// applied on reclaim.
func (c *Controller) SetSpeed(speed float64) error {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	c.mu.Unlock()

	if c.coord.IsActive(c.channel) {
		if err := c.engine.SetSpeed(speed); err != nil {
			return err
		}
	} else if err := queue.CheckSpeed(speed); err != nil {
		return err
	}

	c.mu.Lock()
	s.speed = speed
	c.mu.Unlock()

	c.schedulePersist()
	c.publishState()
	return nil
}

// SetVolume sets the volume, clamped to 0..1.
func (c *Controller) SetVolume(volume float64) error {
	volume = min(max(volume, 0), 1)

	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	s.volume = volume
	c.mu.Unlock()

	if c.coord.IsActive(c.channel) {
		if err := c.engine.SetVolume(volume); err != nil {
			return err
		}
	}
	c.publishState()
	return nil
}

// State returns the observable session state.
func (c *Controller) State() State {
	queueLen := 0
	if c.coord.IsActive(c.channel) {
		queueLen = c.engine.Queue().Len()
	}
	speed, volume := c.engine.Speed(), c.engine.Volume()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return State{Speed: speed, Volume: volume}
	}
	st := c.session.state()
	st.QueueLength = queueLen
	return st
}

// Units returns the session's unit list.
func (c *Controller) Units() []prayer.Unit {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	return append([]prayer.Unit(nil), c.session.units...)
}

// Restore loads the persisted snapshot, rebuilds its queue and cues the saved
// unit without playing. It reports whether a session was restored; a missing
// or unreadable snapshot is not an error.
func (c *Controller) Restore(ctx context.Context, cb Callbacks) bool {
	data, err := c.store.Get(SnapshotKey)
	if err != nil {
		slog.Warn("session snapshot read failed", "error", err)
		return false
	}
	if data == nil {
		return false
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		slog.Warn("session snapshot ignored", "error", err)
		return false
	}

	s := newSession(snap.Units, snap.Settings)
	if snap.SessionID != "" {
		s.id = snap.SessionID
	}
	s.lastKnown = snap.LastUnitID
	s.current = snap.LastUnitID
	s.savedAt = snap.SavedAt
	if snap.Speed > 0 {
		s.speed = snap.Speed
	}
	s.volume = c.engine.Volume()

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return false
	}
	c.session = s
	c.cb = cb
	c.mu.Unlock()

	if err := c.reclaim(ctx, s); err != nil {
		slog.Warn("session restore failed", "session_id", s.id, "error", err)
		c.abandon(s)
		return false
	}

	slog.Info("session restored", "session_id", s.id, "last_unit_id", s.lastKnown, "saved_at", s.savedAt)
	c.publishState()
	return true
}

// Flush writes a pending snapshot now.
func (c *Controller) Flush() {
	c.debounced(func() {})
	c.persist()
}

func (c *Controller) hasSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

func (c *Controller) requireHeld() error {
	if !c.hasSession() {
		return ErrNoSession
	}
	if !c.coord.IsActive(c.channel) {
		return fmt.Errorf("%w: %s is not active", ErrChannelBlocked, c.channel)
	}
	return nil
}

// checkOwner reports whether s may still drive the engine: it must be the
// current session and hold the channel.
func (c *Controller) checkOwner(s *session) error {
	c.mu.Lock()
	current := c.session == s
	c.mu.Unlock()

	if !current {
		return ErrNoSession
	}
	if !c.coord.IsActive(c.channel) {
		return fmt.Errorf("%w: %s is not active", ErrChannelBlocked, c.channel)
	}
	return nil
}

// ensureHeld reclaims the channel when another channel took it or the
// session's queue is gone.
func (c *Controller) ensureHeld(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if s.completed {
		// A finished session starts over from the top.
		s.completed = false
		s.lastKnown = ""
	}
	c.mu.Unlock()

	if c.coord.IsActive(c.channel) && c.engine.Queue() != nil {
		return nil
	}
	return c.reclaim(ctx, s)
}

// reclaim claims the channel, rebuilds the queue from the session's units and
// cues the last-known unit. The engine's own position is not trusted: another
// channel may have reset it.
func (c *Controller) reclaim(ctx context.Context, s *session) error {
	c.mu.Lock()
	s.rebuilding = true
	voice := s.settings.Voice
	units := s.units
	speed, volume := s.speed, s.volume
	target := s.lastKnown
	c.mu.Unlock()

	slog.Info("reclaiming playback", "session_id", s.id, "last_unit_id", target)

	c.coord.Claim(c.channel)

	_, err := c.engine.BuildQueue(ctx, voice, units)
	if err == nil {
		if err := c.engine.SetSpeed(speed); err != nil {
			slog.Warn("restoring speed failed", "speed", speed, "error", err)
		}
		if err := c.engine.SetVolume(volume); err != nil {
			slog.Warn("restoring volume failed", "volume", volume, "error", err)
		}
		if target != "" {
			c.cueNearest(s, target)
		}
	}

	c.mu.Lock()
	s.rebuilding = false
	if err == nil {
		s.interrupted = false
	}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("reclaim: %w", err)
	}
	return nil
}

// cueNearest cues target, or the closest unit after it that has audio, or
// failing that the closest one before it.
func (c *Controller) cueNearest(s *session, target string) {
	start, ok := s.byID[target]
	if !ok {
		slog.Warn("last unit not in session, starting from the top", "unit_id", target)
		return
	}
	for i := start; i < len(s.units); i++ {
		if c.engine.Cue(s.units[i].ID) == nil {
			return
		}
	}
	for i := start - 1; i >= 0; i-- {
		if c.engine.Cue(s.units[i].ID) == nil {
			return
		}
	}
}

func (c *Controller) onEngineEvent(ev queue.Event) {
	if !c.coord.IsActive(c.channel) {
		return
	}

	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return
	}
	cb := c.cb

	var (
		changed  *prayer.Unit
		complete bool
		persist  bool
		progress bool
	)
	switch ev.Type {
	case queue.EventTrackChanged:
		s.current = ev.UnitID
		s.trackIndex = ev.Index
		s.playing = true
		s.completed = false
		// A remote next during a reclaim can play before the saved unit is cued.
		if !s.rebuilding {
			if s.lastKnown != ev.UnitID {
				persist = true
			}
			s.lastKnown = ev.UnitID
		}
		if u, ok := s.unit(ev.UnitID); ok {
			changed = &u
		}
	case queue.EventQueueComplete:
		s.playing = false
		s.completed = true
		complete = true
	case queue.EventBuildProgress:
		s.buildDone, s.buildTotal = ev.Done, ev.Total
		progress = true
	case queue.EventStateChanged:
		s.playing = ev.State == queue.StatePlaying
	}
	c.mu.Unlock()

	if persist {
		c.schedulePersist()
	}
	if changed != nil && cb.OnUnitChanged != nil {
		cb.OnUnitChanged(*changed)
	}
	if progress && cb.OnBuildProgress != nil {
		cb.OnBuildProgress(ev.Done, ev.Total)
	}
	if complete {
		slog.Info("session completed", "session_id", s.id)
		c.debounced(func() {})
		if err := c.clearSnapshot(); err != nil {
			slog.Warn("session snapshot clear failed", "error", err)
		}
		c.coord.Release(c.channel)
		if cb.OnComplete != nil {
			cb.OnComplete()
		}
	}
	if ev.Type != queue.EventBuildProgress || ev.Done == ev.Total {
		c.publishState()
	}
}

// onChannelActivated pauses the session when another channel takes over.
func (c *Controller) onChannelActivated(payload any) {
	channel, _ := payload.(string)
	if channel == c.channel {
		return
	}

	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		return
	}
	wasPlaying := s.playing
	s.playing = false
	s.interrupted = true
	c.mu.Unlock()

	slog.Info("session interrupted", "session_id", s.id, "by_channel", channel)
	if wasPlaying {
		if err := c.engine.Pause(); err != nil {
			slog.Warn("pause on interruption failed", "error", err)
		}
	}
	c.publishState()
}

func (c *Controller) schedulePersist() {
	c.debounced(c.persist)
}

func (c *Controller) persist() {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	s := c.session
	if s == nil || s.completed {
		c.mu.Unlock()
		return
	}
	snap := s.snapshot()
	c.mu.Unlock()

	data, err := encodeSnapshot(snap)
	if err != nil {
		slog.Warn("session snapshot encode failed", "error", err)
		return
	}
	if err := c.store.Set(SnapshotKey, data); err != nil {
		slog.Warn("session snapshot write failed", "session_id", snap.SessionID, "error", err)
		return
	}

	c.mu.Lock()
	if c.session == s {
		s.savedAt = snap.SavedAt
	}
	c.mu.Unlock()
	slog.Debug("session snapshot saved", "session_id", snap.SessionID, "last_unit_id", snap.LastUnitID)
}

func (c *Controller) clearSnapshot() error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if err := c.store.Remove(SnapshotKey); err != nil {
		return fmt.Errorf("clear session snapshot: %w", err)
	}
	return nil
}

func (c *Controller) publishState() {
	c.coord.Publish(EventState, c.State())
}
