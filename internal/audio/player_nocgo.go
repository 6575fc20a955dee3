//go:build !((linux && cgo) || windows || darwin)

package audio

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Available reports whether this build produces sound. Without cgo there is
// no speaker; tracks are decoded for their length and played silently in
// real time so sessions still advance.
const Available = false

var errNothingLoaded = errors.New("no track loaded")

// Player is a silent player that keeps time like a real one.
type Player struct {
	mu sync.Mutex

	length  time.Duration
	pos     time.Duration // position at the last pause/seek
	started time.Time     // zero while paused
	timer   *time.Timer
	done    func(error)
	loaded  bool
	gen     uint64

	speed float64
}

// NewPlayer creates a silent player. sampleRate is ignored.
func NewPlayer(sampleRate int) *Player {
	return &Player{speed: 1.0}
}

func (p *Player) Load(uri string, done func(err error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	streamer, format, err := openTrack(uri)
	if err != nil {
		return err
	}
	p.length = format.SampleRate.D(streamer.Len())
	streamer.Close()

	p.loaded = true
	p.done = done
	slog.Debug("track loaded silently", "uri", uri, "duration", p.length)
	return nil
}

func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return errNothingLoaded
	}
	if !p.started.IsZero() {
		return nil
	}
	p.started = time.Now()
	p.armLocked()
	return nil
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return errNothingLoaded
	}
	p.pos = p.positionLocked()
	p.started = time.Time{}
	p.disarmLocked()
	return nil
}

func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	p.gen++
	p.disarmLocked()
	p.loaded = false
	p.done = nil
	p.pos = 0
	p.length = 0
	p.started = time.Time{}
}

func (p *Player) Seek(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.loaded {
		return nil
	}
	p.pos = min(d, p.length)
	if !p.started.IsZero() {
		p.started = time.Now()
		p.armLocked()
	}
	return nil
}

func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() time.Duration {
	if p.started.IsZero() {
		return p.pos
	}
	elapsed := time.Duration(float64(time.Since(p.started)) * p.speed)
	return min(p.pos+elapsed, p.length)
}

func (p *Player) SetSpeed(speed float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started.IsZero() {
		p.pos = p.positionLocked()
		p.started = time.Now()
	}
	p.speed = speed
	if !p.started.IsZero() {
		p.armLocked()
	}
	return nil
}

func (p *Player) SetVolume(float64) error {
	return nil
}

// Close stops playback.
func (p *Player) Close() {
	p.Stop()
}

func (p *Player) armLocked() {
	p.disarmLocked()
	remaining := time.Duration(float64(p.length-p.pos) / p.speed)
	gen := p.gen
	p.timer = time.AfterFunc(remaining, func() { p.finish(gen) })
}

func (p *Player) disarmLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

func (p *Player) finish(gen uint64) {
	p.mu.Lock()
	if gen != p.gen || p.done == nil || p.started.IsZero() {
		p.mu.Unlock()
		return
	}
	done := p.done
	p.done = nil
	p.pos = p.length
	p.started = time.Time{}
	p.mu.Unlock()

	done(nil)
}
