//go:build (linux && cgo) || windows || darwin

package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

// Available reports whether this build produces sound.
const Available = true

var errNothingLoaded = errors.New("no track loaded")

// Player plays one track at a time through the system speaker.
type Player struct {
	mu sync.Mutex

	sampleRate  beep.SampleRate
	initialized bool

	streamer  beep.StreamSeekCloser
	format    beep.Format
	resampler *beep.Resampler
	volume    *effects.Volume
	ctrl      *beep.Ctrl
	done      func(error)

	// generation is bumped on every load and stop; end-of-stream callbacks
	// of older tracks are dropped.
	generation uint64

	speed float64
	level float64
}

// NewPlayer creates a player. The speaker is opened on the first load.
func NewPlayer(sampleRate int) *Player {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	return &Player{
		sampleRate: beep.SampleRate(sampleRate),
		speed:      1.0,
		level:      1.0,
	}
}

func (p *Player) initSpeakerLocked() error {
	if p.initialized {
		return nil
	}
	if err := speaker.Init(p.sampleRate, p.sampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	p.initialized = true
	return nil
}

// Load replaces the current track with uri, paused at the start.
func (p *Player) Load(uri string, done func(err error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()

	streamer, format, err := openTrack(uri)
	if err != nil {
		return err
	}
	if err := p.initSpeakerLocked(); err != nil {
		streamer.Close()
		return err
	}

	exponent, silent := volumeLevel(p.level)
	p.streamer = streamer
	p.format = format
	p.resampler = beep.ResampleRatio(4, resampleRatio(format.SampleRate, p.sampleRate, p.speed), streamer)
	p.volume = &effects.Volume{Streamer: p.resampler, Base: 2, Volume: exponent, Silent: silent}
	p.ctrl = &beep.Ctrl{Streamer: p.volume, Paused: true}
	p.done = done

	gen := p.generation
	speaker.Play(beep.Seq(p.ctrl, beep.Callback(func() {
		// Runs on the speaker goroutine with the speaker locked.
		go p.finish(gen)
	})))

	slog.Debug("track loaded", "uri", uri, "sample_rate", int(format.SampleRate), "duration", format.SampleRate.D(streamer.Len()))
	return nil
}

func (p *Player) finish(gen uint64) {
	p.mu.Lock()
	if gen != p.generation || p.done == nil {
		p.mu.Unlock()
		return
	}
	done := p.done
	p.done = nil
	err := p.streamer.Err()
	p.mu.Unlock()

	done(err)
}

func (p *Player) Play() error {
	return p.setPaused(false)
}

func (p *Player) Pause() error {
	return p.setPaused(true)
}

func (p *Player) setPaused(paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctrl == nil {
		return errNothingLoaded
	}
	speaker.Lock()
	p.ctrl.Paused = paused
	speaker.Unlock()
	return nil
}

// Stop silences and unloads the current track.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	return nil
}

func (p *Player) stopLocked() {
	p.generation++
	p.done = nil

	if p.ctrl != nil {
		speaker.Lock()
		p.ctrl.Streamer = nil
		speaker.Unlock()
	}
	if p.streamer != nil {
		if err := p.streamer.Close(); err != nil {
			slog.Debug("close track failed", "error", err)
		}
	}
	p.streamer = nil
	p.resampler = nil
	p.volume = nil
	p.ctrl = nil
}

func (p *Player) Seek(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.streamer == nil {
		return nil
	}

	speaker.Lock()
	defer speaker.Unlock()

	n := min(p.format.SampleRate.N(d), max(p.streamer.Len()-1, 0))
	if err := p.streamer.Seek(n); err != nil {
		return fmt.Errorf("seek: %w", err)
	}
	return nil
}

func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.streamer == nil {
		return 0
	}

	speaker.Lock()
	pos := p.streamer.Position()
	speaker.Unlock()

	return p.format.SampleRate.D(pos)
}

// SetSpeed changes the rate of the loaded track and of every later one.
func (p *Player) SetSpeed(speed float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.speed = speed
	if p.resampler != nil {
		speaker.Lock()
		p.resampler.SetRatio(resampleRatio(p.format.SampleRate, p.sampleRate, speed))
		speaker.Unlock()
	}
	return nil
}

// SetVolume changes the level (0..1) of the loaded track and of every later one.
func (p *Player) SetVolume(level float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.level = level
	if p.volume != nil {
		exponent, silent := volumeLevel(level)
		speaker.Lock()
		p.volume.Volume = exponent
		p.volume.Silent = silent
		speaker.Unlock()
	}
	return nil
}

// Close stops playback and closes the speaker.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	if p.initialized {
		speaker.Close()
		p.initialized = false
	}
}
