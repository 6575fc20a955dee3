// Package queuetest provides an in-memory playback surface and resolver for
// tests of code built on the queue engine.
package queuetest

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLoad is returned by Player.Load for URIs marked as broken.
var ErrLoad = errors.New("queuetest: cannot load track")

// Player is a fake playback surface with a manual clock.
type Player struct {
	mu      sync.Mutex
	uri     string
	done    func(error)
	playing bool
	pos     time.Duration
	speed   float64
	volume  float64
	broken  map[string]bool
	loads   []string
}

// NewPlayer returns an empty fake player.
func NewPlayer() *Player {
	return &Player{speed: 1, volume: 1, broken: make(map[string]bool)}
}

// Break makes every later Load of uri fail.
func (p *Player) Break(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broken[uri] = true
}

func (p *Player) Load(uri string, done func(err error)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.loads = append(p.loads, uri)
	if p.broken[uri] {
		p.uri, p.done, p.playing, p.pos = "", nil, false, 0
		return ErrLoad
	}
	p.uri = uri
	p.done = done
	p.playing = false
	p.pos = 0
	return nil
}

func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uri == "" {
		return errors.New("queuetest: nothing loaded")
	}
	p.playing = true
	return nil
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
	return nil
}

// Stop halts and rewinds. Like a reset of a shared surface it also drops
// the loaded track.
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uri = ""
	p.done = nil
	p.playing = false
	p.pos = 0
	return nil
}

func (p *Player) Seek(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pos = d
	return nil
}

func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *Player) SetSpeed(speed float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speed = speed
	return nil
}

func (p *Player) SetVolume(volume float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
	return nil
}

// Advance moves the clock forward while playing.
func (p *Player) Advance(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		p.pos += d
	}
}

// Finish ends the loaded track naturally.
func (p *Player) Finish() {
	p.end(nil)
}

// Fault ends the loaded track with err.
func (p *Player) Fault(err error) {
	p.end(err)
}

func (p *Player) end(err error) {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.playing = false
	p.mu.Unlock()

	if done != nil {
		done(err)
	}
}

// URI returns the loaded track, empty if none.
func (p *Player) URI() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uri
}

// Playing reports whether the loaded track is audible.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Speed returns the last speed set.
func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// Volume returns the last volume set.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Loads returns every URI passed to Load, in order.
func (p *Player) Loads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.loads...)
}

// Resolver resolves "voice/path" keys from a map to "mem://voice/path".
type Resolver struct {
	mu    sync.Mutex
	known map[string]bool
	delay func(path string) time.Duration
	calls []string
}

// NewResolver returns a resolver that knows the given "voice/path" keys.
func NewResolver(keys ...string) *Resolver {
	r := &Resolver{known: make(map[string]bool)}
	for _, k := range keys {
		r.known[k] = true
	}
	return r
}

// Add makes voice/path resolvable.
func (r *Resolver) Add(voice, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known[voice+"/"+path] = true
}

// SetDelay makes every Resolve sleep for delay(path) first.
func (r *Resolver) SetDelay(delay func(path string) time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = delay
}

func (r *Resolver) Resolve(ctx context.Context, voice, path string) (string, bool) {
	key := voice + "/" + path

	r.mu.Lock()
	r.calls = append(r.calls, key)
	delay := r.delay
	ok := r.known[key]
	r.mu.Unlock()

	if delay != nil {
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(delay(path)):
		}
	}
	if !ok {
		return "", false
	}
	return URI(voice, path), true
}

// Calls returns every key passed to Resolve, in order.
func (r *Resolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// URI is what Resolver returns for voice/path.
func URI(voice, path string) string {
	return "mem://" + voice + "/" + path
}
