// Package preview plays a single recording in a chosen voice on the shared
// playback surface, as its own media channel.
package preview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"rosary-audio/internal/media"
	"rosary-audio/internal/prayer"
	"rosary-audio/internal/queue"
)

// Channel is the coordinator channel previews play under.
const Channel = "voice-preview"

// Previewer owns the preview channel.
type Previewer struct {
	engine *queue.Engine
	coord  *media.Coordinator

	mu    sync.Mutex
	runID string

	unsubscribe func()
}

// NewPreviewer registers the preview channel with coord.
func NewPreviewer(engine *queue.Engine, coord *media.Coordinator) *Previewer {
	p := &Previewer{engine: engine, coord: coord}
	p.unsubscribe = engine.Subscribe(p.onEngineEvent)
	coord.Register(Channel, media.Handlers{
		Play:  p.whenActive(engine.Play),
		Pause: p.whenActive(engine.Pause),
		Stop:  p.Stop,
	})
	return p
}

// Close detaches the previewer from the engine and coordinator.
func (p *Previewer) Close() {
	p.unsubscribe()
	p.coord.Unregister(Channel)
}

// Preview claims the channel, which interrupts any other channel, and
// plays logicalPath in voice. It returns the run ID.
func (p *Previewer) Preview(ctx context.Context, voice, logicalPath string) (string, error) {
	if voice == "" || logicalPath == "" {
		return "", errors.New("voice and path are required")
	}

	runID := uuid.NewString()
	p.mu.Lock()
	p.runID = runID
	p.mu.Unlock()

	p.coord.Claim(Channel)

	unit := prayer.Unit{
		ID:    "preview-" + runID,
		Title: "Voice preview",
		Audio: prayer.Single(logicalPath),
	}
	if _, err := p.engine.BuildQueue(ctx, voice, []prayer.Unit{unit}); err != nil {
		p.finish(runID)
		return "", fmt.Errorf("build preview: %w", err)
	}
	if err := p.engine.Play(); err != nil {
		p.finish(runID)
		return "", fmt.Errorf("play preview: %w", err)
	}

	slog.Info("voice preview started", "run_id", runID, "voice", voice, "path", logicalPath)
	return runID, nil
}

// Stop ends a running preview. It is a no-op when the channel is not held.
func (p *Previewer) Stop() error {
	if !p.coord.IsActive(Channel) {
		return nil
	}
	if err := p.engine.Stop(); err != nil {
		return err
	}
	p.coord.Release(Channel)
	return nil
}

// Active reports whether a preview holds the playback surface.
func (p *Previewer) Active() bool {
	return p.coord.IsActive(Channel)
}

func (p *Previewer) whenActive(fn func() error) func() error {
	return func() error {
		if !p.coord.IsActive(Channel) {
			return nil
		}
		return fn()
	}
}

// finish releases the channel if runID is still the latest preview.
func (p *Previewer) finish(runID string) {
	p.mu.Lock()
	latest := p.runID == runID
	p.mu.Unlock()
	if latest {
		p.coord.Release(Channel)
	}
}

func (p *Previewer) onEngineEvent(ev queue.Event) {
	if ev.Type != queue.EventQueueComplete || !p.coord.IsActive(Channel) {
		return
	}
	p.mu.Lock()
	runID := p.runID
	p.mu.Unlock()

	slog.Info("voice preview finished", "run_id", runID)
	p.coord.Release(Channel)
}
