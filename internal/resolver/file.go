package resolver

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileResolver resolves recordings under <root>/<voice>/<path>.mp3. Lookups
// are cached, hits and misses alike, until the tree changes.
type FileResolver struct {
	root string

	mu    sync.RWMutex
	known map[string]string // voice/path -> file, "" if missing

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFileResolver creates a resolver for the voice directories under root.
func NewFileResolver(root string) *FileResolver {
	return &FileResolver{
		root:  root,
		known: make(map[string]string),
	}
}

func (r *FileResolver) Resolve(ctx context.Context, voice, logicalPath string) (string, bool) {
	if !validName(voice) || !validPath(logicalPath) {
		slog.Warn("rejected audio path", "voice", voice, "path", logicalPath)
		return "", false
	}
	key := voice + "/" + logicalPath

	r.mu.RLock()
	file, cached := r.known[key]
	r.mu.RUnlock()
	if cached {
		return file, file != ""
	}

	file = filepath.Join(r.root, voice, filepath.FromSlash(logicalPath)+Ext)
	info, err := os.Stat(file)
	if err != nil || info.IsDir() {
		file = ""
	}

	r.mu.Lock()
	r.known[key] = file
	r.mu.Unlock()

	return file, file != ""
}

// Invalidate drops every cached lookup.
func (r *FileResolver) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.known = make(map[string]string)
}

// Voices lists the voice directories under root.
func (r *FileResolver) Voices() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return nil, fmt.Errorf("read audio dir: %w", err)
	}

	var voices []string
	for _, e := range entries {
		if e.IsDir() && validName(e.Name()) {
			voices = append(voices, e.Name())
		}
	}
	sort.Strings(voices)
	return voices, nil
}

// Start watches the tree under root and invalidates the lookup cache on any
// change.
func (r *FileResolver) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}

	err = filepath.WalkDir(r.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(p)
		}
		return nil
	})
	if err != nil {
		watcher.Close()
		return fmt.Errorf("watch audio dir: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.watcher = watcher
	r.cancel = cancel

	r.wg.Add(1)
	go r.watchLoop(ctx)

	slog.Info("watching audio directory", "path", r.root)
	return nil
}

// Stop stops watching.
func (r *FileResolver) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.watcher.Close()
	r.cancel = nil
}

func (r *FileResolver) watchLoop(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := r.watcher.Add(event.Name); err != nil {
						slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
					}
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				slog.Debug("audio tree changed", "path", event.Name, "op", event.Op.String())
				r.Invalidate()
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("audio watcher error", "error", err)
		}
	}
}
