// Package resolver maps a voice and a logical audio path to a playable
// local file, from voice directories on disk or downloaded into a cache.
package resolver

import (
	"context"
	"path"
	"strings"

	"rosary-audio/internal/queue"
)

// Ext is the extension of every recording.
const Ext = ".mp3"

// Chain tries resolvers in order and returns the first hit.
type Chain []queue.Resolver

func (c Chain) Resolve(ctx context.Context, voice, logicalPath string) (string, bool) {
	for _, r := range c {
		if ctx.Err() != nil {
			return "", false
		}
		if uri, ok := r.Resolve(ctx, voice, logicalPath); ok {
			return uri, true
		}
	}
	return "", false
}

// validName reports whether voice is a single path element.
func validName(voice string) bool {
	return voice != "" && voice != "." && voice != ".." &&
		!strings.ContainsAny(voice, `/\`)
}

// validPath reports whether p is a relative, slash-separated path that stays
// inside its voice directory.
func validPath(p string) bool {
	if p == "" || strings.Contains(p, `\`) || strings.HasPrefix(p, "/") {
		return false
	}
	clean := path.Clean(p)
	return clean == p && clean != "." && clean != ".." && !strings.HasPrefix(clean, "../")
}
