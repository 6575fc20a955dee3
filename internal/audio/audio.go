// Package audio is the playback surface the queue engine drives: a single
// loaded mp3 track with pause, seek, speed and volume.
package audio

import (
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
)

// DefaultSampleRate is the output rate tracks are resampled to.
const DefaultSampleRate = 44100

// openTrack decodes a local mp3 given as a path or file:// URI.
func openTrack(uri string) (beep.StreamSeekCloser, beep.Format, error) {
	path := strings.TrimPrefix(uri, "file://")

	f, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open track: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode track %s: %w", path, err)
	}
	return streamer, format, nil
}

// volumeLevel maps a linear 0..1 level to effects.Volume's base-2 exponent.
func volumeLevel(level float64) (exponent float64, silent bool) {
	if level <= 0 {
		return 0, true
	}
	return math.Log2(min(level, 1)), false
}

// resampleRatio is the beep.Resampler ratio that converts from the track's
// rate to the output rate at the given speed.
func resampleRatio(from, to beep.SampleRate, speed float64) float64 {
	return float64(from) / float64(to) * speed
}
