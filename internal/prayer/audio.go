package prayer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// CompositeDelimiter separates logical paths in the string form of a
// composite audio reference.
const CompositeDelimiter = "|"

// RefKind is the shape of a unit's audio reference.
type RefKind int

const (
	// RefNone means the unit is displayed but never spoken.
	RefNone RefKind = iota
	// RefSingle is one logical path.
	RefSingle
	// RefPair is the doxology followed by its seasonal acclamation. The
	// second path is empty when the acclamation is omitted.
	RefPair
	// RefComposite is an arbitrary ordered list of logical paths.
	RefComposite
)

var refKindNames = []string{
	RefNone:      "none",
	RefSingle:    "single",
	RefPair:      "pair",
	RefComposite: "composite",
}

func (k RefKind) String() string {
	if k < 0 || int(k) >= len(refKindNames) {
		return fmt.Sprintf("ref(%d)", int(k))
	}
	return refKindNames[k]
}

// AudioRef points at the recording(s) that speak a unit.
type AudioRef struct {
	Kind  RefKind
	paths []string
}

// NoAudio returns a reference with nothing to play.
func NoAudio() AudioRef {
	return AudioRef{Kind: RefNone}
}

// Single returns a reference to one recording. An empty path yields NoAudio.
func Single(path string) AudioRef {
	if path == "" {
		return NoAudio()
	}
	return AudioRef{Kind: RefSingle, paths: []string{path}}
}

// Pair returns the structural doxology pair. second may be empty.
func Pair(first, second string) AudioRef {
	return AudioRef{Kind: RefPair, paths: []string{first, second}}
}

// Composite returns a reference to several recordings played in order.
func Composite(paths ...string) AudioRef {
	paths = lo.Compact(paths)
	if len(paths) == 0 {
		return NoAudio()
	}
	return AudioRef{Kind: RefComposite, paths: paths}
}

// ParseAudioRef converts the delimited string form back into a reference.
// Pairs have no string form of their own and parse as composites.
func ParseAudioRef(s string) AudioRef {
	s = strings.TrimSpace(s)
	if s == "" {
		return NoAudio()
	}
	if strings.Contains(s, CompositeDelimiter) {
		return Composite(lo.Map(strings.Split(s, CompositeDelimiter), func(p string, _ int) string {
			return strings.TrimSpace(p)
		})...)
	}
	return Single(s)
}

// Segments returns the logical paths to resolve, in playback order.
func (r AudioRef) Segments() []string {
	return lo.Compact(r.paths)
}

func (r AudioRef) String() string {
	return strings.Join(r.Segments(), CompositeDelimiter)
}

type audioRefJSON struct {
	Kind  string   `json:"kind"`
	Paths []string `json:"paths,omitempty"`
}

func (r AudioRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(audioRefJSON{Kind: r.Kind.String(), Paths: r.paths})
}

func (r *AudioRef) UnmarshalJSON(b []byte) error {
	var raw audioRefJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	kind, err := parseName(refKindNames, raw.Kind, "audio reference kind")
	if err != nil {
		return err
	}

	switch RefKind(kind) {
	case RefNone:
		*r = NoAudio()
	case RefSingle:
		if len(raw.Paths) != 1 {
			return fmt.Errorf("single audio reference needs 1 path, got %d", len(raw.Paths))
		}
		*r = Single(raw.Paths[0])
	case RefPair:
		if len(raw.Paths) != 2 {
			return fmt.Errorf("paired audio reference needs 2 paths, got %d", len(raw.Paths))
		}
		*r = Pair(raw.Paths[0], raw.Paths[1])
	case RefComposite:
		*r = Composite(raw.Paths...)
	}
	return nil
}
