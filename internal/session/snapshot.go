package session

import (
	"encoding/json"
	"fmt"
	"time"

	"rosary-audio/internal/prayer"
)

// SnapshotKey is the store key of the resumable session.
const SnapshotKey = "rosary.session.v1"

const snapshotVersion = 1

// Snapshot is the persisted, resumable part of a session.
type Snapshot struct {
	Version    int             `json:"version"`
	SessionID  string          `json:"session_id"`
	Units      []prayer.Unit   `json:"units"`
	Settings   prayer.Settings `json:"settings"`
	LastUnitID string          `json:"last_unit_id"`
	Speed      float64         `json:"speed"`
	SavedAt    time.Time       `json:"saved_at"`
}

func encodeSnapshot(s *Snapshot) ([]byte, error) {
	s.Version = snapshotVersion
	return json.Marshal(s)
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	if len(s.Units) == 0 {
		return nil, fmt.Errorf("snapshot has no units")
	}
	return &s, nil
}
