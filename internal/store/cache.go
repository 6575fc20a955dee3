package store

import (
	"database/sql"
	"errors"
	"time"
)

// CacheStatus represents the status of a cache entry.
type CacheStatus string

const (
	CacheStatusPending    CacheStatus = "pending"
	CacheStatusInProgress CacheStatus = "in_progress"
	CacheStatusReady      CacheStatus = "ready"
	CacheStatusFailed     CacheStatus = "failed"
)

// AudioEntry is one downloaded recording, keyed by voice and logical path.
type AudioEntry struct {
	Voice     string
	Path      string
	SourceURL string
	CachePath string
	SizeBytes int64
	ETag      string
	Status    CacheStatus
	ErrorText string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AudioCacheStore provides CRUD operations for the audio cache index.
type AudioCacheStore struct {
	db *sql.DB
}

// NewAudioCacheStore creates a new audio cache store.
func NewAudioCacheStore(db *DB) *AudioCacheStore {
	return &AudioCacheStore{db: db.Conn()}
}

const audioColumns = `voice, path, source_url, cache_path, size_bytes, etag, status, error_text, created_at, updated_at`

// Upsert inserts an entry or resets an existing one to the entry's status.
func (s *AudioCacheStore) Upsert(entry *AudioEntry) error {
	query := `
		INSERT INTO audio_cache (` + audioColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(voice, path) DO UPDATE SET
			source_url = excluded.source_url,
			cache_path = excluded.cache_path,
			status = excluded.status,
			error_text = excluded.error_text,
			updated_at = excluded.updated_at
	`
	status := entry.Status
	if status == "" {
		status = CacheStatusPending
	}
	now := time.Now().Unix()
	_, err := s.db.Exec(query,
		entry.Voice,
		entry.Path,
		entry.SourceURL,
		entry.CachePath,
		entry.SizeBytes,
		entry.ETag,
		string(status),
		entry.ErrorText,
		now,
		now,
	)
	return err
}

// Get retrieves an entry, nil if there is none.
func (s *AudioCacheStore) Get(voice, path string) (*AudioEntry, error) {
	query := `SELECT ` + audioColumns + ` FROM audio_cache WHERE voice = ? AND path = ?`
	entry, err := scanAudioEntry(s.db.QueryRow(query, voice, path))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

// UpdateStatus updates the status of an entry.
func (s *AudioCacheStore) UpdateStatus(voice, path string, status CacheStatus, errorText string) error {
	query := `UPDATE audio_cache SET status = ?, error_text = ?, updated_at = ? WHERE voice = ? AND path = ?`
	_, err := s.db.Exec(query, string(status), errorText, time.Now().Unix(), voice, path)
	return err
}

// MarkInProgress marks an entry as downloading.
func (s *AudioCacheStore) MarkInProgress(voice, path string) error {
	return s.UpdateStatus(voice, path, CacheStatusInProgress, "")
}

// MarkReady marks an entry as downloaded.
func (s *AudioCacheStore) MarkReady(voice, path string, sizeBytes int64, etag string) error {
	query := `UPDATE audio_cache SET status = ?, size_bytes = ?, etag = ?, error_text = '', updated_at = ? WHERE voice = ? AND path = ?`
	_, err := s.db.Exec(query, string(CacheStatusReady), sizeBytes, etag, time.Now().Unix(), voice, path)
	return err
}

// MarkFailed marks an entry as failed with an error message.
func (s *AudioCacheStore) MarkFailed(voice, path, errorText string) error {
	return s.UpdateStatus(voice, path, CacheStatusFailed, errorText)
}

// Delete removes an entry.
func (s *AudioCacheStore) Delete(voice, path string) error {
	_, err := s.db.Exec(`DELETE FROM audio_cache WHERE voice = ? AND path = ?`, voice, path)
	return err
}

// ListByStatus returns all entries with the given status.
func (s *AudioCacheStore) ListByStatus(status CacheStatus) ([]*AudioEntry, error) {
	query := `SELECT ` + audioColumns + ` FROM audio_cache WHERE status = ? ORDER BY voice, path`
	rows, err := s.db.Query(query, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AudioEntry
	for rows.Next() {
		entry, err := scanAudioEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ResetInProgressToPending resets interrupted downloads (used on startup).
func (s *AudioCacheStore) ResetInProgressToPending() (int64, error) {
	query := `UPDATE audio_cache SET status = ? WHERE status = ?`
	result, err := s.db.Exec(query, string(CacheStatusPending), string(CacheStatusInProgress))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// TotalSize returns the number of ready entries and their combined size.
func (s *AudioCacheStore) TotalSize() (count int, sizeBytes int64, err error) {
	query := `SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM audio_cache WHERE status = ?`
	err = s.db.QueryRow(query, string(CacheStatusReady)).Scan(&count, &sizeBytes)
	return count, sizeBytes, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAudioEntry(row scanner) (*AudioEntry, error) {
	var entry AudioEntry
	var createdAt, updatedAt int64
	var etag, errorText sql.NullString
	var status string

	err := row.Scan(
		&entry.Voice,
		&entry.Path,
		&entry.SourceURL,
		&entry.CachePath,
		&entry.SizeBytes,
		&etag,
		&status,
		&errorText,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Status = CacheStatus(status)
	entry.ETag = etag.String
	entry.ErrorText = errorText.String
	entry.CreatedAt = time.Unix(createdAt, 0)
	entry.UpdatedAt = time.Unix(updatedAt, 0)
	return &entry, nil
}
