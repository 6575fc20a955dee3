package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"rosary-audio/internal/store"
)

// tempPattern names partial downloads inside the cache directory.
const tempPattern = ".download-*"

const (
	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultConnectTimeout is the default connection timeout.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultMaxRetries is the default number of retry attempts.
	DefaultMaxRetries = 2
	// DefaultRetryDelay is the base delay between retries.
	DefaultRetryDelay = 500 * time.Millisecond
	// DefaultNotFoundTTL is how long a 404 is remembered before asking again.
	DefaultNotFoundTTL = 10 * time.Minute
)

var errNotFound = errors.New("recording not found")

// RemoteResolver downloads <base>/<voice>/<path>.mp3 into
// <cacheDir>/<voice>/<path>.mp3 and tracks downloads in the audio cache
// index. A ready entry whose file is still on disk costs no network I/O,
// and neither does a recording the server reported missing recently.
type RemoteResolver struct {
	baseURL     string
	cacheDir    string
	entries     *store.AudioCacheStore
	httpClient  *http.Client
	maxRetries  int
	retryDelay  time.Duration
	notFoundTTL time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRemoteResolver creates a resolver. timeout bounds each request;
// zero means DefaultTimeout.
func NewRemoteResolver(baseURL, cacheDir string, entries *store.AudioCacheStore, timeout time.Duration) *RemoteResolver {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RemoteResolver{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		cacheDir: cacheDir,
		entries:  entries,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   min(timeout/3, DefaultConnectTimeout),
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          10,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: timeout / 2,
			},
		},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		notFoundTTL: DefaultNotFoundTTL,
		locks:       make(map[string]*sync.Mutex),
	}
}

// WithRetries sets custom retry settings.
func (r *RemoteResolver) WithRetries(maxRetries int, retryDelay time.Duration) *RemoteResolver {
	r.maxRetries = maxRetries
	r.retryDelay = retryDelay
	return r
}

// WithNotFoundTTL sets how long a 404 is remembered; zero always asks again.
func (r *RemoteResolver) WithNotFoundTTL(ttl time.Duration) *RemoteResolver {
	r.notFoundTTL = ttl
	return r
}

func (r *RemoteResolver) Resolve(ctx context.Context, voice, logicalPath string) (string, bool) {
	if !validName(voice) || !validPath(logicalPath) {
		slog.Warn("rejected audio path", "voice", voice, "path", logicalPath)
		return "", false
	}

	// One download per recording at a time.
	lock := r.lock(voice + "/" + logicalPath)
	lock.Lock()
	defer lock.Unlock()

	dest := filepath.Join(r.cacheDir, voice, filepath.FromSlash(logicalPath)+Ext)

	entry, err := r.entries.Get(voice, logicalPath)
	if err != nil {
		slog.Warn("audio cache lookup failed", "voice", voice, "path", logicalPath, "error", err)
	}
	if entry != nil && entry.Status == store.CacheStatusReady {
		if _, err := os.Stat(entry.CachePath); err == nil {
			return entry.CachePath, true
		}
		slog.Info("cached recording missing on disk, downloading again", "path", entry.CachePath)
	}
	if r.recentlyNotFound(entry) {
		return "", false
	}

	source := r.sourceURL(voice, logicalPath)
	if err := r.entries.Upsert(&store.AudioEntry{
		Voice:     voice,
		Path:      logicalPath,
		SourceURL: source,
		CachePath: dest,
		Status:    store.CacheStatusInProgress,
	}); err != nil {
		slog.Warn("audio cache update failed", "voice", voice, "path", logicalPath, "error", err)
	}

	size, etag, err := r.download(ctx, source, dest)
	if err != nil {
		if markErr := r.entries.MarkFailed(voice, logicalPath, err.Error()); markErr != nil {
			slog.Warn("audio cache update failed", "voice", voice, "path", logicalPath, "error", markErr)
		}
		slog.Warn("audio download failed", "voice", voice, "path", logicalPath, "url", source, "error", err)
		return "", false
	}

	if err := r.entries.MarkReady(voice, logicalPath, size, etag); err != nil {
		slog.Warn("audio cache update failed", "voice", voice, "path", logicalPath, "error", err)
	}
	slog.Debug("audio downloaded", "voice", voice, "path", logicalPath, "size_bytes", size)
	return dest, true
}

// CleanupTempFiles removes partial downloads left by an interrupted run.
func (r *RemoteResolver) CleanupTempFiles() (int, error) {
	removed := 0
	err := filepath.WalkDir(r.cacheDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(tempPattern, d.Name()); ok {
			if err := os.Remove(p); err == nil {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

func (r *RemoteResolver) recentlyNotFound(entry *store.AudioEntry) bool {
	return entry != nil &&
		r.notFoundTTL > 0 &&
		entry.Status == store.CacheStatusFailed &&
		entry.ErrorText == errNotFound.Error() &&
		time.Since(entry.UpdatedAt) < r.notFoundTTL
}

func (r *RemoteResolver) lock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

func (r *RemoteResolver) sourceURL(voice, logicalPath string) string {
	segments := strings.Split(logicalPath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return r.baseURL + "/" + url.PathEscape(voice) + "/" + strings.Join(segments, "/") + Ext
}

// download fetches source into dest with retry logic.
func (r *RemoteResolver) download(ctx context.Context, source, dest string) (int64, string, error) {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, "", ctx.Err()
			case <-time.After(r.retryDelay * time.Duration(attempt)):
			}
		}

		size, etag, err := r.doDownload(ctx, source, dest)
		if err == nil {
			return size, etag, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return 0, "", ctx.Err()
		}
		if !isRetryableError(err) {
			return 0, "", err
		}
	}

	return 0, "", fmt.Errorf("download failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

// doDownload performs a single GET and writes the body to dest through a
// temporary file in the same directory.
func (r *RemoteResolver) doDownload(ctx context.Context, source, dest string) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, "", errNotFound
	}
	if resp.StatusCode >= 500 {
		return 0, "", &serverError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, "", fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), tempPattern)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, "", fmt.Errorf("failed to write recording: %w", err)
	}

	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, "", fmt.Errorf("failed to move recording into cache: %w", err)
	}

	return size, resp.Header.Get("ETag"), nil
}

// serverError represents a server-side error.
type serverError struct {
	StatusCode int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error: %d", e.StatusCode)
}

// isRetryableError checks if an error is transient and should be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, errNotFound) {
		return false
	}

	var srvErr *serverError
	if errors.As(err, &srvErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errStr := strings.ToLower(err.Error())
	for _, msg := range []string{
		"connection refused",
		"connection reset",
		"no route to host",
		"network is unreachable",
		"i/o timeout",
		"eof",
	} {
		if strings.Contains(errStr, msg) {
			return true
		}
	}

	return false
}
