package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"rosary-audio/internal/store"
)

func setupTestDB(t *testing.T) *store.AudioCacheStore {
	t.Helper()

	db, err := store.New(filepath.Join(t.TempDir(), "rosary_test.db"))
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return store.NewAudioCacheStore(db)
}

func writeRecording(t *testing.T, root, voice, path string) string {
	t.Helper()
	file := filepath.Join(root, voice, filepath.FromSlash(path)+Ext)
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(file, []byte("ID3"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return file
}

func TestValidPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"prayers/creed", true},
		{"mysteries/joyful/1", true},
		{"", false},
		{"/etc/passwd", false},
		{"../secret", false},
		{"prayers/../../secret", false},
		{"prayers//creed", false},
		{`prayers\creed`, false},
		{".", false},
	}

	for _, tt := range tests {
		if got := validPath(tt.path); got != tt.want {
			t.Errorf("validPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFileResolver_Resolve(t *testing.T) {
	root := t.TempDir()
	file := writeRecording(t, root, "female", "prayers/creed")

	r := NewFileResolver(root)

	uri, ok := r.Resolve(context.Background(), "female", "prayers/creed")
	if !ok || uri != file {
		t.Errorf("expected %s, got %q (%v)", file, uri, ok)
	}

	if _, ok := r.Resolve(context.Background(), "male", "prayers/creed"); ok {
		t.Error("expected miss for other voice")
	}
	if _, ok := r.Resolve(context.Background(), "female", "../female/prayers/creed"); ok {
		t.Error("expected traversal to be rejected")
	}
	if _, ok := r.Resolve(context.Background(), "..", "prayers/creed"); ok {
		t.Error("expected bad voice to be rejected")
	}
}

func TestFileResolver_CachesUntilInvalidated(t *testing.T) {
	root := t.TempDir()
	r := NewFileResolver(root)

	if _, ok := r.Resolve(context.Background(), "female", "prayers/glory"); ok {
		t.Fatal("expected miss before file exists")
	}

	writeRecording(t, root, "female", "prayers/glory")

	if _, ok := r.Resolve(context.Background(), "female", "prayers/glory"); ok {
		t.Error("expected cached miss")
	}

	r.Invalidate()

	if _, ok := r.Resolve(context.Background(), "female", "prayers/glory"); !ok {
		t.Error("expected hit after invalidation")
	}
}

func TestFileResolver_WatchInvalidates(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "female", "prayers"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	r := NewFileResolver(root)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer r.Stop()

	if _, ok := r.Resolve(context.Background(), "female", "prayers/hail"); ok {
		t.Fatal("expected miss before file exists")
	}

	writeRecording(t, root, "female", "prayers/hail")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := r.Resolve(context.Background(), "female", "prayers/hail"); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("expected watcher to invalidate the cached miss")
}

func TestFileResolver_Voices(t *testing.T) {
	root := t.TempDir()
	writeRecording(t, root, "male", "a")
	writeRecording(t, root, "female", "a")
	os.WriteFile(filepath.Join(root, "README"), []byte("x"), 0644)

	voices, err := NewFileResolver(root).Voices()
	if err != nil {
		t.Fatalf("failed to list voices: %v", err)
	}
	if len(voices) != 2 || voices[0] != "female" || voices[1] != "male" {
		t.Errorf("expected [female male], got %v", voices)
	}
}

func newAudioServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

func TestRemoteResolver_DownloadsOnce(t *testing.T) {
	server, hits := newAudioServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/female/prayers/creed.mp3" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte("mp3-bytes"))
	})

	entries := setupTestDB(t)
	cacheDir := t.TempDir()
	r := NewRemoteResolver(server.URL, cacheDir, entries, time.Second).WithRetries(0, 0)

	uri, ok := r.Resolve(context.Background(), "female", "prayers/creed")
	if !ok {
		t.Fatal("expected download to succeed")
	}
	want := filepath.Join(cacheDir, "female", "prayers", "creed.mp3")
	if uri != want {
		t.Errorf("expected %s, got %s", want, uri)
	}
	data, err := os.ReadFile(uri)
	if err != nil || string(data) != "mp3-bytes" {
		t.Errorf("unexpected cached content %q: %v", data, err)
	}

	entry, _ := entries.Get("female", "prayers/creed")
	if entry == nil || entry.Status != store.CacheStatusReady {
		t.Fatalf("expected ready entry, got %+v", entry)
	}
	if entry.SizeBytes != 9 || entry.ETag != `"v1"` {
		t.Errorf("unexpected size/etag: %d %s", entry.SizeBytes, entry.ETag)
	}

	if _, ok := r.Resolve(context.Background(), "female", "prayers/creed"); !ok {
		t.Fatal("expected cached hit")
	}
	if hits.Load() != 1 {
		t.Errorf("expected 1 request, got %d", hits.Load())
	}
}

func TestRemoteResolver_NotFound(t *testing.T) {
	server, hits := newAudioServer(t, http.NotFound)

	entries := setupTestDB(t)
	r := NewRemoteResolver(server.URL, t.TempDir(), entries, time.Second).WithRetries(2, time.Millisecond)

	if _, ok := r.Resolve(context.Background(), "female", "mysteries/none"); ok {
		t.Fatal("expected miss on 404")
	}
	if hits.Load() != 1 {
		t.Errorf("404 should not be retried, got %d requests", hits.Load())
	}

	entry, _ := entries.Get("female", "mysteries/none")
	if entry == nil || entry.Status != store.CacheStatusFailed {
		t.Errorf("expected failed entry, got %+v", entry)
	}
}

func TestRemoteResolver_RemembersNotFound(t *testing.T) {
	server, hits := newAudioServer(t, http.NotFound)

	r := NewRemoteResolver(server.URL, t.TempDir(), setupTestDB(t), time.Second).WithRetries(0, 0)

	for i := 0; i < 3; i++ {
		if _, ok := r.Resolve(context.Background(), "female", "mysteries/none"); ok {
			t.Fatal("expected miss on 404")
		}
	}
	if hits.Load() != 1 {
		t.Errorf("expected the 404 to be remembered, got %d requests", hits.Load())
	}
}

func TestRemoteResolver_NotFoundTTLDisabled(t *testing.T) {
	server, hits := newAudioServer(t, http.NotFound)

	r := NewRemoteResolver(server.URL, t.TempDir(), setupTestDB(t), time.Second).
		WithRetries(0, 0).
		WithNotFoundTTL(0)

	r.Resolve(context.Background(), "female", "mysteries/none")
	r.Resolve(context.Background(), "female", "mysteries/none")
	if hits.Load() != 2 {
		t.Errorf("expected every resolve to ask again, got %d requests", hits.Load())
	}
}

func TestRemoteResolver_ServerErrorsNotRemembered(t *testing.T) {
	server, hits := newAudioServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	r := NewRemoteResolver(server.URL, t.TempDir(), setupTestDB(t), time.Second).WithRetries(0, 0)

	r.Resolve(context.Background(), "female", "prayers/creed")
	r.Resolve(context.Background(), "female", "prayers/creed")
	if hits.Load() != 2 {
		t.Errorf("expected a transient failure to be retried on the next resolve, got %d requests", hits.Load())
	}
}

func TestRemoteResolver_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server, _ := newAudioServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok"))
	})

	r := NewRemoteResolver(server.URL, t.TempDir(), setupTestDB(t), time.Second).WithRetries(2, time.Millisecond)

	if _, ok := r.Resolve(context.Background(), "female", "prayers/creed"); !ok {
		t.Fatal("expected success on third attempt")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestRemoteResolver_GivesUpAfterRetries(t *testing.T) {
	server, hits := newAudioServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	entries := setupTestDB(t)
	r := NewRemoteResolver(server.URL, t.TempDir(), entries, time.Second).WithRetries(1, time.Millisecond)

	if _, ok := r.Resolve(context.Background(), "female", "prayers/creed"); ok {
		t.Fatal("expected failure")
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", hits.Load())
	}

	entry, _ := entries.Get("female", "prayers/creed")
	if entry == nil || entry.Status != store.CacheStatusFailed || entry.ErrorText == "" {
		t.Errorf("expected failed entry with error text, got %+v", entry)
	}
}

func TestRemoteResolver_RedownloadsMissingFile(t *testing.T) {
	server, hits := newAudioServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	})

	r := NewRemoteResolver(server.URL, t.TempDir(), setupTestDB(t), time.Second).WithRetries(0, 0)

	uri, ok := r.Resolve(context.Background(), "male", "prayers/creed")
	if !ok {
		t.Fatal("expected download")
	}
	os.Remove(uri)

	if _, ok := r.Resolve(context.Background(), "male", "prayers/creed"); !ok {
		t.Fatal("expected second download")
	}
	if hits.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", hits.Load())
	}
}

func TestRemoteResolver_CanceledContext(t *testing.T) {
	server, _ := newAudioServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	r := NewRemoteResolver(server.URL, t.TempDir(), setupTestDB(t), time.Second).WithRetries(5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	done := make(chan bool)
	go func() {
		_, ok := r.Resolve(ctx, "female", "prayers/creed")
		done <- ok
	}()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected miss after cancellation")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resolve did not return after cancellation")
	}
}

func TestRemoteResolver_CleanupTempFiles(t *testing.T) {
	cacheDir := t.TempDir()
	keep := writeRecording(t, cacheDir, "female", "prayers/creed")
	partial := filepath.Join(filepath.Dir(keep), ".download-123")
	os.WriteFile(partial, []byte("half"), 0644)

	r := NewRemoteResolver("http://unused", cacheDir, setupTestDB(t), time.Second)
	removed, err := r.CleanupTempFiles()
	if err != nil {
		t.Fatalf("cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 file removed, got %d", removed)
	}
	if _, err := os.Stat(partial); !os.IsNotExist(err) {
		t.Error("expected partial download removed")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("expected finished recording kept")
	}

	missing := NewRemoteResolver("http://unused", filepath.Join(cacheDir, "absent"), setupTestDB(t), time.Second)
	if _, err := missing.CleanupTempFiles(); err != nil {
		t.Errorf("cleanup of a missing dir should not fail: %v", err)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errNotFound, false},
		{fmt.Errorf("wrapped: %w", errNotFound), false},
		{&serverError{StatusCode: 502}, true},
		{errors.New("dial tcp: connection refused"), true},
		{errors.New("unexpected status code: 403"), false},
	}

	for _, tt := range tests {
		if got := isRetryableError(tt.err); got != tt.want {
			t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

type stubResolver map[string]string

func (s stubResolver) Resolve(_ context.Context, voice, path string) (string, bool) {
	uri, ok := s[voice+"/"+path]
	return uri, ok
}

func TestChain(t *testing.T) {
	chain := Chain{
		stubResolver{"female/a": "local-a"},
		stubResolver{"female/a": "remote-a", "female/b": "remote-b"},
	}

	if uri, _ := chain.Resolve(context.Background(), "female", "a"); uri != "local-a" {
		t.Errorf("expected first resolver to win, got %s", uri)
	}
	if uri, _ := chain.Resolve(context.Background(), "female", "b"); uri != "remote-b" {
		t.Errorf("expected fallback, got %s", uri)
	}
	if _, ok := chain.Resolve(context.Background(), "female", "c"); ok {
		t.Error("expected miss")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := chain.Resolve(ctx, "female", "a"); ok {
		t.Error("expected miss on canceled context")
	}
}
