package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"rosary-audio/internal/audio"
	"rosary-audio/internal/config"
	"rosary-audio/internal/media"
	"rosary-audio/internal/preview"
	"rosary-audio/internal/queue"
	"rosary-audio/internal/resolver"
	"rosary-audio/internal/session"
	"rosary-audio/internal/store"
	"rosary-audio/internal/version"
	"rosary-audio/internal/web"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the playback service and its HTTP API",
		Long: `Run the playback service.

Configuration comes from ROSARY_* environment variables; ROSARY_AUDIO_DIR
is required.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := setupLogging(cfg.LogLevel)

	if err := os.MkdirAll(cfg.ConfigDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	// Initialize database
	db, err := store.New(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer db.Close()

	kvStore := store.NewKVStore(db)
	cacheStore := store.NewAudioCacheStore(db)

	// Reset downloads interrupted by the last shutdown
	count, err := cacheStore.ResetInProgressToPending()
	if err != nil {
		slog.Warn("failed to reset in-progress cache entries", "error", err)
	} else if count > 0 {
		slog.Info("reset stale cache entries", "count", count)
	}

	// Audio resolution: local voices first, then the remote cache
	files := resolver.NewFileResolver(cfg.AudioDir)
	chain := resolver.Chain{files}
	if cfg.RemoteAudioURL != "" {
		remote := resolver.NewRemoteResolver(cfg.RemoteAudioURL, cfg.AudioCacheDir(), cacheStore, cfg.ResolveTimeout)
		if removed, err := remote.CleanupTempFiles(); err != nil {
			slog.Warn("failed to cleanup temp files", "error", err)
		} else if removed > 0 {
			slog.Info("removed partial downloads", "count", removed)
		}
		chain = append(chain, remote)
	}

	player := audio.NewPlayer(cfg.SampleRate)
	defer player.Close()
	if !audio.Available {
		slog.Warn("built without audio output, playback is silent")
	}

	engine := queue.NewEngine(player, chain)
	coord := media.NewCoordinator()
	ctl := session.NewController(engine, coord, kvStore, session.Config{
		PersistDebounce: cfg.PersistDebounce,
	})
	previews := preview.NewPreviewer(engine, coord)

	// Create root context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := files.Start(ctx); err != nil {
		slog.Warn("audio directory watch disabled", "path", cfg.AudioDir, "error", err)
	}

	// Cold start: cue the saved session without playing it
	go func() {
		if ctl.Restore(ctx, session.Callbacks{}) {
			st := ctl.State()
			slog.Info("saved session ready to resume", "session_id", st.SessionID, "unit_id", st.CurrentUnitID)
		}
	}()

	// Setup HTTP router
	mux := http.NewServeMux()
	web.NewServer(ctl, coord, engine, previews, files, cfg.DefaultVoice).Routes(mux)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: web.Chain(mux,
			web.RequestIDMiddleware,
			web.LoggingMiddleware(logger),
			web.RecoverMiddleware(logger),
		),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // session start may download audio
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"version", version.Version,
			"port", cfg.Port,
			"audio_dir", cfg.AudioDir,
			"remote_audio", cfg.RemoteAudioURL != "",
			"audio_output", audio.Available,
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		slog.Error("server error", "error", err)
		return err
	}

	slog.Info("shutting down server")

	cancel()
	files.Stop()
	previews.Close()
	ctl.Close()
	if err := engine.Stop(); err != nil {
		slog.Warn("failed to stop playback", "error", err)
	}

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
