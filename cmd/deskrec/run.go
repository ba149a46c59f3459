package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"deskrec/internal/config"
	"deskrec/internal/control"
	"deskrec/internal/logging"
	"deskrec/internal/platform"
	"deskrec/internal/recorder"
	"deskrec/internal/store"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Record until stopped by signal, stop flag or Ctrl+C",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRecorder(ctx, opts.paths(), platform.New)
		},
	}
}

type platformFactory func(*slog.Logger, platform.Options) (*platform.Platform, error)

func loggingConfig(cfg *config.Config, paths control.Paths) (*logging.Config, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = cfg.Logging.Output
	lc.FilePath = paths.Log()
	lc.MaxSize = int64(cfg.Logging.MaxSizeMB)
	lc.MaxBackups = cfg.Logging.MaxBackups
	return lc, nil
}

// runRecorder owns one recording session from lock to cleanup.
func runRecorder(ctx context.Context, paths control.Paths, newPlatform platformFactory) error {
	if err := paths.Ensure(); err != nil {
		return err
	}
	loader := config.NewLoader(paths.Config())
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	lc, err := loggingConfig(cfg, paths)
	if err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	logger, err := logging.New(lc)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logger.Close()
	log := logger.WithComponent("main")

	crash := logging.NewCrashHandler(paths.Crashes(), version, logger.Logger)
	defer crash.Recover("main")

	pid := os.Getpid()
	now := time.Now()
	sessionID := uuid.NewString()
	lock := control.Lock{
		SessionID:    sessionID,
		PID:          pid,
		StartWallMs:  now.UnixMilli(),
		StartWallISO: now.Format(time.RFC3339Nano),
	}
	if err := control.AcquireLock(paths, lock); err != nil {
		if errors.Is(err, control.ErrAlreadyRunning) {
			log.Error("another recorder holds the lock", "lock", paths.Lock())
		}
		return err
	}
	defer func() {
		if err := control.Cleanup(paths, pid); err != nil {
			log.Warn("remove control files", "error", err)
		}
	}()

	st, err := store.Open(paths.Database())
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}

	plat, err := newPlatform(logger.Logger, platform.Options{WindowEvents: cfg.Window.EventHooks})
	if err != nil {
		st.Close()
		return fmt.Errorf("platform bindings: %w", err)
	}
	defer plat.Close()

	rec, err := recorder.New(recorder.Options{
		Config:    cfg,
		Platform:  plat,
		Sink:      st,
		Paths:     paths,
		Logger:    logger.Logger,
		Crash:     crash,
		SessionID: sessionID,
		Version:   version,
	})
	if err != nil {
		st.Close()
		return err
	}

	watcher := control.NewWatcher(paths, cfg.Control.Poll(), control.Handler{
		Stop:   func() { rec.Stop("stop_signal") },
		Pause:  rec.Pause,
		Resume: rec.Resume,
		Reload: func() {
			next, err := loader.Reload()
			if err != nil {
				log.Error("reload rejected, keeping previous configuration", "error", err)
				return
			}
			rec.Reload(next)
		},
	}, logger.Logger)
	defer watcher.Stop()

	log.Info("starting recorder", "session", sessionID, "data_dir", paths.Dir, "version", version)
	errc := make(chan error, 1)
	go func() { errc <- rec.Run(ctx) }()

	select {
	case <-rec.Ready():
		if err := watcher.Start(ctx); err != nil {
			log.Error("start control watcher", "error", err)
			rec.Shutdown("control_failure")
		}
		err = <-errc
	case err = <-errc:
	}
	if err != nil {
		log.Error("recorder failed", "error", err)
		return err
	}
	return nil
}
