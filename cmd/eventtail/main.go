package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/eglc_companion/internal/broadcast"
	"github.com/dgnsrekt/eglc_companion/internal/config"
	"github.com/dgnsrekt/eglc_companion/internal/eventlog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	minBackoff = 500 * time.Millisecond
	maxBackoff = 15 * time.Second
)

func main() {
	cfg, err := config.LoadTail()
	if err != nil {
		slog.Error("failed to load eventtail config", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll("logs", 0o755); err != nil {
		slog.Debug("log directory creation failed", "error", err)
	}
	logWriter := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}
	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	// Events go to stdout; logs go to stderr and the file.
	handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, logWriter), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var rec *eventlog.Recorder
	if cfg.RecordDir != "" {
		rec = eventlog.NewRecorder(cfg.RecordDir, cfg.RecordName, 256, cfg.RecordMaxMB)
		defer func() {
			if err := rec.Close(); err != nil {
				slog.Warn("event log close failed", "error", err)
			}
		}()
	}

	url := cfg.StreamURL()
	slog.Info("eventtail starting", "url", url, "record_dir", cfg.RecordDir)

	onEvent := func(evt broadcast.Event) {
		fmt.Fprintf(os.Stdout, "%s %-9s %s\n", evt.At.Format(time.RFC3339), evt.Topic, evt.Payload)
		if rec != nil {
			if err := rec.Record(evt); err != nil {
				slog.Debug("event not recorded", "topic", evt.Topic, "error", err)
			}
		}
	}

	backoff := minBackoff
	for {
		start := time.Now()
		err := broadcast.Follow(ctx, url, onEvent)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) > maxBackoff {
			backoff = minBackoff
		}
		slog.Warn("event stream ended, reconnecting", "error", err, "in", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
		if errors.Is(err, context.Canceled) {
			return
		}
	}
}
