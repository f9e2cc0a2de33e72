package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/eglc_companion/internal/api"
	"github.com/dgnsrekt/eglc_companion/internal/broadcast"
	"github.com/dgnsrekt/eglc_companion/internal/cdp"
	"github.com/dgnsrekt/eglc_companion/internal/cleanapi"
	"github.com/dgnsrekt/eglc_companion/internal/config"
	"github.com/dgnsrekt/eglc_companion/internal/controller"
	"github.com/dgnsrekt/eglc_companion/internal/download"
	"github.com/dgnsrekt/eglc_companion/internal/kvstore"
	"github.com/dgnsrekt/eglc_companion/internal/netutil"
	"github.com/dgnsrekt/eglc_companion/internal/prefs"
	"github.com/dgnsrekt/eglc_companion/internal/session"
	"github.com/dgnsrekt/eglc_companion/internal/tokenstore"
	"github.com/dgnsrekt/eglc_companion/internal/views"
	"github.com/dgnsrekt/eglc_companion/internal/watchlist"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load companion config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	profile, err := config.LoadPrefsProfile(cfg.PrefsProfile)
	if err != nil {
		slog.Error("failed to load prefs profile", "path", cfg.PrefsProfile, "error", err)
		os.Exit(1)
	}

	slog.Info("companion config loaded",
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"api_origin", cfg.APIOrigin,
		"api_base_url", cfg.APIBaseURL,
		"storage", cfg.StoragePath,
		"download_dir", cfg.DownloadDir,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
		"prefs_roots", profile.Roots,
		"cdp_theme_root", cfg.CDPThemeRoot,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage falls back to memory when the database cannot be opened, so
	// preferences and the token simply do not survive a restart.
	var storage kvstore.Storage
	db, err := kvstore.Open(cfg.StoragePath)
	if err != nil {
		slog.Warn("durable storage unavailable, using memory", "path", cfg.StoragePath, "error", err)
		storage = kvstore.NewMemory()
	} else {
		storage = db
		defer func() {
			if err := db.Close(); err != nil {
				slog.Debug("storage close failed", "error", err)
			}
		}()
	}

	broker := broadcast.NewBroker()
	tokens := tokenstore.New(storage, broker)
	remote := cleanapi.New(cfg.APIOrigin, cfg.APIBaseURL, &http.Client{Timeout: cfg.APITimeout}, tokens)

	resolver := session.NewResolver(tokens, remote, broker)
	defer resolver.Close()

	roots := make([]prefs.Root, 0, len(profile.Roots)+1)
	for _, name := range profile.Roots {
		roots = append(roots, prefs.NewMemoryRoot(name))
	}
	if cfg.CDPThemeRoot {
		browser := cdp.NewClient(cfg.CDPURL(), cfg.CDPTargetID, cfg.CDPTabURLFilter)
		connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		err := browser.Connect(connectCtx)
		cancel()
		if err != nil {
			slog.Warn("browser theme root unavailable", "cdp_url", cfg.CDPURL(), "error", err)
		} else {
			defer func() {
				if err := browser.Close(); err != nil {
					slog.Debug("CDP client close failed", "error", err)
				}
			}()
			roots = append(roots, prefs.NewBrowserRoot("browser", "", browser, cfg.ThemeRootPollPeriod))
		}
	}

	pb := prefs.New(ctx, storage, broker, prefs.Options{
		ThemeKeys:   profile.ThemeKeys,
		LangKey:     profile.LangKey,
		Languages:   profile.Languages,
		DefaultLang: profile.DefaultLang,
		Transition:  profile.Transition(),
		PrefersDark: cfg.PrefersColorScheme == "dark",
	}, roots...)
	defer pb.Close()

	watchlists := watchlist.NewStore(storage, broker, profile.WatchlistAutoLimit)

	files, err := download.NewStore(cfg.DownloadDir)
	if err != nil {
		slog.Error("failed to create download store", "dir", cfg.DownloadDir, "error", err)
		os.Exit(1)
	}
	trigger := download.NewTrigger(files)

	etl := views.NewETLView(remote, trigger, broker, views.ETLOptions{
		Languages:   profile.Languages,
		DefaultLang: profile.DefaultLang,
	})
	defer etl.Close()
	report := views.NewReportView(remote, trigger, watchlists, broker)
	defer report.Close()

	if db != nil {
		go db.Watch(ctx, cfg.WatchInterval, func(c kvstore.Change) {
			slog.Debug("storage change observed", "key", c.Key, "deleted", c.Deleted)
			tokens.ApplyExternal(c)
			pb.ApplyExternal(c)
			watchlists.ApplyExternal(c)
		})
	}

	svc := controller.NewService(remote, resolver, pb, etl, report, files)
	h := api.NewServer(svc, broker)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to bind local API", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}
	bindAddr := ln.Addr().String()
	srv := &http.Server{Handler: h}

	go func() {
		slog.Info("companion listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("companion server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("companion shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
