package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/eglc_companion/internal/broadcast"
	"github.com/dgnsrekt/eglc_companion/internal/cleanapi"
	"github.com/dgnsrekt/eglc_companion/internal/controller"
	"github.com/dgnsrekt/eglc_companion/internal/download"
	"github.com/dgnsrekt/eglc_companion/internal/prefs"
	"github.com/dgnsrekt/eglc_companion/internal/session"
	"github.com/dgnsrekt/eglc_companion/internal/views"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Service interface {
	Health(ctx context.Context) controller.Health

	Session() session.Snapshot
	Login(ctx context.Context, creds cleanapi.Credentials) (session.Snapshot, error)
	Signup(ctx context.Context, creds cleanapi.Credentials) (session.Snapshot, error)
	Logout() session.Snapshot

	Prefs() prefs.Settings
	SetTheme(ctx context.Context, theme string) (prefs.Settings, error)
	SetLocale(ctx context.Context, lang string) (prefs.Settings, error)

	ETL() views.ETLState
	SetETLPath(path string) (views.ETLState, error)
	UploadETL(name string, data []byte) (views.ETLState, error)
	SetETLLang(lang string) (views.ETLState, error)
	DownloadETL(ctx context.Context, override bool) (download.Meta, error)

	Report() views.ReportState
	SetReportPath(path string) (views.ReportState, error)
	UploadReport(name string, data []byte) (views.ReportState, error)
	SetReportAsset(asset string) (views.ReportState, error)
	SetReportIncludeBot(on bool) (views.ReportState, error)
	ToggleReportCoin(coin string) (views.ReportState, error)
	SetReportCoins(coins []string) (views.ReportState, error)
	SetWatchlist(ctx context.Context, coins []string) views.ReportState
	SetWatchlistOnly(ctx context.Context, on bool) views.ReportState
	DownloadReport(ctx context.Context) (download.Meta, error)

	Downloads() ([]download.Meta, error)
	GetDownload(id string) (download.Meta, error)
}

type statusOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// NewServer builds the local API. events may be nil, in which case the
// event stream routes are not mounted.
func NewServer(svc Service, events *broadcast.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("EGLC Companion API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})

	router.Get("/docs/events", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(eventsDocsHTML)); err != nil {
			slog.Debug("events docs response write failed", "error", err)
		}
	})

	if events != nil {
		router.Get("/api/v1/events", broadcast.SSEHandler(events))
		router.Get("/api/v1/events/ws", broadcast.WSHandler(events))
	}

	registerHealthHandlers(api, svc)
	registerSessionHandlers(api, svc)
	registerPrefsHandlers(api, svc)
	registerETLHandlers(api, router, svc)
	registerReportHandlers(api, router, svc)
	registerDownloadHandlers(api, svc)

	return router
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *views.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case views.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case views.CodeUnauthorized:
			return huma.Error401Unauthorized(coded.Message)
		case views.CodeNotFound:
			return huma.Error404NotFound(coded.Message)
		case views.CodePending, views.CodeNotReady:
			return huma.Error409Conflict(coded.Message)
		case views.CodeUpstream:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}

// writeErr renders err for the raw chi routes the same way huma does.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var se huma.StatusError
	if errors.As(mapErr(err), &se) {
		status = se.GetStatus()
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(mapErr(err)); err != nil {
		slog.Debug("error response write failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response write failed", "error", err)
	}
}
