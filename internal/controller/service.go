package controller

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dgnsrekt/eglc_companion/internal/cleanapi"
	"github.com/dgnsrekt/eglc_companion/internal/download"
	"github.com/dgnsrekt/eglc_companion/internal/prefs"
	"github.com/dgnsrekt/eglc_companion/internal/session"
	"github.com/dgnsrekt/eglc_companion/internal/views"
)

// HealthChecker probes the cleaning service.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Health is the companion and remote service status.
type Health struct {
	OK       bool   `json:"ok"`
	Upstream string `json:"upstream"`
	Detail   string `json:"detail,omitempty"`
	Session  string `json:"session"`
}

// Service wraps the companion's stores and views behind one facade.
type Service struct {
	remote  HealthChecker
	session *session.Resolver
	prefs   *prefs.Broadcaster
	etl     *views.ETLView
	report  *views.ReportView
	files   *download.Store
}

func NewService(remote HealthChecker, sess *session.Resolver, pb *prefs.Broadcaster, etl *views.ETLView, report *views.ReportView, files *download.Store) *Service {
	return &Service{remote: remote, session: sess, prefs: pb, etl: etl, report: report, files: files}
}

func (s *Service) requireNonEmpty(value, fieldName string) error {
	if strings.TrimSpace(value) == "" {
		return &views.CodedError{Code: views.CodeValidation, Message: fieldName + " is required"}
	}
	return nil
}

func (s *Service) Health(ctx context.Context) Health {
	h := Health{OK: true, Upstream: "ok", Session: string(s.session.Snapshot().State)}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.remote.Health(ctx); err != nil {
		h.Upstream = "unavailable"
		h.Detail = cleanapi.Message(err)
	}
	return h
}

// --- session ---

func (s *Service) Session() session.Snapshot { return s.session.Snapshot() }

func (s *Service) Login(ctx context.Context, creds cleanapi.Credentials) (session.Snapshot, error) {
	if _, err := s.session.Login(ctx, creds); err != nil {
		return s.session.Snapshot(), authError(err)
	}
	return s.session.Snapshot(), nil
}

func (s *Service) Signup(ctx context.Context, creds cleanapi.Credentials) (session.Snapshot, error) {
	if _, err := s.session.Signup(ctx, creds); err != nil {
		return s.session.Snapshot(), authError(err)
	}
	return s.session.Snapshot(), nil
}

func (s *Service) Logout() session.Snapshot {
	s.session.Logout()
	return s.session.Snapshot()
}

func authError(err error) error {
	switch {
	case errors.Is(err, session.ErrInvalidUsername),
		errors.Is(err, session.ErrPasswordTooShort),
		errors.Is(err, session.ErrPasswordTooLong):
		return &views.CodedError{Code: views.CodeValidation, Message: err.Error(), Cause: err}
	}
	return views.Upstream(err)
}

// --- preferences ---

func (s *Service) Prefs() prefs.Settings { return s.prefs.Snapshot() }

func (s *Service) SetTheme(ctx context.Context, theme string) (prefs.Settings, error) {
	t, ok := prefs.ParseTheme(theme)
	if !ok {
		return s.prefs.Snapshot(), &views.CodedError{Code: views.CodeValidation, Message: "theme must be dark or light"}
	}
	if err := s.prefs.WritePreference(ctx, t); err != nil {
		return s.prefs.Snapshot(), err
	}
	return s.prefs.Snapshot(), nil
}

func (s *Service) SetLocale(ctx context.Context, lang string) (prefs.Settings, error) {
	if err := s.requireNonEmpty(lang, "lang"); err != nil {
		return s.prefs.Snapshot(), err
	}
	if err := s.prefs.SetLocale(ctx, strings.ToLower(strings.TrimSpace(lang))); err != nil {
		return s.prefs.Snapshot(), &views.CodedError{Code: views.CodeValidation, Message: err.Error(), Cause: err}
	}
	return s.prefs.Snapshot(), nil
}

// --- ETL ---

func (s *Service) ETL() views.ETLState { return s.etl.State() }

func (s *Service) SetETLPath(path string) (views.ETLState, error) {
	name, data, err := views.ReadLocalFile(path)
	if err != nil {
		return s.etl.State(), err
	}
	return s.etl.SetFile(name, data, path)
}

func (s *Service) UploadETL(name string, data []byte) (views.ETLState, error) {
	return s.etl.SetFile(name, data, "upload")
}

func (s *Service) SetETLLang(lang string) (views.ETLState, error) {
	return s.etl.SetLang(lang)
}

func (s *Service) DownloadETL(ctx context.Context, override bool) (download.Meta, error) {
	return s.etl.Download(ctx, override)
}

// --- report ---

func (s *Service) Report() views.ReportState { return s.report.State() }

func (s *Service) SetReportPath(path string) (views.ReportState, error) {
	name, data, err := views.ReadLocalFile(path)
	if err != nil {
		return s.report.State(), err
	}
	return s.report.SetFile(name, data, path)
}

func (s *Service) UploadReport(name string, data []byte) (views.ReportState, error) {
	return s.report.SetFile(name, data, "upload")
}

func (s *Service) SetReportAsset(asset string) (views.ReportState, error) {
	if err := s.requireNonEmpty(asset, "asset"); err != nil {
		return s.report.State(), err
	}
	return s.report.SetAsset(asset)
}

func (s *Service) SetReportIncludeBot(on bool) (views.ReportState, error) {
	return s.report.SetIncludeBot(on)
}

func (s *Service) ToggleReportCoin(coin string) (views.ReportState, error) {
	if err := s.requireNonEmpty(coin, "coin"); err != nil {
		return s.report.State(), err
	}
	return s.report.ToggleCoin(coin)
}

func (s *Service) SetReportCoins(coins []string) (views.ReportState, error) {
	return s.report.SetCoins(coins)
}

func (s *Service) SetWatchlist(ctx context.Context, coins []string) views.ReportState {
	return s.report.SetWatchlist(ctx, coins)
}

func (s *Service) SetWatchlistOnly(ctx context.Context, on bool) views.ReportState {
	return s.report.SetWatchlistOnly(ctx, on)
}

func (s *Service) DownloadReport(ctx context.Context) (download.Meta, error) {
	return s.report.Download(ctx)
}

// --- downloads ---

func (s *Service) Downloads() ([]download.Meta, error) { return s.files.List() }

func (s *Service) GetDownload(id string) (download.Meta, error) {
	if err := s.requireNonEmpty(id, "id"); err != nil {
		return download.Meta{}, err
	}
	meta, err := s.files.Get(strings.TrimSpace(id))
	if err != nil {
		return download.Meta{}, &views.CodedError{Code: views.CodeNotFound, Message: err.Error(), Cause: err}
	}
	return meta, nil
}
