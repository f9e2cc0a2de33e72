package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dgnsrekt/eglc_companion/internal/broadcast"
	"github.com/dgnsrekt/eglc_companion/internal/cleanapi"
	"github.com/dgnsrekt/eglc_companion/internal/controller"
	"github.com/dgnsrekt/eglc_companion/internal/download"
	"github.com/dgnsrekt/eglc_companion/internal/prefs"
	"github.com/dgnsrekt/eglc_companion/internal/session"
	"github.com/dgnsrekt/eglc_companion/internal/views"
)

type stubService struct {
	err      error
	uploaded string
	override bool
}

func (s *stubService) Health(ctx context.Context) controller.Health {
	return controller.Health{OK: true, Upstream: "ok", Session: "ANONYMOUS"}
}
func (s *stubService) Session() session.Snapshot { return session.Snapshot{State: session.StateAnonymous} }
func (s *stubService) Login(ctx context.Context, creds cleanapi.Credentials) (session.Snapshot, error) {
	return s.Session(), s.err
}
func (s *stubService) Signup(ctx context.Context, creds cleanapi.Credentials) (session.Snapshot, error) {
	return s.Session(), s.err
}
func (s *stubService) Logout() session.Snapshot { return s.Session() }
func (s *stubService) Prefs() prefs.Settings {
	return prefs.Settings{Theme: prefs.ThemeDark, Lang: "th"}
}
func (s *stubService) SetTheme(ctx context.Context, theme string) (prefs.Settings, error) {
	return s.Prefs(), s.err
}
func (s *stubService) SetLocale(ctx context.Context, lang string) (prefs.Settings, error) {
	return s.Prefs(), s.err
}
func (s *stubService) ETL() views.ETLState { return views.ETLState{Lang: "th"} }
func (s *stubService) SetETLPath(path string) (views.ETLState, error) {
	return s.ETL(), s.err
}
func (s *stubService) UploadETL(name string, data []byte) (views.ETLState, error) {
	s.uploaded = name + ":" + string(data)
	st := s.ETL()
	st.File = &views.FileInfo{Name: name, Size: len(data), Source: "upload"}
	return st, s.err
}
func (s *stubService) SetETLLang(lang string) (views.ETLState, error) { return s.ETL(), s.err }
func (s *stubService) DownloadETL(ctx context.Context, override bool) (download.Meta, error) {
	s.override = override
	return download.Meta{Name: "CLEAN.csv", Flow: "etl"}, s.err
}
func (s *stubService) Report() views.ReportState { return views.ReportState{Asset: "USD"} }
func (s *stubService) SetReportPath(path string) (views.ReportState, error) {
	return s.Report(), s.err
}
func (s *stubService) UploadReport(name string, data []byte) (views.ReportState, error) {
	return s.Report(), s.err
}
func (s *stubService) SetReportAsset(asset string) (views.ReportState, error) {
	return s.Report(), s.err
}
func (s *stubService) SetReportIncludeBot(on bool) (views.ReportState, error) {
	return s.Report(), s.err
}
func (s *stubService) ToggleReportCoin(coin string) (views.ReportState, error) {
	return s.Report(), s.err
}
func (s *stubService) SetReportCoins(coins []string) (views.ReportState, error) {
	return s.Report(), s.err
}
func (s *stubService) SetWatchlist(ctx context.Context, coins []string) views.ReportState {
	return s.Report()
}
func (s *stubService) SetWatchlistOnly(ctx context.Context, on bool) views.ReportState {
	return s.Report()
}
func (s *stubService) DownloadReport(ctx context.Context) (download.Meta, error) {
	return download.Meta{}, s.err
}
func (s *stubService) Downloads() ([]download.Meta, error) { return []download.Meta{}, s.err }
func (s *stubService) GetDownload(id string) (download.Meta, error) {
	return download.Meta{ID: id}, s.err
}

func TestDocsDarkMode(t *testing.T) {
	h := NewServer(&stubService{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/docs", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, `data-theme="dark"`) {
		t.Fatalf("docs missing dark theme marker")
	}
}

func TestEventsDocsListsTopics(t *testing.T) {
	h := NewServer(&stubService{}, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs", nil))
	if !strings.Contains(w.Body.String(), `href="/docs/events"`) {
		t.Fatal("docs missing event stream link")
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/docs/events", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	for _, topic := range []string{
		broadcast.TopicToken, broadcast.TopicSession, broadcast.TopicTheme, broadcast.TopicLocale,
		broadcast.TopicWatchlist, broadcast.TopicETL, broadcast.TopicReport,
	} {
		if !strings.Contains(w.Body.String(), "<code>"+topic+"</code>") {
			t.Fatalf("events docs missing topic %q", topic)
		}
	}
}

func TestCodedErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		code string
		want int
	}{
		{views.CodeValidation, http.StatusBadRequest},
		{views.CodeUnauthorized, http.StatusUnauthorized},
		{views.CodeNotFound, http.StatusNotFound},
		{views.CodePending, http.StatusConflict},
		{views.CodeNotReady, http.StatusConflict},
		{views.CodeUpstream, http.StatusBadGateway},
		{"SOMETHING_ELSE", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		svc := &stubService{err: &views.CodedError{Code: tc.code, Message: "boom"}}
		h := NewServer(svc, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/etl/download", nil)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: status = %d; want %d", tc.code, w.Code, tc.want)
		}
	}
}

func TestDownloadOverrideQuery(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/etl/download?override=true", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 (body %s)", w.Code, w.Body.String())
	}
	if !svc.override {
		t.Fatal("override not passed to service")
	}
	var meta download.Meta
	if err := json.Unmarshal(w.Body.Bytes(), &meta); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if meta.Name != "CLEAN.csv" {
		t.Fatalf("Name = %q; want CLEAN.csv", meta.Name)
	}
}

func TestUploadMultipart(t *testing.T) {
	svc := &stubService{}
	h := NewServer(svc, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "ledger.xlsx")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write([]byte("sheet"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/etl/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; want 200 (body %s)", w.Code, w.Body.String())
	}
	if svc.uploaded != "ledger.xlsx:sheet" {
		t.Fatalf("uploaded = %q; want ledger.xlsx:sheet", svc.uploaded)
	}
	var state views.ETLState
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.File == nil || state.File.Name != "ledger.xlsx" {
		t.Fatalf("file = %+v; want ledger.xlsx", state.File)
	}
}

func TestUploadWithoutFileIsBadRequest(t *testing.T) {
	h := NewServer(&stubService{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/report/upload", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("Content-Type = %q; want application/problem+json", ct)
	}
}

func TestLoginValidationIsBadRequest(t *testing.T) {
	svc := &stubService{err: &views.CodedError{Code: views.CodeValidation, Message: session.ErrPasswordTooShort.Error()}}
	h := NewServer(svc, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/session/login", strings.NewReader(`{"username":"alice","password":"short"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400 (body %s)", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "at least 8") {
		t.Fatalf("body = %s; want password message", w.Body.String())
	}
}

func TestSessionAndPrefsRoutesShareAPI(t *testing.T) {
	h := NewServer(&stubService{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("session status = %d; want 200 (body %s)", w.Code, w.Body.String())
	}
	var snap session.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if snap.State != session.StateAnonymous {
		t.Fatalf("session state = %q; want %q", snap.State, session.StateAnonymous)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/prefs/theme", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("prefs status = %d; want 200 (body %s)", w.Code, w.Body.String())
	}
	var settings prefs.Settings
	if err := json.Unmarshal(w.Body.Bytes(), &settings); err != nil {
		t.Fatalf("decode prefs: %v", err)
	}
	if settings.Theme != prefs.ThemeDark || settings.Lang != "th" {
		t.Fatalf("prefs = %+v; want dark/th", settings)
	}

	req = httptest.NewRequest(http.MethodGet, "/openapi.json", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("openapi status = %d; want 200", w.Code)
	}
	for _, name := range []string{`"Snapshot"`, `"Settings"`} {
		if !strings.Contains(w.Body.String(), name) {
			t.Fatalf("openapi missing schema %s", name)
		}
	}
}
