package views

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dgnsrekt/eglc_companion/internal/broadcast"
	"github.com/dgnsrekt/eglc_companion/internal/cleanapi"
	"github.com/dgnsrekt/eglc_companion/internal/download"
	"github.com/dgnsrekt/eglc_companion/internal/preview"
)

// ETLAPI is the part of the cleaning service used by the ETL view.
type ETLAPI interface {
	Preview(ctx context.Context, file cleanapi.File, lang string, limit int) (cleanapi.ETLPreview, error)
	Clean(ctx context.Context, file cleanapi.File, lang string) (*cleanapi.FileResponse, error)
}

// ETLOptions configure an ETLView.
type ETLOptions struct {
	Limit       int
	Languages   []string
	DefaultLang string
}

// ETLState is the externally visible ETL view.
type ETLState struct {
	File          *FileInfo            `json:"file"`
	Lang          string               `json:"lang"`
	Loading       bool                 `json:"loading"`
	RequestID     uint64               `json:"request_id"`
	Preview       *cleanapi.ETLPreview `json:"preview"`
	Error         string               `json:"error,omitempty"`
	Downloading   bool                 `json:"downloading"`
	DownloadError string               `json:"download_error,omitempty"`
	LastDownload  *download.Meta       `json:"last_download,omitempty"`
}

type etlParams struct {
	file  cleanapi.File
	lang  string
	limit int
}

// ETLView owns the general-ledger cleaning screen.
type ETLView struct {
	api     ETLAPI
	trigger *download.Trigger
	pub     broadcast.Publisher
	opts    ETLOptions
	ctrl    *preview.Controller[etlParams, cleanapi.ETLPreview]

	mu          sync.Mutex
	file        *selectedFile
	lang        string
	loading     bool
	requestID   uint64
	preview     *cleanapi.ETLPreview
	errMsg      string
	downloading bool
	dlErr       string
	last        *download.Meta
}

func NewETLView(api ETLAPI, trigger *download.Trigger, pub broadcast.Publisher, opts ETLOptions) *ETLView {
	if pub == nil {
		pub = broadcast.Discard{}
	}
	if opts.DefaultLang == "" {
		opts.DefaultLang = cleanapi.DefaultLang
	}
	if opts.Limit <= 0 {
		opts.Limit = cleanapi.DefaultLimit
	}
	v := &ETLView{api: api, trigger: trigger, pub: pub, opts: opts, lang: opts.DefaultLang}
	v.ctrl = preview.New("etl", v.fetch, preview.Handler[etlParams, cleanapi.ETLPreview]{
		OnStart:  v.onStart,
		OnResult: v.onResult,
		OnError:  v.onError,
	})
	return v
}

func (v *ETLView) fetch(ctx context.Context, p etlParams) (cleanapi.ETLPreview, error) {
	return v.api.Preview(ctx, p.file, p.lang, p.limit)
}

// Close cancels any in-flight preview.
func (v *ETLView) Close() { v.ctrl.Close() }

// State returns a snapshot of the view.
func (v *ETLView) State() ETLState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *ETLView) stateLocked() ETLState {
	s := ETLState{
		Lang:          v.lang,
		Loading:       v.loading,
		RequestID:     v.requestID,
		Preview:       v.preview,
		Error:         v.errMsg,
		Downloading:   v.downloading,
		DownloadError: v.dlErr,
		LastDownload:  v.last,
	}
	if v.file != nil {
		info := v.file.info
		s.File = &info
	}
	return s
}

// SetFile replaces the selected file and refreshes the preview.
func (v *ETLView) SetFile(name string, data []byte, source string) (ETLState, error) {
	f, err := newSelectedFile(name, data, source)
	if err != nil {
		return v.State(), err
	}
	v.mu.Lock()
	v.file = f
	p := etlParams{file: f.file, lang: v.lang, limit: v.opts.Limit}
	v.mu.Unlock()

	slog.Info("etl file selected", "name", f.info.Name, "size", f.info.Size)
	v.ctrl.Request(p, preview.Options{ShowLoader: true})
	return v.State(), nil
}

// SetLang changes the output language. With a file selected the preview is
// refreshed immediately.
func (v *ETLView) SetLang(lang string) (ETLState, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		return v.State(), newError(CodeValidation, "lang is required", nil)
	}
	if len(v.opts.Languages) > 0 && !slices.Contains(v.opts.Languages, lang) {
		return v.State(), newError(CodeValidation, fmt.Sprintf("unsupported lang %q", lang), nil)
	}

	v.mu.Lock()
	if v.lang == lang {
		s := v.stateLocked()
		v.mu.Unlock()
		return s, nil
	}
	v.lang = lang
	var p *etlParams
	if v.file != nil {
		p = &etlParams{file: v.file.file, lang: lang, limit: v.opts.Limit}
	}
	v.mu.Unlock()

	if p != nil {
		v.ctrl.Request(*p, preview.Options{ShowLoader: true})
	} else {
		v.publish()
	}
	return v.State(), nil
}

func (v *ETLView) onStart(id uint64, _ etlParams, showLoader bool) {
	v.mu.Lock()
	v.requestID = id
	v.loading = showLoader
	v.errMsg = ""
	v.mu.Unlock()
	v.publish()
}

func (v *ETLView) onResult(id uint64, _ etlParams, r cleanapi.ETLPreview) {
	v.mu.Lock()
	v.preview = &r
	v.loading = false
	v.errMsg = ""
	v.mu.Unlock()
	slog.Debug("etl preview applied", "request_id", id, "errors", r.Validation.ErrorCount, "warnings", r.Validation.WarningCount)
	v.publish()
}

// onError replaces the preview with a single-error validation result so
// the failure shows where validation issues normally appear.
func (v *ETLView) onError(id uint64, _ etlParams, err error) {
	msg := cleanapi.Message(err)
	v.mu.Lock()
	v.preview = failedPreview(msg)
	v.loading = false
	v.errMsg = msg
	v.mu.Unlock()
	slog.Warn("etl preview failed", "request_id", id, "error", err)
	v.publish()
}

func failedPreview(msg string) *cleanapi.ETLPreview {
	p := &cleanapi.ETLPreview{
		Validation: cleanapi.Validation{
			ErrorCount: 1,
			Errors:     []cleanapi.Issue{{Message: msg}},
			Warnings:   []cleanapi.Issue{},
		},
	}
	p.Preview.Raw = cleanapi.Table{Headers: []string{}, Rows: [][]any{}}
	p.Preview.Clean = cleanapi.Table{Headers: []string{}, Rows: [][]any{}}
	return p
}

// Download saves the cleaned file. It is refused while the preview reports
// validation errors unless override is set.
func (v *ETLView) Download(ctx context.Context, override bool) (download.Meta, error) {
	v.mu.Lock()
	switch {
	case v.file == nil:
		v.mu.Unlock()
		return download.Meta{}, newError(CodeNotReady, "select a file first", nil)
	case v.downloading:
		v.mu.Unlock()
		return download.Meta{}, ErrDownloadPending
	case !override && v.preview != nil && v.preview.Validation.ErrorCount > 0:
		n := v.preview.Validation.ErrorCount
		v.mu.Unlock()
		return download.Meta{}, newError(CodeValidation, fmt.Sprintf("preview reports %d error(s); set override to download anyway", n), nil)
	}
	file, lang := v.file.file, v.lang
	v.downloading = true
	v.dlErr = ""
	v.mu.Unlock()
	v.publish()

	meta, err := v.trigger.Download(ctx, "etl", cleanapi.DefaultCleanName, func(ctx context.Context) (*cleanapi.FileResponse, error) {
		resp, err := v.api.Clean(ctx, file, lang)
		return resp, Upstream(err)
	})

	v.mu.Lock()
	v.downloading = false
	if err != nil {
		v.dlErr = userMessage(err)
	} else {
		v.last = &meta
	}
	v.mu.Unlock()
	v.publish()
	return meta, err
}

type viewEvent struct {
	RequestID   uint64 `json:"request_id"`
	Loading     bool   `json:"loading"`
	Error       string `json:"error,omitempty"`
	HasPreview  bool   `json:"has_preview"`
	ErrorCount  int    `json:"error_count,omitempty"`
	Downloading bool   `json:"downloading"`
	File        string `json:"file,omitempty"`
}

func (v *ETLView) publish() {
	v.mu.Lock()
	evt := viewEvent{
		RequestID:   v.requestID,
		Loading:     v.loading,
		Error:       v.errMsg,
		HasPreview:  v.preview != nil,
		Downloading: v.downloading,
	}
	if v.preview != nil {
		evt.ErrorCount = v.preview.Validation.ErrorCount
	}
	if v.file != nil {
		evt.File = v.file.info.Name
	}
	v.mu.Unlock()
	v.pub.Publish(broadcast.NewEvent(broadcast.TopicETL, evt))
}
