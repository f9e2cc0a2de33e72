package views

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/eglc_companion/internal/broadcast"
	"github.com/dgnsrekt/eglc_companion/internal/cleanapi"
	"github.com/dgnsrekt/eglc_companion/internal/download"
	"github.com/dgnsrekt/eglc_companion/internal/preview"
	"github.com/dgnsrekt/eglc_companion/internal/watchlist"
)

// CoinDebounce delays previews after coin selection changes.
const CoinDebounce = 250 * time.Millisecond

const watchlistTimeout = 2 * time.Second

// ReportAPI is the part of the cleaning service used by the report view.
type ReportAPI interface {
	ReportPreview(ctx context.Context, file cleanapi.File, p cleanapi.ReportParams) (cleanapi.ReportPreview, error)
	ReportClean(ctx context.Context, file cleanapi.File, p cleanapi.ReportParams) (*cleanapi.FileResponse, error)
}

// ReportState is the externally visible report view.
type ReportState struct {
	File          *FileInfo               `json:"file"`
	Asset         string                  `json:"asset"`
	IncludeBot    bool                    `json:"include_bot"`
	Coins         []string                `json:"coins"`
	Available     []string                `json:"available"`
	Choices       []string                `json:"choices"`
	Watchlist     []string                `json:"watchlist"`
	WatchlistOnly bool                    `json:"watchlist_only"`
	Loading       bool                    `json:"loading"`
	Pending       bool                    `json:"pending"`
	RequestID     uint64                  `json:"request_id"`
	Preview       *cleanapi.ReportPreview `json:"preview"`
	Error         string                  `json:"error,omitempty"`
	Downloading   bool                    `json:"downloading"`
	DownloadError string                  `json:"download_error,omitempty"`
	LastDownload  *download.Meta          `json:"last_download,omitempty"`
}

type reportParams struct {
	file   cleanapi.File
	params cleanapi.ReportParams
}

// ReportView owns the price report transposer screen.
type ReportView struct {
	api        ReportAPI
	trigger    *download.Trigger
	watchlists *watchlist.Store
	pub        broadcast.Publisher
	debounce   time.Duration
	ctrl       *preview.Controller[reportParams, cleanapi.ReportPreview]

	mu          sync.Mutex
	file        *selectedFile
	asset       string
	includeBot  bool
	selection   *watchlist.Selection
	autoSelect  bool
	loading     bool
	requestID   uint64
	preview     *cleanapi.ReportPreview
	errMsg      string
	downloading bool
	dlErr       string
	last        *download.Meta
}

func NewReportView(api ReportAPI, trigger *download.Trigger, watchlists *watchlist.Store, pub broadcast.Publisher) *ReportView {
	if pub == nil {
		pub = broadcast.Discard{}
	}
	v := &ReportView{
		api:        api,
		trigger:    trigger,
		watchlists: watchlists,
		pub:        pub,
		debounce:   CoinDebounce,
		asset:      cleanapi.AssetUSD,
		includeBot: true,
		selection:  watchlist.NewSelection(),
	}
	v.ctrl = preview.New("report", v.fetch, preview.Handler[reportParams, cleanapi.ReportPreview]{
		OnStart:  v.onStart,
		OnResult: v.onResult,
		OnError:  v.onError,
	})
	return v
}

func (v *ReportView) fetch(ctx context.Context, p reportParams) (cleanapi.ReportPreview, error) {
	return v.api.ReportPreview(ctx, p.file, p.params)
}

// Close cancels any pending or in-flight preview.
func (v *ReportView) Close() { v.ctrl.Close() }

// State returns a snapshot of the view.
func (v *ReportView) State() ReportState {
	v.mu.Lock()
	s := ReportState{
		Asset:         v.asset,
		IncludeBot:    v.includeBot,
		Coins:         v.selection.Ordered(v.availableLocked()),
		Available:     append([]string{}, v.availableLocked()...),
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
	asset := v.asset
	v.mu.Unlock()

	s.Pending = v.ctrl.Busy()
	s.Watchlist = v.watchlists.Get(asset)
	s.WatchlistOnly = v.watchlists.WatchlistOnly()
	s.Choices = s.Available
	if s.WatchlistOnly {
		s.Choices = watchlist.NewSelection(s.Watchlist...).Filter(s.Available)
	}
	return s
}

// availableLocked is the coin list the service reported for the current
// asset in the last applied preview.
func (v *ReportView) availableLocked() []string {
	if v.preview == nil {
		return nil
	}
	return v.preview.CoinsFor(v.asset)
}

func (v *ReportView) paramsLocked() reportParams {
	return reportParams{
		file: v.file.file,
		params: cleanapi.ReportParams{
			Asset:      v.asset,
			IncludeBot: v.includeBot,
			Coins:      v.selection.Ordered(v.availableLocked()),
		},
	}
}

// refresh requests a preview for the current parameters. Structural
// changes go out immediately with the loader; refinements are debounced.
func (v *ReportView) refresh(structural bool) {
	v.mu.Lock()
	if v.file == nil {
		v.mu.Unlock()
		v.publish()
		return
	}
	p := v.paramsLocked()
	v.mu.Unlock()

	if structural {
		v.ctrl.Request(p, preview.Options{ShowLoader: true})
		return
	}
	v.ctrl.Request(p, preview.Options{Debounce: v.debounce})
	v.publish()
}

// SetFile replaces the selected report file. The coin selection is reset
// because coins come from the file.
func (v *ReportView) SetFile(name string, data []byte, source string) (ReportState, error) {
	f, err := newSelectedFile(name, data, source)
	if err != nil {
		return v.State(), err
	}
	v.mu.Lock()
	v.file = f
	v.selection = watchlist.NewSelection()
	v.autoSelect = true
	v.mu.Unlock()

	slog.Info("report file selected", "name", f.info.Name, "size", f.info.Size)
	v.refresh(true)
	return v.State(), nil
}

// SetAsset switches between the USD and THB reports.
func (v *ReportView) SetAsset(asset string) (ReportState, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if asset != cleanapi.AssetUSD && asset != cleanapi.AssetTHB {
		return v.State(), newError(CodeValidation, fmt.Sprintf("asset must be %s or %s", cleanapi.AssetUSD, cleanapi.AssetTHB), nil)
	}
	v.mu.Lock()
	if v.asset == asset {
		v.mu.Unlock()
		return v.State(), nil
	}
	v.asset = asset
	v.selection = watchlist.NewSelection()
	v.autoSelect = true
	v.mu.Unlock()

	v.refresh(true)
	return v.State(), nil
}

func (v *ReportView) SetIncludeBot(on bool) (ReportState, error) {
	v.mu.Lock()
	if v.includeBot == on {
		v.mu.Unlock()
		return v.State(), nil
	}
	v.includeBot = on
	v.mu.Unlock()

	v.refresh(true)
	return v.State(), nil
}

// ToggleCoin adds or removes one coin from the selection.
func (v *ReportView) ToggleCoin(coin string) (ReportState, error) {
	if strings.TrimSpace(coin) == "" {
		return v.State(), newError(CodeValidation, "coin is required", nil)
	}
	v.mu.Lock()
	v.selection.Toggle(coin)
	v.autoSelect = false
	v.mu.Unlock()

	v.refresh(false)
	return v.State(), nil
}

// SetCoins replaces the selection.
func (v *ReportView) SetCoins(coins []string) (ReportState, error) {
	v.mu.Lock()
	v.selection = watchlist.NewSelection(coins...)
	v.autoSelect = false
	v.mu.Unlock()

	v.refresh(false)
	return v.State(), nil
}

// SetWatchlist replaces the watchlist of the current asset.
func (v *ReportView) SetWatchlist(ctx context.Context, coins []string) ReportState {
	v.mu.Lock()
	asset := v.asset
	v.mu.Unlock()
	v.watchlists.Set(ctx, asset, coins)
	return v.State()
}

func (v *ReportView) SetWatchlistOnly(ctx context.Context, on bool) ReportState {
	v.watchlists.SetWatchlistOnly(ctx, on)
	return v.State()
}

func (v *ReportView) onStart(id uint64, _ reportParams, showLoader bool) {
	v.mu.Lock()
	v.requestID = id
	if showLoader {
		v.loading = true
	}
	v.errMsg = ""
	v.mu.Unlock()
	v.publish()
}

// onResult applies the preview and feeds the watchlist reconciler. After a
// file or asset change the empty selection is seeded from the reconciled
// watchlist and refined.
func (v *ReportView) onResult(id uint64, p reportParams, r cleanapi.ReportPreview) {
	asset := p.params.Asset
	available := r.CoinsFor(asset)

	ctx, cancel := context.WithTimeout(context.Background(), watchlistTimeout)
	wl, _ := v.watchlists.Update(ctx, asset, available, r.Coins.USD, r.Coins.THB)
	cancel()

	v.mu.Lock()
	v.preview = &r
	v.loading = false
	v.errMsg = ""
	seeded := false
	if v.autoSelect && v.asset == asset {
		v.autoSelect = false
		if v.selection.Len() == 0 && len(wl) > 0 {
			v.selection = watchlist.NewSelection(wl...)
			seeded = true
		}
	}
	var next reportParams
	if seeded && v.file != nil {
		next = v.paramsLocked()
	}
	v.mu.Unlock()

	slog.Debug("report preview applied", "request_id", id, "asset", asset, "available", len(available), "watchlist", len(wl))
	if seeded {
		// Debounced requests only arm a timer, so scheduling from a handler is safe.
		v.ctrl.Request(next, preview.Options{Debounce: v.debounce})
	}
	v.publish()
}

// onError keeps the last tables and records a standalone message.
func (v *ReportView) onError(id uint64, _ reportParams, err error) {
	msg := cleanapi.Message(err)
	v.mu.Lock()
	v.loading = false
	v.errMsg = msg
	v.mu.Unlock()
	slog.Warn("report preview failed", "request_id", id, "error", err)
	v.publish()
}

// Download saves the transposed report for the confirmed parameters.
func (v *ReportView) Download(ctx context.Context) (download.Meta, error) {
	v.mu.Lock()
	switch {
	case v.file == nil:
		v.mu.Unlock()
		return download.Meta{}, newError(CodeValidation, "select a report file first", nil)
	case v.selection.Len() == 0:
		v.mu.Unlock()
		return download.Meta{}, newError(CodeValidation, "select at least one coin", nil)
	case v.downloading:
		v.mu.Unlock()
		return download.Meta{}, ErrDownloadPending
	}
	p := v.paramsLocked()
	v.downloading = true
	v.dlErr = ""
	v.mu.Unlock()
	v.publish()

	meta, err := v.trigger.Download(ctx, "report", cleanapi.DefaultReportName, func(ctx context.Context) (*cleanapi.FileResponse, error) {
		resp, err := v.api.ReportClean(ctx, p.file, p.params)
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

type reportEvent struct {
	viewEvent
	Asset string   `json:"asset"`
	Coins []string `json:"coins"`
}

func (v *ReportView) publish() {
	v.mu.Lock()
	evt := reportEvent{
		viewEvent: viewEvent{
			RequestID:   v.requestID,
			Loading:     v.loading,
			Error:       v.errMsg,
			HasPreview:  v.preview != nil,
			Downloading: v.downloading,
		},
		Asset: v.asset,
		Coins: v.selection.Ordered(v.availableLocked()),
	}
	if v.file != nil {
		evt.File = v.file.info.Name
	}
	v.mu.Unlock()
	v.pub.Publish(broadcast.NewEvent(broadcast.TopicReport, evt))
}
