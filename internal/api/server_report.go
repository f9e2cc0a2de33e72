package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/eglc_companion/internal/views"
	"github.com/go-chi/chi/v5"
)

type reportOutput struct {
	Body views.ReportState
}

type coinsInput struct {
	Body struct {
		Coins []string `json:"coins"`
	}
}

type flagInput struct {
	Body struct {
		Enabled bool `json:"enabled"`
	}
}

func registerReportHandlers(api huma.API, router chi.Router, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-report", Method: http.MethodGet, Path: "/api/v1/report", Summary: "Report view state and latest preview", Tags: []string{"Report"}},
		func(ctx context.Context, input *struct{}) (*reportOutput, error) {
			return &reportOutput{Body: svc.Report()}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-report-file", Method: http.MethodPut, Path: "/api/v1/report/file", Summary: "Select a local price file", Tags: []string{"Report"}},
		func(ctx context.Context, input *pathInput) (*reportOutput, error) {
			state, err := svc.SetReportPath(input.Body.Path)
			if err != nil {
				return nil, mapErr(err)
			}
			return &reportOutput{Body: state}, nil
		})

	type assetInput struct {
		Body struct {
			Asset string `json:"asset" doc:"USD or THB"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-report-asset", Method: http.MethodPut, Path: "/api/v1/report/asset", Summary: "Switch the quote asset", Tags: []string{"Report"}},
		func(ctx context.Context, input *assetInput) (*reportOutput, error) {
			state, err := svc.SetReportAsset(input.Body.Asset)
			if err != nil {
				return nil, mapErr(err)
			}
			return &reportOutput{Body: state}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-report-include-bot", Method: http.MethodPut, Path: "/api/v1/report/include-bot", Summary: "Include or exclude the BOT reference rate", Tags: []string{"Report"}},
		func(ctx context.Context, input *flagInput) (*reportOutput, error) {
			state, err := svc.SetReportIncludeBot(input.Body.Enabled)
			if err != nil {
				return nil, mapErr(err)
			}
			return &reportOutput{Body: state}, nil
		})

	type toggleInput struct {
		Body struct {
			Coin string `json:"coin"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "toggle-report-coin", Method: http.MethodPost, Path: "/api/v1/report/coins/toggle", Summary: "Toggle one coin in the selection", Tags: []string{"Report"}},
		func(ctx context.Context, input *toggleInput) (*reportOutput, error) {
			state, err := svc.ToggleReportCoin(input.Body.Coin)
			if err != nil {
				return nil, mapErr(err)
			}
			return &reportOutput{Body: state}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-report-coins", Method: http.MethodPut, Path: "/api/v1/report/coins", Summary: "Replace the coin selection", Tags: []string{"Report"}},
		func(ctx context.Context, input *coinsInput) (*reportOutput, error) {
			state, err := svc.SetReportCoins(input.Body.Coins)
			if err != nil {
				return nil, mapErr(err)
			}
			return &reportOutput{Body: state}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-watchlist", Method: http.MethodPut, Path: "/api/v1/report/watchlist", Summary: "Replace the watchlist of the current asset", Tags: []string{"Report"}},
		func(ctx context.Context, input *coinsInput) (*reportOutput, error) {
			return &reportOutput{Body: svc.SetWatchlist(ctx, input.Body.Coins)}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-watchlist-only", Method: http.MethodPut, Path: "/api/v1/report/watchlist-only", Summary: "Limit coin choices to the watchlist", Tags: []string{"Report"}},
		func(ctx context.Context, input *flagInput) (*reportOutput, error) {
			return &reportOutput{Body: svc.SetWatchlistOnly(ctx, input.Body.Enabled)}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "download-report", Method: http.MethodPost, Path: "/api/v1/report/download", Summary: "Save the transposed report", Tags: []string{"Report"}},
		func(ctx context.Context, input *struct{}) (*downloadOutput, error) {
			meta, err := svc.DownloadReport(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			return &downloadOutput{Body: meta}, nil
		})

	router.Post("/api/v1/report/upload", func(w http.ResponseWriter, r *http.Request) {
		name, data, err := readUpload(w, r)
		if err != nil {
			writeErr(w, err)
			return
		}
		state, err := svc.UploadReport(name, data)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, state)
	})
}
