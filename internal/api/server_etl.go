package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/eglc_companion/internal/download"
	"github.com/dgnsrekt/eglc_companion/internal/views"
	"github.com/go-chi/chi/v5"
)

type etlOutput struct {
	Body views.ETLState
}

type pathInput struct {
	Body struct {
		Path string `json:"path" doc:"Absolute path of a spreadsheet on this machine"`
	}
}

type downloadOutput struct {
	Body download.Meta
}

func registerETLHandlers(api huma.API, router chi.Router, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-etl", Method: http.MethodGet, Path: "/api/v1/etl", Summary: "ETL view state and latest preview", Tags: []string{"ETL"}},
		func(ctx context.Context, input *struct{}) (*etlOutput, error) {
			return &etlOutput{Body: svc.ETL()}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "set-etl-file", Method: http.MethodPut, Path: "/api/v1/etl/file", Summary: "Select a local file for cleaning", Tags: []string{"ETL"}},
		func(ctx context.Context, input *pathInput) (*etlOutput, error) {
			state, err := svc.SetETLPath(input.Body.Path)
			if err != nil {
				return nil, mapErr(err)
			}
			return &etlOutput{Body: state}, nil
		})

	type langInput struct {
		Body struct {
			Lang string `json:"lang"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-etl-lang", Method: http.MethodPut, Path: "/api/v1/etl/lang", Summary: "Set the output language", Tags: []string{"ETL"}},
		func(ctx context.Context, input *langInput) (*etlOutput, error) {
			state, err := svc.SetETLLang(input.Body.Lang)
			if err != nil {
				return nil, mapErr(err)
			}
			return &etlOutput{Body: state}, nil
		})

	type downloadInput struct {
		Override bool `query:"override" doc:"Download even when the preview reports errors"`
	}
	huma.Register(api, huma.Operation{OperationID: "download-etl", Method: http.MethodPost, Path: "/api/v1/etl/download", Summary: "Save the cleaned file", Tags: []string{"ETL"}},
		func(ctx context.Context, input *downloadInput) (*downloadOutput, error) {
			meta, err := svc.DownloadETL(ctx, input.Override)
			if err != nil {
				return nil, mapErr(err)
			}
			return &downloadOutput{Body: meta}, nil
		})

	router.Post("/api/v1/etl/upload", func(w http.ResponseWriter, r *http.Request) {
		name, data, err := readUpload(w, r)
		if err != nil {
			writeErr(w, err)
			return
		}
		state, err := svc.UploadETL(name, data)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, state)
	})
}
