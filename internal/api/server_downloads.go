package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/eglc_companion/internal/download"
)

func registerDownloadHandlers(api huma.API, svc Service) {
	type listOutput struct {
		Body struct {
			Downloads []download.Meta `json:"downloads"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-downloads", Method: http.MethodGet, Path: "/api/v1/downloads", Summary: "Saved downloads, newest first", Tags: []string{"Downloads"}},
		func(ctx context.Context, input *struct{}) (*listOutput, error) {
			items, err := svc.Downloads()
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listOutput{}
			out.Body.Downloads = items
			return out, nil
		})

	type idInput struct {
		ID string `path:"id"`
	}
	huma.Register(api, huma.Operation{OperationID: "get-download", Method: http.MethodGet, Path: "/api/v1/downloads/{id}", Summary: "One saved download", Tags: []string{"Downloads"}},
		func(ctx context.Context, input *idInput) (*downloadOutput, error) {
			meta, err := svc.GetDownload(input.ID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &downloadOutput{Body: meta}, nil
		})
}
