package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/eglc_companion/internal/cleanapi"
	"github.com/dgnsrekt/eglc_companion/internal/controller"
	"github.com/dgnsrekt/eglc_companion/internal/session"
)

func registerHealthHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Liveness check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*statusOutput, error) {
			out := &statusOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "health-upstream", Method: http.MethodGet, Path: "/api/v1/health", Summary: "Companion and cleaning service health", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*struct{ Body controller.Health }, error) {
			out := &struct{ Body controller.Health }{}
			out.Body = svc.Health(ctx)
			return out, nil
		})
}

type sessionOutput struct {
	Body session.Snapshot
}

type credentialsInput struct {
	Body struct {
		Username string `json:"username" doc:"3-32 chars of letters, digits, '.', '_' or '-'"`
		Password string `json:"password" doc:"At least 8 characters"`
	}
}

func registerSessionHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-session", Method: http.MethodGet, Path: "/api/v1/session", Summary: "Current authentication state", Tags: []string{"Session"}},
		func(ctx context.Context, input *struct{}) (*sessionOutput, error) {
			return &sessionOutput{Body: svc.Session()}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "login", Method: http.MethodPost, Path: "/api/v1/session/login", Summary: "Log in and store the token", Tags: []string{"Session"}},
		func(ctx context.Context, input *credentialsInput) (*sessionOutput, error) {
			snap, err := svc.Login(ctx, cleanapi.Credentials{Username: input.Body.Username, Password: input.Body.Password})
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: snap}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "signup", Method: http.MethodPost, Path: "/api/v1/session/signup", Summary: "Create an account and store the token", Tags: []string{"Session"}},
		func(ctx context.Context, input *credentialsInput) (*sessionOutput, error) {
			snap, err := svc.Signup(ctx, cleanapi.Credentials{Username: input.Body.Username, Password: input.Body.Password})
			if err != nil {
				return nil, mapErr(err)
			}
			return &sessionOutput{Body: snap}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "logout", Method: http.MethodPost, Path: "/api/v1/session/logout", Summary: "Clear the stored token", Tags: []string{"Session"}},
		func(ctx context.Context, input *struct{}) (*sessionOutput, error) {
			return &sessionOutput{Body: svc.Logout()}, nil
		})
}
