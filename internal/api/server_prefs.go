package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/eglc_companion/internal/prefs"
)

type prefsOutput struct {
	Body prefs.Settings
}

func registerPrefsHandlers(api huma.API, svc Service) {
	huma.Register(api, huma.Operation{OperationID: "get-theme", Method: http.MethodGet, Path: "/api/v1/prefs/theme", Summary: "Current theme and locale", Tags: []string{"Preferences"}},
		func(ctx context.Context, input *struct{}) (*prefsOutput, error) {
			return &prefsOutput{Body: svc.Prefs()}, nil
		})

	type setThemeInput struct {
		Body struct {
			Theme string `json:"theme" doc:"dark or light"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-theme", Method: http.MethodPut, Path: "/api/v1/prefs/theme", Summary: "Set and broadcast the theme", Tags: []string{"Preferences"}},
		func(ctx context.Context, input *setThemeInput) (*prefsOutput, error) {
			snap, err := svc.SetTheme(ctx, input.Body.Theme)
			if err != nil {
				return nil, mapErr(err)
			}
			return &prefsOutput{Body: snap}, nil
		})

	huma.Register(api, huma.Operation{OperationID: "get-locale", Method: http.MethodGet, Path: "/api/v1/prefs/locale", Summary: "Current locale", Tags: []string{"Preferences"}},
		func(ctx context.Context, input *struct{}) (*prefsOutput, error) {
			return &prefsOutput{Body: svc.Prefs()}, nil
		})

	type setLocaleInput struct {
		Body struct {
			Lang string `json:"lang" doc:"Supported language code"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "set-locale", Method: http.MethodPut, Path: "/api/v1/prefs/locale", Summary: "Switch the locale", Tags: []string{"Preferences"}},
		func(ctx context.Context, input *setLocaleInput) (*prefsOutput, error) {
			snap, err := svc.SetLocale(ctx, input.Body.Lang)
			if err != nil {
				return nil, mapErr(err)
			}
			return &prefsOutput{Body: snap}, nil
		})
}
