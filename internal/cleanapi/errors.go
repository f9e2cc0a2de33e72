package cleanapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 64 * 1024

// APIError is a non-2xx answer from the cleaning service.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// UnreachableMessage is shown for transport failures. The underlying error
// is only logged.
const UnreachableMessage = "Could not reach the cleaning service. Please try again."

// TransportError is a request that never produced a usable answer: the
// connection failed or the response body could not be decoded.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "cleanapi: " + e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// IsCanceled reports whether err means the request was superseded or torn
// down rather than failed.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsUnauthorized reports whether the service rejected the credentials.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Message returns the text to show a user for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return UnreachableMessage
	}
	return err.Error()
}

// errorFromResponse reads a failed response body. JSON {"detail": ...} wins,
// then plain text, then the bare status.
func errorFromResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{Status: resp.StatusCode}

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil && len(body.Detail) > 0 && string(body.Detail) != "null" {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			apiErr.Detail = s
		} else {
			apiErr.Detail = string(body.Detail)
		}
		return apiErr
	}

	text := strings.TrimSpace(string(raw))
	if text != "" && !strings.HasPrefix(text, "{") {
		apiErr.Detail = text
	}
	return apiErr
}
