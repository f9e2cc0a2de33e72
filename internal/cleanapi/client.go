// Package cleanapi is the HTTP client for the remote accounting-cleaner
// service. Parsing, normalization and validation all happen remotely; this
// package only shapes requests and decodes answers.
package cleanapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// TokenSource supplies the bearer token for authenticated calls.
type TokenSource interface {
	Read() string
}

// Client talks to the cleaning service.
type Client struct {
	origin  string
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// New creates a Client. origin is the service origin; baseURL prefixes every
// endpoint except /api/report/*, which always live on origin. A relative
// baseURL is joined to origin; an empty one means origin itself.
func New(origin, baseURL string, httpClient *http.Client, tokens TokenSource) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		origin:  strings.TrimRight(origin, "/"),
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		tokens:  tokens,
	}
}

func (c *Client) url(path string) string {
	if strings.Contains(c.baseURL, "://") {
		return c.baseURL + path
	}
	return c.origin + c.baseURL + path
}

func (c *Client) reportURL(path string) string {
	return c.origin + path
}

func (c *Client) bearer() string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens.Read()
}

func (c *Client) do(req *http.Request, token string) (*http.Response, error) {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
		return nil, &TransportError{Op: req.Method + " " + req.URL.Path, Err: err}
	}
	slog.Debug("cleanapi request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, errorFromResponse(resp)
	}
	return resp, nil
}

func (c *Client) doJSON(req *http.Request, token string, out any) error {
	resp, err := c.do(req, token)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if req.Context().Err() != nil {
			return req.Context().Err()
		}
		return &TransportError{Op: "decode " + req.URL.Path, Err: err}
	}
	return nil
}

func multipartBody(file File, fields [][2]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	name := file.Name
	if name == "" {
		name = "upload"
	}
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(file.Data); err != nil {
		return nil, "", err
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) postMultipart(ctx context.Context, endpoint string, file File, fields [][2]string) (*http.Request, error) {
	body, contentType, err := multipartBody(file, fields)
	if err != nil {
		return nil, fmt.Errorf("cleanapi: build form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

// Health checks GET /api/health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/health"), nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req, "")
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) postCredentials(ctx context.Context, path string, creds Credentials) (AuthResponse, error) {
	raw, err := json.Marshal(creds)
	if err != nil {
		return AuthResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(raw))
	if err != nil {
		return AuthResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out AuthResponse
	if err := c.doJSON(req, "", &out); err != nil {
		return AuthResponse{}, err
	}
	if out.Token == "" {
		return AuthResponse{}, fmt.Errorf("cleanapi: %s: response has no token", path)
	}
	return out, nil
}

// Signup creates an account.
func (c *Client) Signup(ctx context.Context, creds Credentials) (AuthResponse, error) {
	return c.postCredentials(ctx, "/api/auth/signup", creds)
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, creds Credentials) (AuthResponse, error) {
	return c.postCredentials(ctx, "/api/auth/login", creds)
}

// Me resolves the user behind token.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/auth/me"), nil)
	if err != nil {
		return User{}, err
	}
	var out struct {
		User *User `json:"user"`
	}
	if err := c.doJSON(req, token, &out); err != nil {
		return User{}, err
	}
	if out.User == nil {
		return User{}, fmt.Errorf("cleanapi: /api/auth/me: response has no user")
	}
	return *out.User, nil
}

// Preview runs the ETL preview for file.
func (c *Client) Preview(ctx context.Context, file File, lang string, limit int) (ETLPreview, error) {
	if lang == "" {
		lang = DefaultLang
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(max(limit, MinLimit), MaxLimit)

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("lang", lang)
	req, err := c.postMultipart(ctx, c.url("/api/preview")+"?"+q.Encode(), file, nil)
	if err != nil {
		return ETLPreview{}, err
	}
	var out ETLPreview
	if err := c.doJSON(req, c.bearer(), &out); err != nil {
		return ETLPreview{}, err
	}
	return out, nil
}

// FileResponse is a successful download. The caller owns Body.
type FileResponse struct {
	ContentDisposition string
	ContentType        string
	Body               io.ReadCloser
}

func (c *Client) fileResponse(req *http.Request) (*FileResponse, error) {
	resp, err := c.do(req, c.bearer())
	if err != nil {
		return nil, err
	}
	return &FileResponse{
		ContentDisposition: resp.Header.Get("Content-Disposition"),
		ContentType:        resp.Header.Get("Content-Type"),
		Body:               resp.Body,
	}, nil
}

// Clean downloads the cleaned ETL file.
func (c *Client) Clean(ctx context.Context, file File, lang string) (*FileResponse, error) {
	if lang == "" {
		lang = DefaultLang
	}
	q := url.Values{}
	q.Set("lang", lang)
	req, err := c.postMultipart(ctx, c.url("/api/clean")+"?"+q.Encode(), file, nil)
	if err != nil {
		return nil, err
	}
	return c.fileResponse(req)
}

func reportFields(p ReportParams, withLimits bool) [][2]string {
	asset := p.Asset
	if asset == "" {
		asset = AssetUSD
	}
	fields := [][2]string{
		{"asset", asset},
		{"include_bot", strconv.FormatBool(p.IncludeBot)},
		{"coins", strings.Join(p.Coins, ",")},
	}
	if withLimits {
		rows, cols := p.LimitRows, p.LimitCols
		if rows <= 0 {
			rows = DefaultLimitRows
		}
		if cols <= 0 {
			cols = DefaultLimitCols
		}
		fields = append(fields,
			[2]string{"limit_rows", strconv.Itoa(rows)},
			[2]string{"limit_cols", strconv.Itoa(cols)},
		)
	}
	return fields
}

// ReportPreview runs the report transposer preview.
func (c *Client) ReportPreview(ctx context.Context, file File, p ReportParams) (ReportPreview, error) {
	req, err := c.postMultipart(ctx, c.reportURL("/api/report/preview"), file, reportFields(p, true))
	if err != nil {
		return ReportPreview{}, err
	}
	var out ReportPreview
	if err := c.doJSON(req, c.bearer(), &out); err != nil {
		return ReportPreview{}, err
	}
	return out, nil
}

// ReportClean downloads the transposed workbook.
func (c *Client) ReportClean(ctx context.Context, file File, p ReportParams) (*FileResponse, error) {
	req, err := c.postMultipart(ctx, c.reportURL("/api/report/clean"), file, reportFields(p, false))
	if err != nil {
		return nil, err
	}
	return c.fileResponse(req)
}
