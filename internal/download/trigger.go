// Package download saves the cleaned files produced by the remote service.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dgnsrekt/eglc_companion/internal/cleanapi"
	"github.com/google/uuid"
)

var filenameRe = regexp.MustCompile(`filename="([^"]*)"`)

// Filename extracts the quoted filename from a Content-Disposition value.
// Missing, empty or unsafe names fall back to def.
func Filename(contentDisposition, def string) string {
	m := filenameRe.FindStringSubmatch(contentDisposition)
	if m == nil {
		return def
	}
	name := strings.TrimSpace(m[1])
	// Only the last path element of a server-supplied name is used.
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return def
	}
	return name
}

// Fetch performs the download request.
type Fetch func(ctx context.Context) (*cleanapi.FileResponse, error)

// Trigger runs one-shot downloads into a Store.
type Trigger struct {
	store *Store
	now   func() time.Time
}

func NewTrigger(store *Store) *Trigger {
	return &Trigger{store: store, now: time.Now}
}

// Store returns the backing store.
func (t *Trigger) Store() *Store { return t.store }

// Download fetches the file and saves it under the name the service
// suggests, or def. The response body is always closed.
func (t *Trigger) Download(ctx context.Context, flow, def string, fetch Fetch) (Meta, error) {
	resp, err := fetch(ctx)
	if err != nil {
		return Meta{}, err
	}
	defer resp.Body.Close()

	meta := Meta{
		ID:          uuid.NewString(),
		Flow:        flow,
		Name:        Filename(resp.ContentDisposition, def),
		ContentType: resp.ContentType,
		CreatedAt:   t.now().UTC(),
	}
	saved, err := t.store.save(meta, resp.Body)
	if err != nil {
		return Meta{}, fmt.Errorf("%s download: %w", flow, err)
	}
	slog.Info("download saved", "flow", flow, "name", saved.Name, "size_bytes", saved.SizeBytes)
	return saved, nil
}
