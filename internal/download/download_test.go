package download

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dgnsrekt/eglc_companion/internal/cleanapi"
)

type trackedBody struct {
	io.Reader
	closed bool
}

func (b *trackedBody) Close() error {
	b.closed = true
	return nil
}

func TestFilename(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{`attachment; filename="gl_2024_CLEAN.csv"`, "gl_2024_CLEAN.csv"},
		{"", "CLEAN.csv"},
		{`attachment`, "CLEAN.csv"},
		{`attachment; filename=unquoted.csv`, "CLEAN.csv"},
		{`attachment; filename=""`, "CLEAN.csv"},
		{`attachment; filename="../../etc/passwd"`, "passwd"},
		{`attachment; filename=".."`, "CLEAN.csv"},
	}
	for _, tc := range cases {
		if got := Filename(tc.header, "CLEAN.csv"); got != tc.want {
			t.Fatalf("Filename(%q) = %q; want %q", tc.header, got, tc.want)
		}
	}
}

func TestDownloadWithoutDispositionUsesDefault(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	trigger := NewTrigger(store)
	body := &trackedBody{Reader: strings.NewReader("xlsx-bytes")}

	meta, err := trigger.Download(context.Background(), "report", cleanapi.DefaultReportName, func(context.Context) (*cleanapi.FileResponse, error) {
		return &cleanapi.FileResponse{Body: body}, nil
	})
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if meta.Name != "report_CLEAN.xlsx" {
		t.Fatalf("Name = %q; want report_CLEAN.xlsx", meta.Name)
	}
	if !body.closed {
		t.Fatal("response body not closed")
	}
	data, err := os.ReadFile(filepath.Join(store.Dir(), "report_CLEAN.xlsx"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "xlsx-bytes" || meta.SizeBytes != int64(len("xlsx-bytes")) {
		t.Fatalf("saved %q (%d bytes); want xlsx-bytes", data, meta.SizeBytes)
	}

	leftovers, _ := filepath.Glob(filepath.Join(store.Dir(), ".download-*"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestDownloadKeepsExistingFiles(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	trigger := NewTrigger(store)
	fetch := func(context.Context) (*cleanapi.FileResponse, error) {
		return &cleanapi.FileResponse{
			ContentDisposition: `attachment; filename="gl_CLEAN.csv"`,
			Body:               io.NopCloser(strings.NewReader("a,b\n")),
		}, nil
	}

	first, err := trigger.Download(context.Background(), "etl", cleanapi.DefaultCleanName, fetch)
	if err != nil {
		t.Fatalf("first Download() error = %v", err)
	}
	second, err := trigger.Download(context.Background(), "etl", cleanapi.DefaultCleanName, fetch)
	if err != nil {
		t.Fatalf("second Download() error = %v", err)
	}
	if first.Name != "gl_CLEAN.csv" || second.Name != "gl_CLEAN (1).csv" {
		t.Fatalf("names = %q, %q; want gl_CLEAN.csv, gl_CLEAN (1).csv", first.Name, second.Name)
	}

	metas, err := store.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("List() len = %d; want 2", len(metas))
	}
	got, err := store.Get(second.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Flow != "etl" || got.Path != second.Path {
		t.Fatalf("Get() = %+v; want %+v", got, second)
	}
	if _, err := store.Get("not-an-id"); err == nil {
		t.Fatal("Get(not-an-id) error = nil; want invalid id")
	}
}

func TestDownloadFailureSurfacesServiceMessage(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	trigger := NewTrigger(store)
	_, err = trigger.Download(context.Background(), "report", cleanapi.DefaultReportName, func(context.Context) (*cleanapi.FileResponse, error) {
		return nil, &cleanapi.APIError{Status: 400, Detail: "Report clean error: no coins"}
	})
	var apiErr *cleanapi.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Download() error = %v; want *cleanapi.APIError", err)
	}
	if got := cleanapi.Message(err); got != "Report clean error: no coins" {
		t.Fatalf("Message() = %q", got)
	}
	metas, _ := store.List()
	if len(metas) != 0 {
		t.Fatalf("List() = %v; want nothing saved", metas)
	}
}
