package download

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

var idRe = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

const historyDir = ".history"

// Meta describes a saved download.
type Meta struct {
	ID          string    `json:"id"`
	Flow        string    `json:"flow"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store saves downloaded files into a directory and keeps a metadata
// sidecar per file.
type Store struct {
	dir string
	mu  sync.RWMutex
}

// NewStore creates a Store and ensures the directories exist.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, historyDir), 0o755); err != nil {
		return nil, fmt.Errorf("download store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir is the download directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) validateID(id string) error {
	if !idRe.MatchString(id) {
		return fmt.Errorf("invalid download id: %q", id)
	}
	return nil
}

// save streams body into a temp file and renames it to a free name derived
// from meta.Name. The temp file is always removed on failure.
func (s *Store) save(meta Meta, body io.Reader) (Meta, error) {
	if err := s.validateID(meta.ID); err != nil {
		return Meta{}, err
	}

	tmp, err := os.CreateTemp(s.dir, ".download-*")
	if err != nil {
		return Meta{}, fmt.Errorf("download store: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	n, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmpPath)
		if copyErr != nil {
			return Meta{}, fmt.Errorf("download store: write body: %w", copyErr)
		}
		return Meta{}, fmt.Errorf("download store: close temp: %w", closeErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.freePath(meta.Name)
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return Meta{}, fmt.Errorf("download store: rename: %w", err)
	}
	meta.Name = filepath.Base(target)
	meta.Path = target
	meta.SizeBytes = n

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return meta, fmt.Errorf("download store: marshal meta: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), data, 0o644); err != nil {
		slog.Warn("download metadata write failed", "id", meta.ID, "error", err)
	}
	return meta, nil
}

// freePath returns dir/name, or "name (n).ext" when taken. Callers hold mu.
func (s *Store) freePath(name string) string {
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		path = filepath.Join(s.dir, stem+" ("+strconv.Itoa(i)+")"+ext)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
	}
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.dir, historyDir, id+".json")
}

// Get reads download metadata by ID.
func (s *Store) Get(id string) (Meta, error) {
	if err := s.validateID(id); err != nil {
		return Meta{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("download not found: %s", id)
		}
		return Meta{}, fmt.Errorf("download store: read meta: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return Meta{}, fmt.Errorf("download store: unmarshal meta: %w", err)
	}
	return meta, nil
}

// List returns saved downloads, newest first.
func (s *Store) List() ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches, err := filepath.Glob(filepath.Join(s.dir, historyDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("download store: glob: %w", err)
	}

	metas := make([]Meta, 0, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var meta Meta
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}
