// Package views holds the ETL and report screens: the chosen parameters,
// the live preview and the download action for each.
package views

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgnsrekt/eglc_companion/internal/cleanapi"
)

// MaxFileSize bounds an uploaded or referenced spreadsheet.
const MaxFileSize = 64 << 20

// FileInfo describes the selected file without its contents.
type FileInfo struct {
	Name   string `json:"name"`
	Size   int    `json:"size"`
	Source string `json:"source,omitempty"`
}

type selectedFile struct {
	file cleanapi.File
	info FileInfo
}

func newSelectedFile(name string, data []byte, source string) (*selectedFile, error) {
	name = strings.TrimSpace(filepath.Base(name))
	if name == "" || name == "." || name == "/" {
		return nil, newError(CodeValidation, "file name is required", nil)
	}
	if len(data) == 0 {
		return nil, newError(CodeValidation, "file is empty", nil)
	}
	if len(data) > MaxFileSize {
		return nil, newError(CodeValidation, fmt.Sprintf("file exceeds %d bytes", MaxFileSize), nil)
	}
	return &selectedFile{
		file: cleanapi.File{Name: name, Data: data},
		info: FileInfo{Name: name, Size: len(data), Source: source},
	}, nil
}

// ReadLocalFile loads a spreadsheet from disk.
func ReadLocalFile(path string) (string, []byte, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil, newError(CodeValidation, "path is required", nil)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, newError(CodeNotFound, "file not found: "+path, err)
		}
		return "", nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return "", nil, fmt.Errorf("read %s: %w", path, err)
	}
	return filepath.Base(path), data, nil
}
