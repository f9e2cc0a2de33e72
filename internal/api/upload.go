package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/dgnsrekt/eglc_companion/internal/views"
)

// uploadOverhead leaves room for multipart framing around the file part.
const uploadOverhead = 1 << 20

// readUpload extracts the "file" part of a multipart request.
func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, views.MaxFileSize+uploadOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, &views.CodedError{Code: views.CodeValidation, Message: "file is too large", Cause: err}
		}
		return "", nil, &views.CodedError{Code: views.CodeValidation, Message: "expected a multipart form with a file field", Cause: err}
	}
	defer r.MultipartForm.RemoveAll()

	f, hdr, err := r.FormFile("file")
	if err != nil {
		return "", nil, &views.CodedError{Code: views.CodeValidation, Message: "file field is required", Cause: err}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", nil, err
	}
	return hdr.Filename, data, nil
}
