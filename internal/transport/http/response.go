package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/render"

	apierrors "riskdash/internal/errors"
)

// defaultMultipartMemory is held in memory before spilling to disk
const defaultMultipartMemory = 32 << 20

// Response is the envelope of every successful JSON response
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

func respond(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	render.Status(r, status)
	render.JSON(w, r, Response{Status: "success", Data: data})
}

// uploadedFile reads the multipart "file" field
func uploadedFile(r *http.Request) (string, []byte, error) {
	if err := r.ParseMultipartForm(defaultMultipartMemory); err != nil {
		return "", nil, bodyError(err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil, apierrors.ErrMissingFile
		}
		return "", nil, bodyError(err)
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		return "", nil, bodyError(err)
	}
	return header.Filename, content, nil
}

func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierrors.PayloadTooLarge(tooLarge.Limit)
	}
	return apierrors.InvalidRequestWithError(err)
}
