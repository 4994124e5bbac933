package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/lehigh-university-libraries/artscan/internal/capture"
	"github.com/lehigh-university-libraries/artscan/internal/guide"
	"github.com/lehigh-university-libraries/artscan/internal/models"
)

// multipart framing allowance on top of the image limit
const uploadOverhead = 1 << 20

// HandleUpload identifies a visitor-chosen photo: a multipart "files" or
// "file" part, or JSON {"image_url": ...}.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	session, ok := h.getSessionOrError(w, r)
	if !ok {
		return
	}

	// reject before reading the body when the visitor is not on the scanner
	if session.Machine.Snapshot().View != guide.ViewScanning {
		writeTransitionError(w, guide.ErrNotApplicable)
		return
	}

	var (
		img models.Image
		err error
	)
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		img, err = h.readURLUpload(r)
	} else {
		img, err = h.readFileUpload(w, r)
	}
	if err != nil {
		writeUploadError(w, err)
		return
	}

	done, err := session.Machine.Submit(img)
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	h.respond(w, r, session, done)
}

type badRequest struct{ msg string }

func (e badRequest) Error() string { return e.msg }

func (h *Handler) readURLUpload(r *http.Request) (models.Image, error) {
	var request struct {
		ImageURL string `json:"image_url"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&request); err != nil {
		return models.Image{}, badRequest{"Invalid JSON: " + err.Error()}
	}
	if request.ImageURL == "" {
		return models.Image{}, badRequest{"image_url is required"}
	}
	return h.opts.Files.FromURL(r.Context(), request.ImageURL)
}

func (h *Handler) readFileUpload(w http.ResponseWriter, r *http.Request) (models.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.Files.MaxBytes+uploadOverhead)

	file, header, err := r.FormFile("files")
	if err != nil {
		file, header, err = r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return models.Image{}, capture.ErrTooLarge
			}
			return models.Image{}, badRequest{"Failed to read file: " + err.Error()}
		}
	}
	defer file.Close()

	return h.opts.Files.Decode(file, header.Filename)
}

func writeUploadError(w http.ResponseWriter, err error) {
	var br badRequest
	switch {
	case errors.As(err, &br):
		writeError(w, http.StatusBadRequest, br.msg)
	case errors.Is(err, capture.ErrTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "File too large")
	default:
		writeError(w, http.StatusBadRequest, "Failed to process image: "+err.Error())
	}
}
