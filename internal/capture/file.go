package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"

	_ "golang.org/x/image/webp"

	"github.com/lehigh-university-libraries/artscan/internal/images"
	"github.com/lehigh-university-libraries/artscan/internal/models"
)

// DefaultMaxBytes is the largest still image accepted from a visitor
const DefaultMaxBytes = 10 << 20

var (
	// ErrTooLarge is returned when an image exceeds the size limit
	ErrTooLarge = errors.New("image is too large")
	// ErrUnsupported is returned for bytes that are not a supported image
	ErrUnsupported = errors.New("unsupported image format")
)

// FileSource turns visitor-chosen files into encoded images.
// It keeps no state between calls, so the same file may be submitted repeatedly.
type FileSource struct {
	MaxBytes int64
	Fetcher  *images.Fetcher
}

// NewFileSource creates a FileSource with the given limit (DefaultMaxBytes when <= 0)
func NewFileSource(maxBytes int64) *FileSource {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	fetcher := images.NewFetcher()
	fetcher.MaxBytes = maxBytes
	return &FileSource{MaxBytes: maxBytes, Fetcher: fetcher}
}

// Decode reads an uploaded image and normalizes it for identification
func (s *FileSource) Decode(r io.Reader, filename string) (models.Image, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.MaxBytes+1))
	if err != nil {
		return models.Image{}, fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if int64(len(data)) > s.MaxBytes {
		return models.Image{}, fmt.Errorf("%s: %w", filename, ErrTooLarge)
	}

	img, err := Normalize(data)
	if err != nil {
		return models.Image{}, fmt.Errorf("%s: %w", filename, err)
	}
	return img, nil
}

// DecodeFile reads an image from disk
func (s *FileSource) DecodeFile(path string) (models.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Image{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	return s.Decode(f, path)
}

// FromURL downloads an image and normalizes it
func (s *FileSource) FromURL(ctx context.Context, url string) (models.Image, error) {
	data, _, err := s.Fetcher.Fetch(ctx, url)
	if err != nil {
		return models.Image{}, err
	}

	img, err := Normalize(data)
	if err != nil {
		return models.Image{}, fmt.Errorf("%s: %w", url, err)
	}
	return img, nil
}

// Normalize sniffs the content type, checks the bytes decode as an image and
// converts formats the vision models do not take directly to JPEG.
func Normalize(data []byte) (models.Image, error) {
	if len(data) == 0 {
		return models.Image{}, fmt.Errorf("empty image: %w", ErrUnsupported)
	}

	mimeType := http.DetectContentType(data)
	switch mimeType {
	case "image/jpeg", "image/png", "image/webp":
		if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
			return models.Image{}, fmt.Errorf("failed to decode %s: %w", mimeType, ErrUnsupported)
		}
		return models.Image{Data: data, MIMEType: mimeType}, nil
	case "image/gif":
		return gifToJPEG(data)
	default:
		return models.Image{}, fmt.Errorf("%s: %w", mimeType, ErrUnsupported)
	}
}

func gifToJPEG(data []byte) (models.Image, error) {
	src, err := gif.Decode(bytes.NewReader(data))
	if err != nil {
		return models.Image{}, fmt.Errorf("failed to decode gif: %w", ErrUnsupported)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 90}); err != nil {
		return models.Image{}, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return models.Image{Data: buf.Bytes(), MIMEType: "image/jpeg"}, nil
}
