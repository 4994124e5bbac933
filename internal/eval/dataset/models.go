package dataset

import (
	"strings"

	"github.com/lehigh-university-libraries/artscan/internal/identify"
)

// Sample is one labelled photo. ExpectedID is a catalog id, or UNKNOWN for a
// photo of something that is not in the catalog.
type Sample struct {
	Image      string `json:"image" parquet:"image"` // path or http(s) URL
	ExpectedID string `json:"expected_id" parquet:"expected_id"`
	Note       string `json:"note,omitempty" parquet:"note,optional"`
}

// Negative reports whether the photo should not be matched to anything
func (s Sample) Negative() bool {
	return s.ExpectedID == "" || strings.EqualFold(s.ExpectedID, identify.UnknownSentinel)
}

// Remote reports whether Image must be downloaded
func (s Sample) Remote() bool {
	return strings.HasPrefix(s.Image, "http://") || strings.HasPrefix(s.Image, "https://")
}
