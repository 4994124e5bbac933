package guide

import (
	"errors"

	"github.com/lehigh-university-libraries/artscan/internal/capture"
	"github.com/lehigh-university-libraries/artscan/internal/models"
)

// View is the screen the visitor is on
type View string

const (
	ViewScanning View = "scanning"
	ViewLoading  View = "loading"
	ViewDetail   View = "detail"
	ViewError    View = "error"
)

// ErrorKind says why the machine is in the error view
type ErrorKind string

const (
	ErrorNotIdentified        ErrorKind = "not_identified"
	ErrorIdentificationFailed ErrorKind = "identification_failed"
	ErrorDataInconsistency    ErrorKind = "data_inconsistency"
)

// Message keys for the error view, resolved through the string tables
const (
	MessageNotIdentified = "scan_failed_message_not_identified"
	MessageGeneric       = "scan_failed_message_generic"
)

var (
	// ErrNotApplicable is returned for an event the current view does not accept
	ErrNotApplicable = errors.New("event not applicable in current state")
	// ErrNotFound is returned when a selected artwork is not in the catalog
	ErrNotFound = errors.New("artwork not found")
)

// State is an immutable snapshot of a Machine
type State struct {
	View         View                 `json:"view"`
	Active       *models.Artwork      `json:"active,omitempty"`
	Related      []models.Artwork     `json:"related,omitempty"`
	ErrorKind    ErrorKind            `json:"error_kind,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	Camera       capture.CameraStatus `json:"camera"`
	Narrating    bool                 `json:"narrating"`
	Version      uint64               `json:"version"`
}
