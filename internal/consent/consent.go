package consent

import (
	"context"
	"fmt"
	"strconv"

	"github.com/lehigh-university-libraries/artscan/internal/analytics"
)

// FlagName is the preference key holding the visitor's consent
const FlagName = "museum_privacy_consent"

// Store persists per-device preferences
type Store interface {
	Preference(ctx context.Context, deviceID, name string) (string, bool, error)
	SetPreference(ctx context.Context, deviceID, name, value string) error
}

// Tracker records analytics events
type Tracker interface {
	Track(name string, payload map[string]any)
}

// Service decides whether a device still has to be shown the privacy notice
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Required reports whether the consent prompt must be shown. A missing or
// false flag requires the prompt.
func (s *Service) Required(ctx context.Context, deviceID string) (bool, error) {
	value, ok, err := s.store.Preference(ctx, deviceID, FlagName)
	if err != nil {
		return true, fmt.Errorf("failed to read consent: %w", err)
	}
	if !ok {
		return true, nil
	}
	accepted, err := strconv.ParseBool(value)
	if err != nil {
		return true, nil
	}
	return !accepted, nil
}

// Load is called when the app starts for a device and records which branch was taken
func (s *Service) Load(ctx context.Context, deviceID string, tr Tracker) (bool, error) {
	required, err := s.Required(ctx, deviceID)
	if required {
		tr.Track(analytics.EventAppLoadNoConsent, nil)
	} else {
		tr.Track(analytics.EventAppLoadWithConsent, nil)
	}
	return required, err
}

// Accept persists consent so later loads skip the prompt
func (s *Service) Accept(ctx context.Context, deviceID string, tr Tracker) error {
	if err := s.store.SetPreference(ctx, deviceID, FlagName, "true"); err != nil {
		return fmt.Errorf("failed to save consent: %w", err)
	}
	tr.Track(analytics.EventPrivacyConsentAccept, nil)
	return nil
}
