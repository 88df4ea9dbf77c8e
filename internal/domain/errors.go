package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when a required interview selection is missing.
	ErrConfiguration = errors.New("interview configuration incomplete")
	// ErrValidation is returned for user input that fails local checks.
	ErrValidation = errors.New("validation failed")
	// ErrMissingCredential is returned when no oracle credential is configured.
	ErrMissingCredential = errors.New("AI credential is not configured")
	// ErrUnsupported is returned when speech capture is unavailable.
	ErrUnsupported = errors.New("speech capture is not supported")
	// ErrPermission is returned when microphone access is denied.
	ErrPermission = errors.New("microphone permission denied")
	// ErrPersistenceParse marks corrupt stored data. It is recovered from.
	ErrPersistenceParse = errors.New("stored data could not be parsed")
)

// UpstreamError reports a non-success response from an external service.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

// IsVoiceUnavailable reports whether err disables the voice input path.
func IsVoiceUnavailable(err error) bool {
	return errors.Is(err, ErrUnsupported) || errors.Is(err, ErrPermission)
}
