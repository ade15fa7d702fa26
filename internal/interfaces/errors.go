package interfaces

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every service. Callers match with errors.Is.
var (
	// ErrConfigurationMissing marks a required credential or endpoint that is absent.
	// It is never retried and is reported distinctly (HTTP 503).
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrUpstreamUnavailable marks a network or service failure against an external collaborator.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMalformedInput marks a client request or payload that is missing required fields or fails to parse.
	ErrMalformedInput = errors.New("malformed input")

	// ErrIndexNotFound is returned when the named vector index does not exist.
	// An existing but empty index is not an error.
	ErrIndexNotFound = errors.New("vector index not found")

	// ErrRunInProgress is returned when an indexing run is requested while one is active.
	ErrRunInProgress = errors.New("indexing run already in progress")
)

// Configuration-missing specialisations, one per collaborator.
var (
	ErrProviderUnavailable      = fmt.Errorf("embedding provider unavailable: %w", ErrConfigurationMissing)
	ErrIndexUnavailable         = fmt.Errorf("vector index unavailable: %w", ErrConfigurationMissing)
	ErrCompletionUnavailable    = fmt.Errorf("completion service unavailable: %w", ErrConfigurationMissing)
	ErrContentSourceUnavailable = fmt.Errorf("content source unavailable: %w", ErrConfigurationMissing)
)

// ErrMalformedToolArguments is returned when a tool invocation carries arguments that are not valid JSON.
var ErrMalformedToolArguments = fmt.Errorf("malformed tool arguments: %w", ErrMalformedInput)

// UpstreamError wraps cause as an ErrUpstreamUnavailable raised while talking to service.
func UpstreamError(service string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", service, ErrUpstreamUnavailable, cause)
}

// IsConfigurationMissing reports whether err is (or wraps) ErrConfigurationMissing.
func IsConfigurationMissing(err error) bool {
	return errors.Is(err, ErrConfigurationMissing)
}

// IsMalformedInput reports whether err is (or wraps) ErrMalformedInput.
func IsMalformedInput(err error) bool {
	return errors.Is(err, ErrMalformedInput)
}
