package extraction

import (
	"errors"
	"fmt"
)

// ErrMissingCredentials is wrapped by ConfigurationError when no API key is set
var ErrMissingCredentials = errors.New("missing AI credentials")

// ExtractionFailure reports that a receipt could not be turned into an invoice.
// It is always retryable by re-uploading.
type ExtractionFailure struct {
	Reason string
	Err    error
}

// NewExtractionFailure creates a failure with an optional cause
func NewExtractionFailure(reason string, cause error) *ExtractionFailure {
	return &ExtractionFailure{Reason: reason, Err: cause}
}

func (f *ExtractionFailure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("extraction failed: %s: %v", f.Reason, f.Err)
	}
	return fmt.Sprintf("extraction failed: %s", f.Reason)
}

func (f *ExtractionFailure) Unwrap() error {
	return f.Err
}

// Retryable is always true; the user may upload again
func (f *ExtractionFailure) Retryable() bool {
	return true
}

// ConfigurationError is returned before any network call when the extractor
// is not configured
type ConfigurationError struct {
	Setting string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s is not set", e.Setting)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrMissingCredentials
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// IsExtractionFailure reports whether err is or wraps an ExtractionFailure
func IsExtractionFailure(err error) bool {
	var failure *ExtractionFailure
	return errors.As(err, &failure)
}
