package credentials

import (
	"errors"
	"fmt"
)

// Sentinel errors for credential loading.
var (
	// ErrNoUsableCertificate indicates the configured certificate could not
	// be loaded and no fallback was available.
	ErrNoUsableCertificate = errors.New("no usable certificate")

	// ErrNoUsableKey indicates the configured private key could not be
	// loaded and no fallback was available.
	ErrNoUsableKey = errors.New("no usable private key")

	// ErrBadDHParams indicates the DH parameter material could not be parsed.
	ErrBadDHParams = errors.New("invalid DH parameters")
)

// ConfigError reports credential material that is missing or unreadable
// with no usable fallback. It is fatal at process startup.
type ConfigError struct {
	Path    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Path != "" {
		if e.Cause != nil {
			return fmt.Sprintf("credential config error at %s: %s: %v", e.Path, e.Message, e.Cause)
		}
		return fmt.Sprintf("credential config error at %s: %s", e.Path, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("credential config error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("credential config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(path, message string) *ConfigError {
	return &ConfigError{Path: path, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(path, message string, cause error) *ConfigError {
	return &ConfigError{Path: path, Message: message, Cause: cause}
}
