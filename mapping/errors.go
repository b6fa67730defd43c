package mapping

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential is returned before any remote call when the model
	// endpoint requires a credential that is not configured.
	ErrMissingCredential = errors.New("missing model credential")

	// ErrInvalidMode is returned for an unknown matching mode.
	ErrInvalidMode = errors.New("invalid matching mode")
)

// ConfigurationError reports a match call that cannot start.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// TransportFailure reports a failed or unparseable remote invocation.
// The whole match call fails with it.
type TransportFailure struct {
	Batch int
	Err   error
}

func (e *TransportFailure) Error() string {
	return fmt.Sprintf("model invocation failed (batch %d): %v", e.Batch, e.Err)
}

func (e *TransportFailure) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// IsTransportFailure reports whether err is a TransportFailure.
func IsTransportFailure(err error) bool {
	var tf *TransportFailure
	return errors.As(err, &tf)
}
