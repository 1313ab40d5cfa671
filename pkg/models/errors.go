package models

import (
	"errors"
	"fmt"
)

// ErrConfiguration is matched by every ConfigurationError
var ErrConfiguration = errors.New("stft configuration error")

// ConfigurationError reports a zero or inconsistent STFT configuration
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("stft configuration: %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}
