package config

import "fmt"

// ConfigNotFoundError is returned when no descriptor exists for a source.
type ConfigNotFoundError struct {
	Source string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("no configuration for source %q", e.Source)
}

// ConfigParseError is returned when a descriptor is malformed.
type ConfigParseError struct {
	Source string
	Reason string
	Err    error
}

func (e *ConfigParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse configuration for %q: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse configuration for %q: %s", e.Source, e.Reason)
}

func (e *ConfigParseError) Unwrap() error { return e.Err }
