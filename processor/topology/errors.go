package topology

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks fatal setup failures: a missing or unreadable
	// repository root, or an invalid rule set. No output is produced.
	ErrConfiguration = errors.New("configuration error")

	// ErrExtraction marks a per-file read or parse failure. The file still
	// counts toward areas and subsystems but contributes no evidence.
	ErrExtraction = errors.New("extraction error")

	// ErrEncoding marks file content that is not valid UTF-8. Recovered like
	// ErrExtraction.
	ErrEncoding = errors.New("encoding error")
)

// ConfigurationError wraps the cause of a fatal configuration failure.
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is reports ErrConfiguration as a match so callers can use errors.Is.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
