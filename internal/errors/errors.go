// Package apperrors provides domain-specific error types for whatsrunning.
// These error types carry the runtime operation and failure class so callers
// can decide whether a failure is fatal for a snapshot or only degrades a field.
package apperrors

import (
	"errors"
	"fmt"
)

// ErrDeadlineExceeded reports that a snapshot did not complete within its
// aggregate deadline.
var ErrDeadlineExceeded = errors.New("snapshot deadline exceeded")

// Kind classifies a runtime failure.
type Kind int

// Runtime failure classes.
const (
	// RuntimeUnavailable means the container runtime could not be reached.
	RuntimeUnavailable Kind = iota + 1
	// StatsUnavailable means counters for one container could not be read.
	StatsUnavailable
	// AttributesUnavailable means metadata for one container could not be read.
	AttributesUnavailable
)

func (k Kind) String() string {
	switch k {
	case RuntimeUnavailable:
		return "runtime unavailable"
	case StatsUnavailable:
		return "stats unavailable"
	case AttributesUnavailable:
		return "attributes unavailable"
	default:
		return "unknown"
	}
}

// ConfigurationError represents configuration-related errors.
// It includes the configuration file path and specific key that caused the error.
type ConfigurationError struct {
	ConfigPath string // Path to the configuration file
	Key        string // Configuration key that caused the error
	Err        error  // Underlying error
}

// Error implements the error interface for ConfigurationError.
func (e *ConfigurationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("configuration error in %s (key: %s): %v", e.ConfigPath, e.Key, e.Err)
	}
	return fmt.Sprintf("configuration error in %s: %v", e.ConfigPath, e.Err)
}

// Unwrap returns the underlying error for error wrapping chains.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// RuntimeError represents a failed call to the container runtime.
type RuntimeError struct {
	Kind        Kind   // Failure class
	Operation   string // Operation that failed (e.g., "ContainerList", "ContainerStats")
	ContainerID string // Container the call was about, empty for listing
	Err         error  // Underlying error
}

// Error implements the error interface for RuntimeError.
func (e *RuntimeError) Error() string {
	if e.ContainerID != "" {
		return fmt.Sprintf("%s: docker %s failed for container %s: %v", e.Kind, e.Operation, e.ContainerID, e.Err)
	}
	return fmt.Sprintf("%s: docker %s failed: %v", e.Kind, e.Operation, e.Err)
}

// Unwrap returns the underlying error for error wrapping chains.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// ProbeError represents a network-level failure while probing a port.
type ProbeError struct {
	URL string // Probed URL
	Err error  // Underlying error
}

// Error implements the error interface for ProbeError.
func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s failed: %v", e.URL, e.Err)
}

// Unwrap returns the underlying error for error wrapping chains.
func (e *ProbeError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a RuntimeError of the given kind.
func IsKind(err error, kind Kind) bool {
	var rtErr *RuntimeError
	return errors.As(err, &rtErr) && rtErr.Kind == kind
}
