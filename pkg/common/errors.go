package common

import (
	"errors"
	"fmt"
)

// ConfigurationError means the batch cannot run at all: no AI provider
// or model could be resolved. It is surfaced before any LLM call.
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("extraction configuration incomplete: missing %s", e.Missing)
}

// NotFoundError marks a missing prompt, provider, node or entity. Fatal
// for the operation that required it, not for the batch.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ParseError means an LLM response could not be decoded into nodes and
// edges after every fallback strategy. The owning segment is marked
// errored; the batch continues.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse extraction response: %s", e.Reason)
}

// ConflictError marks a duplicate entity id or canonical name on create.
// Surfaced to the caller, never retried.
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %q already exists", e.Field, e.Value)
}

// MergeFailure records a failed node merge. Collected into a result's
// errors list; other merge groups continue.
type MergeFailure struct {
	TargetID string
	Err      error
}

func (e *MergeFailure) Error() string {
	return fmt.Sprintf("merge into node %s failed: %v", e.TargetID, e.Err)
}

func (e *MergeFailure) Unwrap() error { return e.Err }

// IsConflict reports whether err wraps a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err wraps a NotFoundError.
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsParseError reports whether err wraps a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsConfiguration reports whether err wraps a ConfigurationError.
func IsConfiguration(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
