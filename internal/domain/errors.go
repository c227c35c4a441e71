// Package domain provides core domain models and error types shared by the
// simulation engine and its callers.
package domain

import "fmt"

// ConfigurationError reports invalid or inconsistent configuration detected at
// construction time. It is fatal: no simulation runs with a bad configuration.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// NewConfigurationError creates a ConfigurationError for the given field.
func NewConfigurationError(field, reason string) error {
	return &ConfigurationError{Field: field, Reason: reason}
}

// InputError reports malformed or out-of-range period input. It is fatal for
// the run it occurs in but does not affect other runs.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// NewInputError creates an InputError for the given field.
func NewInputError(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}

// InvariantViolation reports an internal computation that produced an
// impossible state (negative shares, credit cap exceedance). It signals a
// defect in a sizing formula and is surfaced rather than clamped.
type InvariantViolation struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violated: %s: %s", e.Invariant, e.Detail)
}

// NewInvariantViolation creates an InvariantViolation.
func NewInvariantViolation(invariant, detail string) error {
	return &InvariantViolation{Invariant: invariant, Detail: detail}
}
