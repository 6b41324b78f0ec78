// Package errors provides the error kinds shared by the ScoreShift packages.
//
// Transposition failures are reported through four sentinels
// (ErrMalformedPitch, ErrUnknownKeySignature, ErrMissingKeySignature,
// ErrUnsupportedAlteration). The structured error types below carry the
// offending value and unwrap to the matching sentinel, so callers can use
// errors.Is without caring about the concrete type.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
)

// Transposition errors.
var (
	// ErrMalformedPitch indicates a pitch element with an invalid step or missing sub-fields.
	ErrMalformedPitch = errors.New("malformed pitch")
	// ErrUnknownKeySignature indicates a fifths value outside the supported key table.
	ErrUnknownKeySignature = errors.New("unknown key signature")
	// ErrMissingKeySignature indicates a document without any key signature.
	ErrMissingKeySignature = errors.New("missing key signature")
	// ErrUnsupportedAlteration indicates an alter value with no accidental spelling.
	ErrUnsupportedAlteration = errors.New("unsupported alteration")
)

// MalformedPitchError describes a pitch that cannot be encoded.
type MalformedPitchError struct {
	Field   string // "step", "alter" or "octave"
	Value   string // Raw text of the field, empty when missing
	Message string
}

func (e *MalformedPitchError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("malformed pitch: %s %q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("malformed pitch: %s: %s", e.Field, e.Message)
}

func (e *MalformedPitchError) Unwrap() error {
	return ErrMalformedPitch
}

// UnknownKeySignatureError reports a fifths value with no key table row.
type UnknownKeySignatureError struct {
	Value string
}

func (e *UnknownKeySignatureError) Error() string {
	return fmt.Sprintf("unknown key signature: fifths %q", e.Value)
}

func (e *UnknownKeySignatureError) Unwrap() error {
	return ErrUnknownKeySignature
}

// UnsupportedAlterationError reports an alter value that has no accidental text.
type UnsupportedAlterationError struct {
	Alter int
}

func (e *UnsupportedAlterationError) Error() string {
	return fmt.Sprintf("unsupported alteration: alter %d has no accidental", e.Alter)
}

func (e *UnsupportedAlterationError) Unwrap() error {
	return ErrUnsupportedAlteration
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "sheet", "score", "job")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation (may be redacted)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "MusicXML", "shift")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
	Err     error  // Underlying error, if any
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupported
}

// Helper functions for creating common errors

// NewMalformedPitch creates a MalformedPitchError
func NewMalformedPitch(field, value, message string) *MalformedPitchError {
	return &MalformedPitchError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewUnknownKeySignature creates an UnknownKeySignatureError
func NewUnknownKeySignature(value string) *UnknownKeySignatureError {
	return &UnknownKeySignatureError{Value: value}
}

// NewUnsupportedAlteration creates an UnsupportedAlterationError
func NewUnsupportedAlteration(alter int) *UnsupportedAlterationError {
	return &UnsupportedAlterationError{Alter: alter}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Path:    path,
		Message: message,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// IsTranspositionError reports whether err is one of the transposition
// failure kinds (malformed pitch, key signature, or alteration).
func IsTranspositionError(err error) bool {
	return errors.Is(err, ErrMalformedPitch) ||
		errors.Is(err, ErrUnknownKeySignature) ||
		errors.Is(err, ErrMissingKeySignature) ||
		errors.Is(err, ErrUnsupportedAlteration)
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
