package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error types for the refind engine
type ErrorType string

const (
	// Ingestion errors
	ErrorTypeParse ErrorType = "parse"

	// Lookup errors
	ErrorTypeNotFound ErrorType = "not_found"

	// Configuration errors
	ErrorTypeConfig ErrorType = "config"

	// Archive errors
	ErrorTypeArchive ErrorType = "archive"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// ParseError represents a failure to parse hierarchy markup. Resolution
// outcomes like no-match are never parse errors; this type is reserved
// for input that could not be turned into a snapshot at all.
type ParseError struct {
	Type       ErrorType
	Line       int
	Column     int
	Token      string
	Underlying error
	Timestamp  time.Time
}

// NewParseError creates a parse error at a markup position
func NewParseError(line, column int, token string, err error) *ParseError {
	return &ParseError{
		Type:       ErrorTypeParse,
		Line:       line,
		Column:     column,
		Token:      token,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// WithToken adds the offending token to the error
func (e *ParseError) WithToken(token string) *ParseError {
	e.Token = token
	return e
}

// Error implements the error interface
func (e *ParseError) Error() string {
	pos := ""
	if e.Line > 0 {
		pos = fmt.Sprintf(" at line %d, column %d", e.Line, e.Column)
	}
	if e.Token != "" {
		return fmt.Sprintf("parse failed%s near %q: %v", pos, e.Token, e.Underlying)
	}
	return fmt.Sprintf("parse failed%s: %v", pos, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *ParseError) Unwrap() error {
	return e.Underlying
}

// NotFoundError represents a lookup of something that does not exist:
// an evicted or unknown snapshot, an out-of-range node index, or a path
// that does not traverse.
type NotFoundError struct {
	Type      ErrorType
	Kind      string // "snapshot", "node", "path"
	ID        string
	Timestamp time.Time
}

// NewNotFoundError creates a not-found error for a kind of identifier
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{
		Type:      ErrorTypeNotFound,
		Kind:      kind,
		ID:        id,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ConfigError represents a configuration problem
type ConfigError struct {
	Type       ErrorType
	Field      string
	Value      interface{}
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a configuration error
func NewConfigError(field string, value interface{}, err error) *ConfigError {
	return &ConfigError{
		Type:       ErrorTypeConfig,
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("config field %s with value %v: %v", e.Field, e.Value, e.Underlying)
	}
	return fmt.Sprintf("config field %s: %v", e.Field, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}

// ArchiveError represents a failure while scanning, reading, or watching
// a capture archive directory
type ArchiveError struct {
	Type       ErrorType
	Path       string
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewArchiveError creates an archive error with context
func NewArchiveError(path, op string, err error) *ArchiveError {
	return &ArchiveError{
		Type:       ErrorTypeArchive,
		Path:       path,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ArchiveError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("archive %s failed for %s: %v", e.Operation, e.Path, e.Underlying)
	}
	return fmt.Sprintf("archive %s failed: %v", e.Operation, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *ArchiveError) Unwrap() error {
	return e.Underlying
}

// InternalError represents an unexpected internal state
type InternalError struct {
	Type       ErrorType
	Component  string
	Message    string
	Underlying error
	Timestamp  time.Time
}

// NewInternalError creates an internal error
func NewInternalError(component, message string, err error) *InternalError {
	return &InternalError{
		Type:       ErrorTypeInternal,
		Component:  component,
		Message:    message,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *InternalError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("internal error in %s: %s: %v", e.Component, e.Message, e.Underlying)
	}
	return fmt.Sprintf("internal error in %s: %s", e.Component, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *InternalError) Unwrap() error {
	return e.Underlying
}

// MultiError collects several errors from a batch operation while
// letting the rest of the batch proceed
type MultiError struct {
	Errors []error
}

// NewMultiError creates a multi-error from a slice of errors
func NewMultiError(errs []error) *MultiError {
	return &MultiError{Errors: errs}
}

// Add appends an error, ignoring nils
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors checks if any errors were collected
func (e *MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrorOrNil returns nil when no errors were collected
func (e *MultiError) ErrorOrNil() error {
	if !e.HasErrors() {
		return nil
	}
	return e
}

// Error implements the error interface
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d errors occurred:", len(e.Errors))
	for _, err := range e.Errors {
		sb.WriteString("\n  - ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap returns the collected errors for errors.Is/As
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// IsParse checks if an error is a parse error
func IsParse(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsNotFound checks if an error is a not-found error
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConfig checks if an error is a configuration error
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsArchive checks if an error is an archive error
func IsArchive(err error) bool {
	var ae *ArchiveError
	return errors.As(err, &ae)
}
