// Package errors provides the shared error types used across stratum.
//
// Every type that wraps an underlying error implements Unwrap, so callers can
// use Is and As from this package or the standard library.
//
// Error types include:
//   - ConfigError: configuration parsing errors with location info
//   - RepositoryError: repository operation failures
//   - ValidationError: invalid package specs or requests
//   - NotFoundError: a package, version, build or file that does not exist
//   - VersionError: version ranges that no available version satisfies
//
// Solve failures have their own taxonomy in the solver package.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigError represents an error in configuration parsing.
// It carries the file location so users can find the problem.
type ConfigError struct {
	File    string // Path to the config file
	Line    int    // Line number (0 if unknown)
	Column  int    // Column number (0 if unknown)
	Message string // Error description
	Err     error  // Underlying error
}

// Error returns a human-readable error message with file location.
func (e *ConfigError) Error() string {
	var location string
	if e.Line > 0 {
		if e.Column > 0 {
			location = fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Column)
		} else {
			location = fmt.Sprintf("%s:%d", e.File, e.Line)
		}
	} else {
		location = e.File
	}

	if e.Err != nil {
		return fmt.Sprintf("config error at %s: %s: %v", location, e.Message, e.Err)
	}
	return fmt.Sprintf("config error at %s: %s", location, e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// RepositoryError represents a failed repository operation.
type RepositoryError struct {
	Repo string // Repository name or URL
	Op   string // Operation: "connect", "index", "list", "read"
	Err  error  // Underlying error
}

// Error returns a human-readable error message describing the repository failure.
func (e *RepositoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("repository error: %s failed for %s: %v", e.Op, e.Repo, e.Err)
	}
	return fmt.Sprintf("repository error: %s failed for %s", e.Op, e.Repo)
}

// Unwrap returns the underlying error.
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// ValidationError represents an invalid package spec, request or rule.
type ValidationError struct {
	Resource string // Resource being validated (e.g., "package:maya/2019.2.0")
	Field    string // Field that failed validation
	Message  string // Validation error message
}

// Error returns a human-readable error message describing the validation failure.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error for %s: field %q: %s", e.Resource, e.Field, e.Message)
	}
	return fmt.Sprintf("validation error for %s: %s", e.Resource, e.Message)
}

// NotFoundError is returned when a package, version, build or file does not exist.
type NotFoundError struct {
	What string // What wasn't found (e.g., "package", "build", "file")
	Name string // Name of the thing
}

// Error returns a human-readable error message describing what was not found.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.Name)
}

// VersionError is returned when no available version satisfies a range.
type VersionError struct {
	Package   string   // Package name
	Range     string   // Version range that couldn't be satisfied
	Available []string // Available versions
	Message   string   // Additional context message
}

// Error returns a human-readable error message describing the version failure.
func (e *VersionError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("version error for %s: ", e.Package))

	if e.Message != "" {
		sb.WriteString(e.Message)
	} else {
		sb.WriteString(fmt.Sprintf("range %q cannot be satisfied", e.Range))
	}

	if len(e.Available) > 0 {
		sb.WriteString(fmt.Sprintf(" (available: %s)", strings.Join(e.Available, ", ")))
	}

	return sb.String()
}

// NewConfigError creates a new ConfigError.
// Use line=0 and col=0 if the location is unknown.
func NewConfigError(file string, line, col int, msg string, err error) *ConfigError {
	return &ConfigError{
		File:    file,
		Line:    line,
		Column:  col,
		Message: msg,
		Err:     err,
	}
}

// NewRepositoryError creates a new RepositoryError.
// Common operations are: "connect", "index", "list", "read".
func NewRepositoryError(repo, op string, err error) *RepositoryError {
	return &RepositoryError{
		Repo: repo,
		Op:   op,
		Err:  err,
	}
}

// NewValidationError creates a new ValidationError.
// Use an empty field string if the error applies to the resource as a whole.
func NewValidationError(resource, field, message string) *ValidationError {
	return &ValidationError{
		Resource: resource,
		Field:    field,
		Message:  message,
	}
}

// NewNotFoundError creates a new NotFoundError.
// Common values for what: "package", "version", "build", "file", "repository".
func NewNotFoundError(what, name string) *NotFoundError {
	return &NotFoundError{
		What: what,
		Name: name,
	}
}

// NewVersionError creates a new VersionError.
// The available slice may be nil if available versions are unknown.
func NewVersionError(pkg, rng string, available []string, msg string) *VersionError {
	return &VersionError{
		Package:   pkg,
		Range:     rng,
		Available: available,
		Message:   msg,
	}
}

// IsNotFound reports whether any error in err's tree is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Re-export standard library error functions for convenience.
// This allows callers to use errors.Is, errors.As, etc. without
// importing both this package and the standard errors package.
var (
	// Is reports whether any error in err's tree matches target.
	Is = errors.Is
	// As finds the first error in err's tree that matches target.
	As = errors.As
	// New returns an error that formats as the given text.
	New = errors.New
	// Join returns an error that wraps the given errors.
	Join = errors.Join
	// Unwrap returns the result of calling the Unwrap method on err.
	Unwrap = errors.Unwrap
)

// Wrap wraps an error with additional context message.
// If err is nil, Wrap returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
