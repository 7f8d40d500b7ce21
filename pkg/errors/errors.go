// Package errors provides custom error types for the fabsync system.
// These errors enable programmatic error checking across the
// reconciliation pipeline and carry enough context to route failures
// to the right recovery path (retry, quarantine, escalate).
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Common sentinel errors for the fabsync system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates that a resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrSyncInProgress indicates a sync operation is already running for the fabric
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrRateLimited indicates that a remote API rate limit has been exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrTimeout indicates that an operation timed out
	ErrTimeout = errors.New("operation timed out")

	// ErrCanceled indicates that an operation was canceled
	ErrCanceled = errors.New("operation canceled")

	// ErrRepositoryUnavailable indicates the version-control host cannot be reached
	ErrRepositoryUnavailable = errors.New("repository unavailable")

	// ErrClusterRejected indicates the cluster permanently refused a document
	ErrClusterRejected = errors.New("cluster rejected document")

	// ErrConflictUnresolved indicates a resource cannot proceed without a resolution decision
	ErrConflictUnresolved = errors.New("conflict unresolved")

	// ErrIllegalTransition indicates an attempt to move a resource between
	// non-adjacent lifecycle states
	ErrIllegalTransition = errors.New("illegal lifecycle transition")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a document that is malformed or violates a
// resource schema. Documents carrying this error are routed to
// raw/errors, never applied.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// RepositoryError represents an auth or network failure reaching the
// version-control host. Fatal for the current step; retried only by
// caller policy, never silently swallowed.
type RepositoryError struct {
	Operation string // "clone", "pull", "push", "commit", "stage"
	Remote    string
	Output    string // stderr/stdout from the underlying git invocation
	Err       error
}

// Error implements the error interface
func (e *RepositoryError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("repository %s failed for %s: %v\noutput: %s", e.Operation, e.Remote, e.Err, e.Output)
	}
	return fmt.Sprintf("repository %s failed for %s: %v", e.Operation, e.Remote, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *RepositoryError) Is(target error) bool {
	return target == ErrRepositoryUnavailable
}

// NewRepositoryError creates a new RepositoryError
func NewRepositoryError(operation, remote, output string, err error) *RepositoryError {
	return &RepositoryError{
		Operation: operation,
		Remote:    remote,
		Output:    output,
		Err:       err,
	}
}

// ClusterError represents an error from the cluster API. Transient
// errors (network, timeout, throttling) are eligible for retry with
// backoff; permanent errors (schema rejection) are surfaced immediately.
type ClusterError struct {
	Operation  string // "fetch", "apply", "delete"
	Resource   string // kind/name of the affected resource, if known
	StatusCode int
	Message    string
	Transient  bool
	Err        error
}

// Error implements the error interface
func (e *ClusterError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("cluster %s failed for %s (status %d): %s", e.Operation, e.Resource, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("cluster %s failed for %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ClusterError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support
func (e *ClusterError) Is(target error) bool {
	if e.StatusCode == 429 {
		return target == ErrRateLimited
	}
	if !e.Transient {
		return target == ErrClusterRejected
	}
	return false
}

// NewClusterError creates a new ClusterError
func NewClusterError(operation, resource string, statusCode int, message string, transient bool) *ClusterError {
	return &ClusterError{
		Operation:  operation,
		Resource:   resource,
		StatusCode: statusCode,
		Message:    message,
		Transient:  transient,
	}
}

// ConflictError represents a resource that cannot proceed past
// reconciliation without an explicit resolution decision. It surfaces
// as a Pending-state resource rather than a crash.
type ConflictError struct {
	Fabric     string
	Resource   string
	ConflictID string
	Type       string // concurrent_modification, delete_vs_modify, schema_violation
}

// Error implements the error interface
func (e *ConflictError) Error() string {
	return fmt.Sprintf("resource %s in fabric %s blocked by %s conflict %s", e.Resource, e.Fabric, e.Type, e.ConflictID)
}

// Is implements errors.Is support
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflictUnresolved
}

// NewConflictError creates a new ConflictError
func NewConflictError(fabric, resource, conflictID, conflictType string) *ConflictError {
	return &ConflictError{
		Fabric:     fabric,
		Resource:   resource,
		ConflictID: conflictID,
		Type:       conflictType,
	}
}

// TransitionError represents an attempt to move a resource directly
// between non-adjacent lifecycle states.
type TransitionError struct {
	Resource string
	From     string
	To       string
}

// Error implements the error interface
func (e *TransitionError) Error() string {
	return fmt.Sprintf("resource %s cannot transition from %s to %s", e.Resource, e.From, e.To)
}

// Is implements errors.Is support
func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "yaml", "json"
	File    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// IOError represents an error during local filesystem operations
type IOError struct {
	Operation string // "read", "write", "create", "delete", "rename"
	Path      string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	return fmt.Sprintf("IO error during %s of %s: %v", e.Operation, e.Path, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if an error is an already exists error
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCanceled checks if an error is a cancellation error
func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

// IsRepositoryUnavailable checks if an error indicates the repository host is unreachable
func IsRepositoryUnavailable(err error) bool {
	return errors.Is(err, ErrRepositoryUnavailable)
}

// IsClusterRejection checks if an error is a permanent cluster rejection
func IsClusterRejection(err error) bool {
	return errors.Is(err, ErrClusterRejected)
}

// IsTransient reports whether an error is worth retrying with backoff.
func IsTransient(err error) bool {
	var ce *ClusterError
	if errors.As(err, &ce) {
		return ce.Transient
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTimeout)
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return &IOError{Operation: operation, Path: path, Err: err}
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return &ParseError{Format: format, File: file, Message: err.Error(), Err: err}
}

// WrapTimeout ties a deadline failure to ErrTimeout so IsTimeout and
// IsTransient classify it
func WrapTimeout(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %v", operation, ErrTimeout, err)
}
