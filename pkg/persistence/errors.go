// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTemplateNotFound indicates a template was not found by the given key.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrInstanceNotFound indicates an instance was not found by the given identifier.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrTemplateAlreadyExists indicates a template with the same key already exists.
	ErrTemplateAlreadyExists = errors.New("template already exists")

	// ErrRevisionConflict indicates an optimistic-concurrency mismatch on
	// instance save. Callers retry a bounded number of times.
	ErrRevisionConflict = errors.New("instance revision conflict")
)

// TemplateError wraps template-related errors with additional context.
type TemplateError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save")
	TemplateID string // Template ID if applicable
	LineageID  string // Lineage ID if applicable
	Err        error  // Underlying error
}

func (e *TemplateError) Error() string {
	target := e.TemplateID
	if e.LineageID != "" {
		target = fmt.Sprintf("lineage %s", e.LineageID)
	}

	return fmt.Sprintf("%s operation failed for template %s: %v", e.Op, target, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

func (e *TemplateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTemplateError creates a new template error with context.
func NewTemplateError(op, templateID string, err error) *TemplateError {
	return &TemplateError{Op: op, TemplateID: templateID, Err: err}
}

// InstanceError wraps instance-related errors with additional context.
type InstanceError struct {
	Op         string
	InstanceID string
	Err        error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("%s operation failed for instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func (e *InstanceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewInstanceError creates a new instance error with context.
func NewInstanceError(op, instanceID string, err error) *InstanceError {
	return &InstanceError{Op: op, InstanceID: instanceID, Err: err}
}

// IsTemplateNotFound checks if an error indicates a template was not found.
func IsTemplateNotFound(err error) bool {
	return errors.Is(err, ErrTemplateNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsRevisionConflict checks if an error indicates an optimistic-concurrency conflict.
func IsRevisionConflict(err error) bool {
	return errors.Is(err, ErrRevisionConflict)
}
