// Package services provides the template lifecycle service and standardized
// error types for service layer operations.
package services

import (
	"errors"
	"fmt"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/registry"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest        = errors.New("invalid request")
	ErrTemplateNil           = errors.New("template cannot be nil")
	ErrTemplateNameRequired  = errors.New("template name is required")
	ErrStagesRequired        = errors.New("template must have at least one stage")
	ErrEmptyOrganizationID   = errors.New("organization ID cannot be empty")
	ErrInvalidSLA            = errors.New("SLA hours must be positive")
	ErrInvalidRetryLimit     = errors.New("retry limit cannot be negative")
	ErrMissingSubWorkflowRef = errors.New("sub-workflow stage requires a sub-workflow reference")

	// Business Logic Conflicts (409 Conflict).
	ErrCannotModifyPublished = errors.New("cannot modify published template")
	ErrCannotModifyArchived  = errors.New("cannot modify archived template")
	ErrNotDraft              = errors.New("only draft templates can be published")
	ErrNotPublished          = errors.New("only published templates can be archived")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrTemplateNil) ||
		errors.Is(err, ErrTemplateNameRequired) ||
		errors.Is(err, ErrStagesRequired) ||
		errors.Is(err, ErrEmptyOrganizationID) ||
		errors.Is(err, ErrInvalidSLA) ||
		errors.Is(err, ErrInvalidRetryLimit) ||
		errors.Is(err, ErrMissingSubWorkflowRef) ||
		errors.Is(err, registry.ErrInvalidConfig) ||
		isGraphError(err)
}

// isGraphError matches the structural stage graph errors raised at publish.
func isGraphError(err error) bool {
	return errors.Is(err, models.ErrGraphNoStages) ||
		errors.Is(err, models.ErrGraphCycle) ||
		errors.Is(err, models.ErrGraphNoEntry) ||
		errors.Is(err, models.ErrGraphNoExit) ||
		errors.Is(err, models.ErrGraphDuplicate) ||
		errors.Is(err, models.ErrGraphDangling) ||
		errors.Is(err, models.ErrGraphAsymmetric)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotModifyPublished) ||
		errors.Is(err, ErrCannotModifyArchived) ||
		errors.Is(err, ErrNotDraft) ||
		errors.Is(err, ErrNotPublished)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
