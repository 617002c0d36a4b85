package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/SAP-F-2025/learning-platform-service/internal/models"
	"github.com/SAP-F-2025/learning-platform-service/internal/repositories"
	"github.com/SAP-F-2025/learning-platform-service/internal/validator"
)

// ===== SENTINELS =====

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidState          = errors.New("operation not allowed in current state")
	ErrCapacityExceeded      = errors.New("capacity exceeded")
	ErrConflict              = errors.New("conflict")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrPartialFailure        = errors.New("partial failure")

	ErrCourseNotFound = fmt.Errorf("course %w", ErrNotFound)
	ErrUserNotFound   = fmt.Errorf("user %w", ErrNotFound)

	ErrAlreadyEnrolled = &ConflictError{Reason: "student already enrolled"}
)

// Validation failures use the validator package types
type ValidationErrors = validator.ValidationErrors

var ErrValidationFailed = validator.ErrValidationFailed

// NewValidationError builds a single-field validation failure
func NewValidationError(field, message string, value interface{}) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message, Value: value}}
}

// ===== TYPED ERRORS =====

// StateError reports an operation that is illegal in the course's current status
type StateError struct {
	Resource  string
	ID        string
	Operation string
	Current   models.CourseStatus
	Reason    string
}

func NewStateError(resource, id, operation string, current models.CourseStatus, reason string) *StateError {
	return &StateError{Resource: resource, ID: id, Operation: operation, Current: current, Reason: reason}
}

func (e *StateError) Error() string {
	msg := fmt.Sprintf("cannot %s %s %s", e.Operation, e.Resource, e.ID)
	if e.Current != "" {
		msg += fmt.Sprintf(" in status %s", e.Current)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

type CapacityError struct {
	CourseID    string
	MaxStudents int
	Enrolled    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("course %s is full (%d/%d)", e.CourseID, e.Enrolled, e.MaxStudents)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacityExceeded }

// ConflictError is benign: the requested state already holds
type ConflictError struct {
	CourseID  string
	StudentID string
	Reason    string
}

func (e *ConflictError) Error() string {
	if e.CourseID == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: course %s, student %s", e.Reason, e.CourseID, e.StudentID)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict || target == ErrAlreadyEnrolled
}

// DependencyError means the store, cache or identity provider failed.
// The operation must not be assumed to have been applied.
type DependencyError struct {
	Operation string
	Err       error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: dependency unavailable: %v", e.Operation, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

func (e *DependencyError) Is(target error) bool { return target == ErrDependencyUnavailable }

type PermissionError struct {
	UserID     string
	ResourceID string
	Resource   string
	Action     string
	Reason     string
}

func NewPermissionError(userID, resourceID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("user %s cannot %s %s %s: %s", e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func (e *PermissionError) Is(target error) bool { return target == ErrPermissionDenied }

// ===== CASCADE =====

type CascadeFailure struct {
	CourseID string `json:"course_id"`
	Action   string `json:"action"`
	Error    string `json:"error"`
}

// CascadeReport lists the dependent updates a user deletion attempted
type CascadeReport struct {
	UserID    string           `json:"user_id"`
	Role      models.UserRole  `json:"role"`
	Succeeded []string         `json:"succeeded"`
	Failed    []CascadeFailure `json:"failed"`
}

func newCascadeReport(userID string, role models.UserRole) *CascadeReport {
	return &CascadeReport{UserID: userID, Role: role, Succeeded: []string{}, Failed: []CascadeFailure{}}
}

func (r *CascadeReport) record(courseID, action string, err error) {
	if err != nil {
		r.Failed = append(r.Failed, CascadeFailure{CourseID: courseID, Action: action, Error: err.Error()})
		return
	}
	r.Succeeded = append(r.Succeeded, courseID)
}

func (r *CascadeReport) merge(other *CascadeReport) {
	if other == nil {
		return
	}
	r.Succeeded = append(r.Succeeded, other.Succeeded...)
	r.Failed = append(r.Failed, other.Failed...)
}

func (r *CascadeReport) HasFailures() bool {
	return len(r.Failed) > 0
}

// Err returns a CascadeError when any dependent update failed
func (r *CascadeReport) Err() error {
	if !r.HasFailures() {
		return nil
	}
	return &CascadeError{Report: r}
}

type CascadeError struct {
	Report *CascadeReport
}

func (e *CascadeError) Error() string {
	ids := make([]string, len(e.Report.Failed))
	for i, f := range e.Report.Failed {
		ids[i] = f.CourseID
	}
	return fmt.Sprintf("cascade for user %s left %d failed updates: %s",
		e.Report.UserID, len(e.Report.Failed), strings.Join(ids, ", "))
}

func (e *CascadeError) Is(target error) bool { return target == ErrPartialFailure }

// ===== CLASSIFICATION =====

// storeError maps a repository error into the taxonomy. Not-found becomes notFound,
// errors that are already classified pass through and anything else is a DependencyError.
func storeError(operation string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if repositories.IsNotFoundError(err) && notFound != nil {
		return notFound
	}
	if isClassified(err) {
		return err
	}
	return &DependencyError{Operation: operation, Err: err}
}

func isClassified(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrInvalidState, ErrCapacityExceeded, ErrConflict,
		ErrDependencyUnavailable, ErrPermissionDenied, ErrPartialFailure, ErrValidationFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the caller may retry the operation
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDependencyUnavailable)
}
