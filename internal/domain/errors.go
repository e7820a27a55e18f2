package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code and message,
// so wrapped copies of a sentinel still match it.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeAlreadyExists       = "ALREADY_EXISTS"
	ErrCodeAuthorizationDenied = "AUTHORIZATION_DENIED"
	ErrCodeTransientProvider   = "TRANSIENT_PROVIDER_ERROR"
	ErrCodeIntegrityViolation  = "INTEGRITY_VIOLATION"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrMissingRequiredField      = NewDomainError(ErrCodeValidation, "missing required field")
	ErrDimensionMismatch         = NewDomainError(ErrCodeValidation, "embedding dimension mismatch")
	ErrInvalidChunkParams        = NewDomainError(ErrCodeValidation, "invalid chunking parameters")
	ErrInvalidMaxResults         = NewDomainError(ErrCodeValidation, "max results must be positive")
	ErrInvalidCount              = NewDomainError(ErrCodeValidation, "count cannot be negative")
	ErrEmptyQuery                = NewDomainError(ErrCodeValidation, "query text is required")
	ErrBatchLengthMismatch       = NewDomainError(ErrCodeValidation, "chunk ids and vectors differ in length")
	ErrEmptyBatch                = NewDomainError(ErrCodeValidation, "batch is empty")
	ErrDuplicateChunkID          = NewDomainError(ErrCodeValidation, "duplicate chunk id in batch")
	ErrInvalidEmbeddingJobStatus = NewDomainError(ErrCodeValidation, "invalid embedding job status")
	ErrInvalidRole               = NewDomainError(ErrCodeValidation, "invalid role")
)

// Not found errors
var (
	ErrOrganizationNotFound = NewDomainError(ErrCodeNotFound, "organization not found")
	ErrUserNotFound         = NewDomainError(ErrCodeNotFound, "user not found")
	ErrCourseNotFound       = NewDomainError(ErrCodeNotFound, "course not found")
	ErrMaterialNotFound     = NewDomainError(ErrCodeNotFound, "material not found")
	ErrChunkNotFound        = NewDomainError(ErrCodeNotFound, "content chunk not found")
	ErrQuizNotFound         = NewDomainError(ErrCodeNotFound, "quiz not found")
	ErrQuestionNotFound     = NewDomainError(ErrCodeNotFound, "question not found")
	ErrEmbeddingJobNotFound = NewDomainError(ErrCodeNotFound, "embedding job not found")
)

// Already exists errors
var (
	ErrOrganizationAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "organization already exists")
	ErrUserAlreadyExists         = NewDomainError(ErrCodeAlreadyExists, "user already exists")
)

// Authorization errors. Every denial carries the same message so callers
// cannot tell a foreign resource from a missing one.
var (
	ErrAccessDenied = NewDomainError(ErrCodeAuthorizationDenied, "access denied")
)

// Provider errors
var (
	ErrProviderUnavailable = NewDomainError(ErrCodeTransientProvider, "embedding provider unavailable")
	ErrProviderTimeout     = NewDomainError(ErrCodeTransientProvider, "embedding provider timed out")
)

// Integrity errors
var (
	ErrInvalidStatusTransition = NewDomainError(ErrCodeIntegrityViolation, "invalid material status transition")
	ErrChunkSequenceBroken     = NewDomainError(ErrCodeIntegrityViolation, "chunk sequence is not contiguous")
	ErrCrossTenantReference    = NewDomainError(ErrCodeIntegrityViolation, "referenced row belongs to another organization")
	ErrChunkOutsideOrg         = NewDomainError(ErrCodeIntegrityViolation, "chunk is missing or outside the organization")
)

// IsCode reports whether err is a DomainError carrying code.
func IsCode(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return IsCode(err, ErrCodeTransientProvider)
}
