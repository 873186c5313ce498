package cloudauth

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCategory classifies a failure for reporting and exit handling.
type ErrorCategory string

const (
	// ErrCategoryAuth indicates credentials could not be obtained or assumed.
	ErrCategoryAuth ErrorCategory = "auth"
	// ErrCategoryPermission indicates the caller lacks rights for a call.
	ErrCategoryPermission ErrorCategory = "permission"
	// ErrCategoryNetwork indicates an endpoint could not be reached.
	ErrCategoryNetwork ErrorCategory = "network"
	// ErrCategoryValidation indicates invalid input or configuration.
	ErrCategoryValidation ErrorCategory = "validation"
	// ErrCategoryNotFound indicates a resource was not found.
	ErrCategoryNotFound ErrorCategory = "not_found"
	// ErrCategoryConflict indicates a concurrent write won.
	ErrCategoryConflict ErrorCategory = "conflict"
	// ErrCategoryInternal indicates any other failure.
	ErrCategoryInternal ErrorCategory = "internal"
)

// CloudAuthError is a structured error with category and context.
// Every error leaving a component of this module is a *CloudAuthError
// whose Cause holds the original SDK or API error.
type CloudAuthError struct {
	Category ErrorCategory
	Message  string

	// Provider is the backend the failing call was made against.
	Provider CloudProvider

	// Operation is the API call or step that failed, e.g. "iam:ListRoleTags".
	Operation string

	ResourceType string
	ResourceID   string

	Cause error

	Details map[string]string
}

// Error implements the error interface.
func (e *CloudAuthError) Error() string {
	var b strings.Builder
	if e.Provider != "" {
		fmt.Fprintf(&b, "[%s:%s] %s", e.Provider, e.Category, e.Message)
	} else {
		fmt.Fprintf(&b, "[%s] %s", e.Category, e.Message)
	}
	if e.ResourceID != "" {
		fmt.Fprintf(&b, " (%s %s)", e.ResourceType, e.ResourceID)
	}
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, e.Details[k])
		}
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *CloudAuthError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a *CloudAuthError of the same category.
func (e *CloudAuthError) Is(target error) bool {
	var caErr *CloudAuthError
	if errors.As(target, &caErr) {
		return e.Category == caErr.Category
	}
	return false
}

// NewError creates a new CloudAuthError.
func NewError(category ErrorCategory, message string) *CloudAuthError {
	return &CloudAuthError{
		Category: category,
		Message:  message,
	}
}

// WithProvider sets the provider.
func (e *CloudAuthError) WithProvider(p CloudProvider) *CloudAuthError {
	e.Provider = p
	return e
}

// WithOperation sets the operation.
func (e *CloudAuthError) WithOperation(op string) *CloudAuthError {
	e.Operation = op
	return e
}

// WithResource sets the resource type and ID.
func (e *CloudAuthError) WithResource(resourceType, resourceID string) *CloudAuthError {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithCause sets the underlying error.
func (e *CloudAuthError) WithCause(err error) *CloudAuthError {
	e.Cause = err
	return e
}

// WithDetail adds a detail to the error.
func (e *CloudAuthError) WithDetail(key, value string) *CloudAuthError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// ErrAuth creates an authentication error.
func ErrAuth(message string) *CloudAuthError {
	return NewError(ErrCategoryAuth, message)
}

// ErrPermission creates a permission error.
func ErrPermission(message string) *CloudAuthError {
	return NewError(ErrCategoryPermission, message)
}

// ErrNetwork creates a network error.
func ErrNetwork(message string) *CloudAuthError {
	return NewError(ErrCategoryNetwork, message)
}

// ErrValidation creates a validation error.
func ErrValidation(message string) *CloudAuthError {
	return NewError(ErrCategoryValidation, message)
}

// ErrNotFound creates a not found error.
func ErrNotFound(resourceType, resourceID string) *CloudAuthError {
	return NewError(ErrCategoryNotFound, fmt.Sprintf("%s not found", resourceType)).
		WithResource(resourceType, resourceID)
}

// ErrConflict creates a conflict error.
func ErrConflict(resourceType, resourceID string) *CloudAuthError {
	return NewError(ErrCategoryConflict, fmt.Sprintf("%s was modified concurrently", resourceType)).
		WithResource(resourceType, resourceID)
}

// ErrInternal creates an internal error.
func ErrInternal(message string) *CloudAuthError {
	return NewError(ErrCategoryInternal, message)
}

// IsCategory checks if an error is of a specific category.
func IsCategory(err error, category ErrorCategory) bool {
	var caErr *CloudAuthError
	if errors.As(err, &caErr) {
		return caErr.Category == category
	}
	return false
}

// GetErrorProvider extracts the provider from an error.
func GetErrorProvider(err error) CloudProvider {
	var caErr *CloudAuthError
	if errors.As(err, &caErr) {
		return caErr.Provider
	}
	return ""
}

// GetErrorOperation extracts the failing operation from an error.
func GetErrorOperation(err error) string {
	var caErr *CloudAuthError
	if errors.As(err, &caErr) {
		return caErr.Operation
	}
	return ""
}
