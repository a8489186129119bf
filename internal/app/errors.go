package app

import (
	"errors"
	"fmt"
	"net/http"

	"teamworks/api/internal/auth"
	"teamworks/api/internal/authpw"
	"teamworks/api/internal/backlog"
	"teamworks/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func forbidden(message string) *DomainError {
	return domainError(http.StatusForbidden, "FORBIDDEN", message, nil)
}

func validationError(field, message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, map[string]string{field: message})
}

// storeFailure marks err as a retryable store outage unless it already
// carries a meaning of its own.
func storeFailure(err error) error {
	var domainErr *DomainError
	switch {
	case err == nil,
		errors.As(err, &domainErr),
		store.IsNotFound(err),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, backlog.ErrInfrastructure):
		return err
	}
	return fmt.Errorf("%w: %w", backlog.ErrInfrastructure, err)
}

var dependencyErrors = []struct {
	err    error
	status int
	code   string
}{
	{backlog.ErrInvalidReference, http.StatusUnprocessableEntity, "INVALID_REFERENCE"},
	{backlog.ErrSelfDependency, http.StatusUnprocessableEntity, "SELF_DEPENDENCY"},
	{backlog.ErrDuplicateDependency, http.StatusConflict, "DUPLICATE_DEPENDENCY"},
	{backlog.ErrDependencyNotFound, http.StatusUnprocessableEntity, "DEPENDENCY_NOT_FOUND"},
	{backlog.ErrTaskNotFound, http.StatusNotFound, "TASK_NOT_FOUND"},
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var schemaErr *backlog.SchemaError
	if errors.As(err, &schemaErr) {
		return http.StatusUnprocessableEntity, "SCHEMA_VIOLATION", "Task payload does not match the schema", schemaErr.Problems
	}
	var validationErr *backlog.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validationErr.Error(), validationErr.Fields
	}
	if errors.Is(err, backlog.ErrInfrastructure) {
		return http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "Store unavailable, retry later", map[string]any{"retryable": true}
	}
	for _, candidate := range dependencyErrors {
		if errors.Is(err, candidate.err) {
			return candidate.status, candidate.code, err.Error(), nil
		}
	}

	switch {
	case errors.Is(err, authpw.ErrMissingFields), errors.Is(err, authpw.ErrInvalidEmail), errors.Is(err, authpw.ErrWeakPassword):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, authpw.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil
	case errors.Is(err, authpw.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case store.IsNotFound(err):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict, "CONFLICT", "Conflict", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
