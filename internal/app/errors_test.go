package app

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"teamworks/api/internal/auth"
	"teamworks/api/internal/authpw"
	"teamworks/api/internal/backlog"
	"teamworks/api/internal/store"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"domain", domainError(http.StatusTeapot, "TEAPOT", "short and stout", nil), http.StatusTeapot, "TEAPOT"},
		{"schema", &backlog.SchemaError{Problems: []backlog.SchemaProblem{{Path: "title", Message: "required"}}}, http.StatusUnprocessableEntity, "SCHEMA_VIOLATION"},
		{"validation", &backlog.ValidationError{Fields: map[string]string{"progress": "bad"}}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"invalid reference", fmt.Errorf("%w: %q", backlog.ErrInvalidReference, "x"), http.StatusUnprocessableEntity, "INVALID_REFERENCE"},
		{"self", backlog.ErrSelfDependency, http.StatusUnprocessableEntity, "SELF_DEPENDENCY"},
		{"duplicate", backlog.ErrDuplicateDependency, http.StatusConflict, "DUPLICATE_DEPENDENCY"},
		{"dependency missing", backlog.ErrDependencyNotFound, http.StatusUnprocessableEntity, "DEPENDENCY_NOT_FOUND"},
		{"task missing", backlog.ErrTaskNotFound, http.StatusNotFound, "TASK_NOT_FOUND"},
		{"infrastructure", fmt.Errorf("%w: %w", backlog.ErrInfrastructure, errors.New("dial tcp")), http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{"weak password", authpw.ErrWeakPassword, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"email taken", authpw.ErrEmailTaken, http.StatusConflict, "EMAIL_EXISTS"},
		{"bad credentials", authpw.ErrInvalidCredentials, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not found", fmt.Errorf("load: %w", store.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", store.ErrConflict, http.StatusConflict, "CONFLICT"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "SERVER_ERROR"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code, message, _ := mapError(tc.err)
			if status != tc.status || code != tc.code {
				t.Fatalf("mapError(%v) = %d %s, want %d %s", tc.err, status, code, tc.status, tc.code)
			}
			if message == "" {
				t.Fatalf("mapError(%v) returned an empty message", tc.err)
			}
		})
	}
}

func TestInfrastructureErrorsAreRetryable(t *testing.T) {
	_, _, _, details := mapError(fmt.Errorf("%w: %w", backlog.ErrInfrastructure, errors.New("timeout")))
	fields, ok := details.(map[string]any)
	if !ok || fields["retryable"] != true {
		t.Fatalf("expected retryable details, got %v", details)
	}
}

func TestStoreFailure(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"outage", errors.New("connection refused"), true},
		{"partial delete", fmt.Errorf("%w: comments", store.ErrPartialDelete), true},
		{"not found", store.ErrNotFound, false},
		{"conflict", store.ErrConflict, false},
		{"domain", forbidden("no"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := storeFailure(tc.err)
			if backlog.Retryable(got) != tc.retryable {
				t.Fatalf("storeFailure(%v) retryable = %v, want %v", tc.err, !tc.retryable, tc.retryable)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("storeFailure(%v) lost the cause", tc.err)
			}
		})
	}
	if storeFailure(nil) != nil {
		t.Fatalf("storeFailure(nil) should be nil")
	}
}
