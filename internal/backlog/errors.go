package backlog

import "errors"

var (
	ErrInvalidReference    = errors.New("invalid task reference")
	ErrSelfDependency      = errors.New("task cannot depend on itself")
	ErrDuplicateDependency = errors.New("dependency already present")
	ErrDependencyNotFound  = errors.New("dependency not found in project")
	ErrTaskNotFound        = errors.New("task not found")
	// ErrInfrastructure wraps store failures. Callers may retry.
	ErrInfrastructure = errors.New("task store unavailable")
)

// Retryable reports whether err came from the store rather than from
// validation.
func Retryable(err error) bool {
	return errors.Is(err, ErrInfrastructure)
}
