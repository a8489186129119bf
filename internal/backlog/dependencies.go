// Package backlog maintains backlog tasks: the dependency relation between
// tasks of one project, progress values and task field validation.
package backlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"teamworks/api/internal/ids"
	"teamworks/api/internal/store"
)

// TaskStore is the slice of the store the dependency manager needs.
type TaskStore interface {
	FindTask(ctx context.Context, taskID, projectID ids.ID) (store.Task, error)
	ListTasks(ctx context.Context, projectID ids.ID, filter store.TaskFilter) ([]store.Task, error)
	UpdateTaskDependencies(ctx context.Context, taskID ids.ID, dependencies []ids.ID, updatedAt time.Time) error
	RemoveDependencyReferences(ctx context.Context, projectID, removedID ids.ID, updatedAt time.Time) (int64, error)
}

type Manager struct {
	store  TaskStore
	logger *log.Logger
	now    func() time.Time
}

type Option func(*Manager)

// WithClock replaces the timestamp source used for updatedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(taskStore TaskStore, logger *log.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	m := &Manager{
		store:  taskStore,
		logger: logger.WithPrefix("backlog"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Normalize validates candidate dependency ids for a task in projectID and
// returns them deduplicated in first-seen order. excluding is the task being
// edited, or the zero ID on create. The result is never nil.
func (m *Manager) Normalize(ctx context.Context, candidates []string, projectID, excluding ids.ID) ([]ids.ID, error) {
	out := make([]ids.ID, 0, len(candidates))
	seen := make(map[ids.ID]struct{}, len(candidates))
	for _, raw := range candidates {
		id, err := ids.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidReference, strings.TrimSpace(raw))
		}
		if !excluding.IsZero() && id == excluding {
			return nil, fmt.Errorf("%w: %s", ErrSelfDependency, id)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		if _, err := m.store.FindTask(ctx, id, projectID); err != nil {
			if store.IsNotFound(err) {
				return nil, fmt.Errorf("%w: %s", ErrDependencyNotFound, id)
			}
			return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// AddDependency appends dependencyID to the task's dependencies and returns
// the stored list. The whole resulting set is re-validated before writing.
func (m *Manager) AddDependency(ctx context.Context, taskID, dependencyID, projectID ids.ID) ([]ids.ID, error) {
	if taskID == dependencyID {
		return nil, fmt.Errorf("%w: %s", ErrSelfDependency, taskID)
	}
	task, err := m.load(ctx, taskID, projectID)
	if err != nil {
		return nil, err
	}
	if ids.Contains(task.Dependencies, dependencyID) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateDependency, dependencyID)
	}

	candidates := append(ids.Strings(task.Dependencies), dependencyID.String())
	next, err := m.Normalize(ctx, candidates, projectID, taskID)
	if err != nil {
		return nil, err
	}
	if err := m.persist(ctx, taskID, next); err != nil {
		return nil, err
	}
	m.logger.Debug("dependency added", "task", taskID, "dependency", dependencyID, "count", len(next))
	return next, nil
}

// RemoveDependency drops dependencyID from the task. Removing an id that is
// not present is not an error; the list is written either way.
func (m *Manager) RemoveDependency(ctx context.Context, taskID, dependencyID, projectID ids.ID) ([]ids.ID, error) {
	task, err := m.load(ctx, taskID, projectID)
	if err != nil {
		return nil, err
	}
	next := make([]ids.ID, 0, len(task.Dependencies))
	for _, dep := range task.Dependencies {
		if dep != dependencyID {
			next = append(next, dep)
		}
	}
	if err := m.persist(ctx, taskID, next); err != nil {
		return nil, err
	}
	m.logger.Debug("dependency removed", "task", taskID, "dependency", dependencyID, "count", len(next))
	return next, nil
}

// OnTaskDeleted strips a deleted task's id from every dependent in the same
// project. Failures are logged and returned but the deletion stands.
func (m *Manager) OnTaskDeleted(ctx context.Context, taskID, projectID ids.ID) (int64, error) {
	changed, err := m.store.RemoveDependencyReferences(ctx, projectID, taskID, m.now())
	if err != nil {
		m.logger.Warn("dependency cleanup failed", "task", taskID, "project", projectID, "err", err)
		return 0, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	if changed > 0 {
		m.logger.Info("dependency references removed", "task", taskID, "project", projectID, "dependents", changed)
	}
	return changed, nil
}

// Dependents lists the tasks in the project that depend on taskID.
func (m *Manager) Dependents(ctx context.Context, taskID, projectID ids.ID) ([]store.Task, error) {
	tasks, err := m.store.ListTasks(ctx, projectID, store.TaskFilter{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	out := make([]store.Task, 0)
	for _, task := range tasks {
		if ids.Contains(task.Dependencies, taskID) {
			out = append(out, task)
		}
	}
	return out, nil
}

func (m *Manager) load(ctx context.Context, taskID, projectID ids.ID) (store.Task, error) {
	task, err := m.store.FindTask(ctx, taskID, projectID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return store.Task{}, fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	return task, nil
}

func (m *Manager) persist(ctx context.Context, taskID ids.ID, deps []ids.ID) error {
	if err := m.store.UpdateTaskDependencies(ctx, taskID, deps, m.now()); err != nil {
		if store.IsNotFound(err) {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return fmt.Errorf("%w: %w", ErrInfrastructure, err)
	}
	return nil
}
