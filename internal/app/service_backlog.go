package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"teamworks/api/internal/backlog"
	"teamworks/api/internal/ids"
	"teamworks/api/internal/rbac"
	"teamworks/api/internal/store"
)

// UnassignedFilter selects tasks without an assignee in list filters.
const UnassignedFilter = "__unassigned__"

// TaskListFilter carries the raw query parameters of a backlog listing.
type TaskListFilter struct {
	Status     string
	Priority   string
	AssignedTo string
}

func (s *Service) parseTaskFilter(session Session, raw TaskListFilter) (store.TaskFilter, error) {
	var filter store.TaskFilter
	switch raw.Status {
	case "", store.StatusToDo, store.StatusInProgress, store.StatusDone:
		filter.Status = raw.Status
	default:
		return filter, validationError("status", "Unknown status filter")
	}
	switch raw.Priority {
	case "", store.PriorityLow, store.PriorityMedium, store.PriorityHigh:
		filter.Priority = raw.Priority
	default:
		return filter, validationError("priority", "Unknown priority filter")
	}
	switch raw.AssignedTo {
	case "":
	case UnassignedFilter:
		filter.Unassigned = true
	case "me":
		userID := session.UserID
		filter.AssignedTo = &userID
	default:
		userID, err := ids.Parse(raw.AssignedTo)
		if err != nil {
			return filter, validationError("assignedTo", "assignedTo must be a user id, me or "+UnassignedFilter)
		}
		filter.AssignedTo = &userID
	}
	return filter, nil
}

func (s *Service) ListTasks(ctx context.Context, session Session, projectID ids.ID, raw TaskListFilter) ([]map[string]any, error) {
	project, err := s.authorize(ctx, session, projectID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	filter, err := s.parseTaskFilter(session, raw)
	if err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, project.ID, filter)
	if err != nil {
		return nil, storeFailure(err)
	}
	return mapSlice(tasks, taskPayload), nil
}

// ListAllTasks returns tasks across every project the caller belongs to.
func (s *Service) ListAllTasks(ctx context.Context, session Session, raw TaskListFilter) ([]map[string]any, error) {
	filter, err := s.parseTaskFilter(session, raw)
	if err != nil {
		return nil, err
	}
	projects, projectIDs, err := s.projectIDsFor(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	if len(projectIDs) == 0 {
		return []map[string]any{}, nil
	}
	tasks, err := s.store.ListTasksForProjects(ctx, projectIDs, filter)
	if err != nil {
		return nil, storeFailure(err)
	}
	names := make(map[ids.ID]string, len(projects))
	for _, project := range projects {
		names[project.ID] = project.Name
	}
	out := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		payload := taskPayload(task)
		payload["projectName"] = names[task.ProjectID]
		out = append(out, payload)
	}
	return out, nil
}

func (s *Service) GetTask(ctx context.Context, session Session, projectID, taskID ids.ID) (map[string]any, error) {
	task, _, err := s.loadTask(ctx, session, projectID, taskID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return taskPayload(task), nil
}

func (s *Service) loadTask(ctx context.Context, session Session, projectID, taskID ids.ID, action rbac.Action) (store.Task, store.Project, error) {
	project, err := s.authorize(ctx, session, projectID, action)
	if err != nil {
		return store.Task{}, store.Project{}, err
	}
	task, err := s.store.FindTask(ctx, taskID, project.ID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Task{}, store.Project{}, backlog.ErrTaskNotFound
		}
		return store.Task{}, store.Project{}, fmt.Errorf("%w: %w", backlog.ErrInfrastructure, err)
	}
	return task, project, nil
}

func decodeTaskInput(body []byte, creating bool) (backlog.TaskInput, error) {
	if err := backlog.CheckSchema(body, creating); err != nil {
		return backlog.TaskInput{}, err
	}
	var input backlog.TaskInput
	decoder := json.NewDecoder(bytes.NewReader(body))
	if err := decoder.Decode(&input); err != nil {
		return backlog.TaskInput{}, domainError(http.StatusBadRequest, "INVALID_BODY", "invalid JSON body", nil)
	}
	return input, nil
}

func checkAssignee(project store.Project, task store.Task) error {
	if task.AssignedTo != nil && !project.HasMember(*task.AssignedTo) {
		return validationError("assignedTo", "Assignee must be a project member")
	}
	return nil
}

// CreateTask validates the payload, normalizes dependencies and notifies the
// assignee.
func (s *Service) CreateTask(ctx context.Context, session Session, projectID ids.ID, body []byte) (map[string]any, error) {
	project, err := s.authorize(ctx, session, projectID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	input, err := decodeTaskInput(body, true)
	if err != nil {
		return nil, err
	}

	now := s.now()
	task := store.Task{
		ID:        ids.New(),
		ProjectID: project.ID,
		CreatedBy: session.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := backlog.ValidateDraft(&task, input, true); err != nil {
		return nil, err
	}
	if err := checkAssignee(project, task); err != nil {
		return nil, err
	}
	var candidates []string
	if input.Dependencies != nil {
		candidates = *input.Dependencies
	}
	if task.Dependencies, err = s.deps.Normalize(ctx, candidates, project.ID, ""); err != nil {
		return nil, err
	}

	if err := s.store.InsertTask(ctx, task); err != nil {
		return nil, fmt.Errorf("%w: %w", backlog.ErrInfrastructure, err)
	}
	s.search.IndexTask(task)
	s.notifyAssignee(ctx, session, project, task, nil)
	return taskPayload(task), nil
}

// UpdateTask applies a partial update. Dependencies present in the payload
// are re-normalized with the task itself excluded.
func (s *Service) UpdateTask(ctx context.Context, session Session, projectID, taskID ids.ID, body []byte) (map[string]any, error) {
	task, project, err := s.loadTask(ctx, session, projectID, taskID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	input, err := decodeTaskInput(body, false)
	if err != nil {
		return nil, err
	}

	previousAssignee := task.AssignedTo
	if err := backlog.ValidateDraft(&task, input, false); err != nil {
		return nil, err
	}
	if input.HasAssignee() {
		if err := checkAssignee(project, task); err != nil {
			return nil, err
		}
	}
	if input.Dependencies != nil {
		if task.Dependencies, err = s.deps.Normalize(ctx, *input.Dependencies, project.ID, task.ID); err != nil {
			return nil, err
		}
	}

	task.UpdatedAt = s.now()
	if err := s.store.UpdateTask(ctx, task); err != nil {
		if store.IsNotFound(err) {
			return nil, backlog.ErrTaskNotFound
		}
		return nil, fmt.Errorf("%w: %w", backlog.ErrInfrastructure, err)
	}
	s.search.IndexTask(task)
	s.notifyAssignee(ctx, session, project, task, previousAssignee)
	return taskPayload(task), nil
}

// notifyAssignee tells a newly assigned user about the task unless they
// assigned it to themselves.
func (s *Service) notifyAssignee(ctx context.Context, session Session, project store.Project, task store.Task, previous *ids.ID) {
	if task.AssignedTo == nil || *task.AssignedTo == session.UserID {
		return
	}
	if previous != nil && *previous == *task.AssignedTo {
		return
	}
	message := fmt.Sprintf("%s assigned you %q in %s", session.UserName, task.Title, project.Name)
	s.notify(ctx, *task.AssignedTo, store.NotificationTaskAssigned, message, &project.ID, &task.ID)
}

// DeleteTask removes the task with its comments and attachments, then strips
// its id from dependents. A cleanup failure is reported, not returned.
func (s *Service) DeleteTask(ctx context.Context, session Session, projectID, taskID ids.ID) (map[string]any, error) {
	task, project, err := s.loadTask(ctx, session, projectID, taskID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	var objectKeys []string
	if s.blobs != nil {
		attachments, err := s.store.ListAttachments(ctx, task.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", backlog.ErrInfrastructure, err)
		}
		for _, a := range attachments {
			objectKeys = append(objectKeys, a.ObjectKey)
		}
	}

	if err := s.store.DeleteTask(ctx, task.ID, project.ID); err != nil {
		if store.IsNotFound(err) {
			return nil, backlog.ErrTaskNotFound
		}
		if !s.taskGone(ctx, task.ID, project.ID, err) {
			return nil, fmt.Errorf("%w: %w", backlog.ErrInfrastructure, err)
		}
	}
	s.search.DeleteTask(task.ID)
	s.removeObjects(objectKeys)

	cleanup := map[string]any{"ok": true}
	updated, err := s.deps.OnTaskDeleted(ctx, task.ID, project.ID)
	if err != nil {
		cleanup["ok"] = false
		cleanup["error"] = "Dependency cleanup failed; some tasks may still reference the deleted task"
	} else {
		cleanup["updatedTasks"] = updated
	}
	return map[string]any{
		"id":                task.ID.String(),
		"deleted":           true,
		"dependencyCleanup": cleanup,
	}, nil
}

// taskGone decides whether a failed delete still removed the task. Once it
// is gone the dependents must be cleaned up, or they would keep a dangling id.
func (s *Service) taskGone(ctx context.Context, taskID, projectID ids.ID, deleteErr error) bool {
	if !errors.Is(deleteErr, store.ErrPartialDelete) {
		if _, err := s.store.FindTask(ctx, taskID, projectID); !store.IsNotFound(err) {
			return false
		}
	}
	s.logger.Warn("task deleted with incomplete cleanup", "task_id", taskID, "project_id", projectID, "err", deleteErr)
	return true
}

func parseReference(raw string) (ids.ID, error) {
	id, err := ids.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %q", backlog.ErrInvalidReference, raw)
	}
	return id, nil
}

func (s *Service) AddDependency(ctx context.Context, session Session, projectID, taskID ids.ID, rawDependencyID string) (map[string]any, error) {
	project, err := s.authorize(ctx, session, projectID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	dependencyID, err := parseReference(rawDependencyID)
	if err != nil {
		return nil, err
	}
	deps, err := s.deps.AddDependency(ctx, taskID, dependencyID, project.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": taskID.String(), "dependencies": ids.Strings(deps)}, nil
}

func (s *Service) RemoveDependency(ctx context.Context, session Session, projectID, taskID ids.ID, rawDependencyID string) (map[string]any, error) {
	project, err := s.authorize(ctx, session, projectID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	dependencyID, err := parseReference(rawDependencyID)
	if err != nil {
		return nil, err
	}
	deps, err := s.deps.RemoveDependency(ctx, taskID, dependencyID, project.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": taskID.String(), "dependencies": ids.Strings(deps)}, nil
}

// Dependents lists the tasks that depend on taskID.
func (s *Service) Dependents(ctx context.Context, session Session, projectID, taskID ids.ID) ([]map[string]any, error) {
	if _, _, err := s.loadTask(ctx, session, projectID, taskID, rbac.ActionRead); err != nil {
		return nil, err
	}
	tasks, err := s.deps.Dependents(ctx, taskID, projectID)
	if err != nil {
		return nil, err
	}
	return mapSlice(tasks, taskPayload), nil
}
