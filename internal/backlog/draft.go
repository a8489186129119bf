package backlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"teamworks/api/internal/ids"
	"teamworks/api/internal/store"
)

const dateLayout = "2006-01-02"

// TaskInput is a create or update payload. Absent fields are nil and leave
// the task unchanged on update.
type TaskInput struct {
	Title        *string         `json:"title"`
	Description  *string         `json:"description"`
	Status       *string         `json:"status"`
	Priority     *string         `json:"priority"`
	AssignedTo   json.RawMessage `json:"assignedTo"`
	StartDate    *string         `json:"startDate"`
	DueDate      *string         `json:"dueDate"`
	Progress     json.RawMessage `json:"progress"`
	Dependencies *[]string       `json:"dependencies"`
}

// HasAssignee reports whether the payload mentions assignedTo at all,
// including an explicit null.
func (in TaskInput) HasAssignee() bool {
	return len(in.AssignedTo) > 0
}

// ValidationError collects per-field problems of a task payload.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for key := range e.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Fields[key])
	}
	return "invalid task: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// ValidateDraft checks the payload and writes the present fields onto task.
// On create, missing status and priority get their defaults and the title is
// required. Dependencies are left to Manager.Normalize.
func ValidateDraft(task *store.Task, in TaskInput, creating bool) error {
	problems := &ValidationError{}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			problems.add("title", "title is required")
		}
		task.Title = title
	} else if creating {
		problems.add("title", "title is required")
	}

	if in.Description != nil {
		task.Description = strings.TrimSpace(*in.Description)
	}

	if in.Status != nil {
		switch *in.Status {
		case store.StatusToDo, store.StatusInProgress, store.StatusDone:
			task.Status = *in.Status
		default:
			problems.add("status", fmt.Sprintf("status must be one of %q, %q, %q", store.StatusToDo, store.StatusInProgress, store.StatusDone))
		}
	} else if creating {
		task.Status = store.StatusToDo
	}

	if in.Priority != nil {
		switch *in.Priority {
		case store.PriorityLow, store.PriorityMedium, store.PriorityHigh:
			task.Priority = *in.Priority
		default:
			problems.add("priority", fmt.Sprintf("priority must be one of %q, %q, %q", store.PriorityLow, store.PriorityMedium, store.PriorityHigh))
		}
	} else if creating {
		task.Priority = store.PriorityMedium
	}

	if in.HasAssignee() {
		assignee, err := parseAssignee(in.AssignedTo)
		if err != nil {
			problems.add("assignedTo", err.Error())
		} else {
			task.AssignedTo = assignee
		}
	}

	if in.StartDate != nil {
		if value, ok := parseDate(*in.StartDate); ok {
			task.StartDate = value
		} else {
			problems.add("startDate", "startDate must be YYYY-MM-DD")
		}
	}
	if in.DueDate != nil {
		if value, ok := parseDate(*in.DueDate); ok {
			task.DueDate = value
		} else {
			problems.add("dueDate", "dueDate must be YYYY-MM-DD")
		}
	}
	if task.StartDate != "" && task.DueDate != "" && task.DueDate < task.StartDate {
		problems.add("dueDate", "dueDate cannot be before startDate")
	}

	if len(in.Progress) > 0 || creating {
		progress, err := ParseProgressJSON(in.Progress)
		if err != nil {
			problems.add("progress", err.Error())
		} else {
			task.Progress = progress
		}
	}

	if len(problems.Fields) > 0 {
		return problems
	}
	return nil
}

func parseAssignee(raw json.RawMessage) (*ids.ID, error) {
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var value string
	if err := json.Unmarshal(trimmed, &value); err != nil {
		return nil, fmt.Errorf("assignedTo must be a user id or null")
	}
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	id, err := ids.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("assignedTo is not a valid user id")
	}
	return &id, nil
}

// parseDate accepts "" (clears the date) or a calendar date.
func parseDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", true
	}
	if len(value) > len(dateLayout) {
		// ISO timestamps from date pickers carry a time part.
		if parsed, err := time.Parse(time.RFC3339, value); err == nil {
			return parsed.UTC().Format(dateLayout), true
		}
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return "", false
	}
	return parsed.Format(dateLayout), true
}
