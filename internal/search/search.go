// Package search finds tasks and projects by text, preferring Meilisearch and
// falling back to the primary store.
package search

import (
	"teamworks/api/internal/ids"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultTask    ResultType = "task"
	ResultProject ResultType = "project"
)

// ParseResultType maps the type query parameter. Empty means both kinds.
func ParseResultType(value string) (ResultType, bool) {
	switch ResultType(value) {
	case "":
		return "", true
	case ResultTask, ResultProject:
		return ResultType(value), true
	default:
		return "", false
	}
}

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	ProjectID string     `json:"projectId"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
}

// Query describes a search request. ProjectIDs bounds the results to the
// caller's projects; an empty list matches nothing.
type Query struct {
	Text       string
	FilterType ResultType
	ProjectIDs []ids.ID
	Limit      int
	Offset     int
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return defaultLimit
	case q.Limit > maxLimit:
		return maxLimit
	default:
		return q.Limit
	}
}

func (q Query) wants(t ResultType) bool {
	return q.FilterType == "" || q.FilterType == t
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Source  string   `json:"source"`
}

// Engine is a dedicated search index.
type Engine interface {
	Healthy() bool
	Search(q Query) ([]Result, int, error)
	IndexTasks(tasks []TaskRecord) error
	IndexProjects(projects []ProjectRecord) error
	DeleteTask(id string) error
	DeleteProject(id string) error
}

// TaskRecord is the data we index for a backlog task.
type TaskRecord struct {
	ID          string `json:"id"`
	ProjectID   string `json:"projectId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
}

// ProjectRecord is the data we index for a project.
type ProjectRecord struct {
	ID          string `json:"id"`
	ProjectID   string `json:"projectId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}
