package search

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/charmbracelet/log"

	"teamworks/api/internal/ids"
	"teamworks/api/internal/store"
)

// Fallback is the store-side search used while the engine is down.
type Fallback interface {
	SearchTasks(ctx context.Context, text string, projectIDs []ids.ID) ([]store.SearchHit, error)
	SearchProjects(ctx context.Context, text string, projectIDs []ids.ID) ([]store.SearchHit, error)
}

// Source lists every searchable entity for a full reindex.
type Source interface {
	ListAllTasks(ctx context.Context) ([]store.Task, error)
	ListAllProjects(ctx context.Context) ([]store.Project, error)
}

var ErrEngineUnavailable = errors.New("search engine unavailable")

// Service is the facade that tries the engine first and falls back to the store.
type Service struct {
	engine   Engine
	fallback Fallback
	logger   *log.Logger
	async    func(func())
}

// NewService creates a search service. engine may be nil if Meilisearch is
// not configured.
func NewService(engine Engine, fallback Fallback, logger *log.Logger) *Service {
	return &Service{
		engine:   engine,
		fallback: fallback,
		logger:   logger.WithPrefix("search"),
		async:    func(fn func()) { go fn() },
	}
}

func (s *Service) engineUp() bool {
	return s.engine != nil && s.engine.Healthy()
}

// Search tries the engine if healthy, otherwise falls back to the store.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if len(q.ProjectIDs) == 0 || q.Text == "" {
		return Response{Results: []Result{}, Query: q.Text, Source: "none"}
	}
	if s.engineUp() {
		results, total, err := s.engine.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: "meilisearch"}
		}
		s.logger.Warn("engine error, falling back to store", "err", err)
	}

	results, err := s.searchStore(ctx, q)
	if err != nil {
		s.logger.Error("store search failed", "err", err)
		return Response{Results: []Result{}, Query: q.Text, Source: "store"}
	}
	total := len(results)
	return Response{Results: page(results, q.Offset, q.limit()), Total: total, Query: q.Text, Source: "store"}
}

func (s *Service) searchStore(ctx context.Context, q Query) ([]Result, error) {
	var hits []store.SearchHit
	if q.wants(ResultProject) {
		found, err := s.fallback.SearchProjects(ctx, q.Text, q.ProjectIDs)
		if err != nil {
			return nil, fmt.Errorf("search projects: %w", err)
		}
		hits = append(hits, found...)
	}
	if q.wants(ResultTask) {
		found, err := s.fallback.SearchTasks(ctx, q.Text, q.ProjectIDs)
		if err != nil {
			return nil, fmt.Errorf("search tasks: %w", err)
		}
		hits = append(hits, found...)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].UpdatedAt.After(hits[j].UpdatedAt) })

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			Type:      ResultType(hit.Kind),
			ID:        hit.ID.String(),
			ProjectID: hit.ProjectID.String(),
			Title:     hit.Title,
			Snippet:   snippet(hit.Snippet),
		})
	}
	return results, nil
}

// IndexTask indexes a task (fire-and-forget).
func (s *Service) IndexTask(task store.Task) {
	if !s.engineUp() {
		return
	}
	record := TaskRecordFrom(task)
	s.async(func() {
		if err := s.engine.IndexTasks([]TaskRecord{record}); err != nil {
			s.logger.Warn("index task", "id", record.ID, "err", err)
		}
	})
}

// IndexProject indexes a project (fire-and-forget).
func (s *Service) IndexProject(project store.Project) {
	if !s.engineUp() {
		return
	}
	record := ProjectRecordFrom(project)
	s.async(func() {
		if err := s.engine.IndexProjects([]ProjectRecord{record}); err != nil {
			s.logger.Warn("index project", "id", record.ID, "err", err)
		}
	})
}

// DeleteTask removes a task from the index (fire-and-forget).
func (s *Service) DeleteTask(id ids.ID) {
	if !s.engineUp() {
		return
	}
	s.async(func() {
		if err := s.engine.DeleteTask(id.String()); err != nil {
			s.logger.Warn("delete task", "id", id, "err", err)
		}
	})
}

// DeleteProject removes a project and its tasks from the index (fire-and-forget).
func (s *Service) DeleteProject(id ids.ID, taskIDs []ids.ID) {
	if !s.engineUp() {
		return
	}
	s.async(func() {
		if err := s.engine.DeleteProject(id.String()); err != nil {
			s.logger.Warn("delete project", "id", id, "err", err)
		}
		for _, taskID := range taskIDs {
			if err := s.engine.DeleteTask(taskID.String()); err != nil {
				s.logger.Warn("delete task", "id", taskID, "err", err)
			}
		}
	})
}

// Reindex pushes every task and project from source into the engine and
// reports how many of each were sent.
func (s *Service) Reindex(ctx context.Context, source Source) (int, int, error) {
	if !s.engineUp() {
		return 0, 0, ErrEngineUnavailable
	}
	projects, err := source.ListAllProjects(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load projects: %w", err)
	}
	tasks, err := source.ListAllTasks(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("load tasks: %w", err)
	}

	projectRecords := make([]ProjectRecord, 0, len(projects))
	for _, project := range projects {
		projectRecords = append(projectRecords, ProjectRecordFrom(project))
	}
	taskRecords := make([]TaskRecord, 0, len(tasks))
	for _, task := range tasks {
		taskRecords = append(taskRecords, TaskRecordFrom(task))
	}

	if err := s.engine.IndexProjects(projectRecords); err != nil {
		return 0, 0, fmt.Errorf("index projects: %w", err)
	}
	if err := s.engine.IndexTasks(taskRecords); err != nil {
		return len(projectRecords), 0, fmt.Errorf("index tasks: %w", err)
	}
	s.logger.Info("reindex complete", "projects", len(projectRecords), "tasks", len(taskRecords))
	return len(projectRecords), len(taskRecords), nil
}

func TaskRecordFrom(task store.Task) TaskRecord {
	return TaskRecord{
		ID:          task.ID.String(),
		ProjectID:   task.ProjectID.String(),
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		Priority:    task.Priority,
	}
}

func ProjectRecordFrom(project store.Project) ProjectRecord {
	return ProjectRecord{
		ID:          project.ID.String(),
		ProjectID:   project.ID.String(),
		Name:        project.Name,
		Description: project.Description,
	}
}

const snippetRunes = 160

func snippet(text string) string {
	runes := []rune(text)
	if len(runes) <= snippetRunes {
		return text
	}
	return string(runes[:snippetRunes]) + "…"
}

func page(results []Result, offset, limit int) []Result {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []Result{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}

// EngineHealthy reports whether queries are currently served by the engine.
func (s *Service) EngineHealthy() bool {
	return s.engineUp()
}
