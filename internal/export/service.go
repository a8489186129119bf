package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"teamworks/api/internal/ids"
	"teamworks/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetProject(ctx context.Context, projectID ids.ID) (store.Project, error)
	ListTasks(ctx context.Context, projectID ids.ID, filter store.TaskFilter) ([]store.Task, error)
	ListUsersByIDs(ctx context.Context, userIDs []ids.ID) ([]store.User, error)
}

// Service builds backlog reports
type Service struct {
	store  DataStore
	logger *log.Logger
	now    func() time.Time
	chrome func(ctx context.Context, html string) ([]byte, error)
}

// NewService creates a new export service
func NewService(store DataStore, logger *log.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.WithPrefix("export"),
		now:    time.Now,
		chrome: chromePDF,
	}
}

// Export generates a report of the project's backlog in the requested format.
func (s *Service) Export(ctx context.Context, projectID ids.ID, format Format) (*Result, error) {
	report, err := s.BuildReport(ctx, projectID)
	if err != nil {
		return nil, err
	}
	base := sanitizeFilename(report.ProjectName) + "-backlog"

	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode report: %w", err)
		}
		return &Result{Data: data, Filename: base + ".json", MimeType: "application/json"}, nil
	case FormatCSV:
		data, err := renderCSV(report)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: base + ".csv", MimeType: "text/csv; charset=utf-8"}, nil
	case FormatPDF:
		data, err := s.renderPDF(ctx, report)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: base + ".pdf", MimeType: "application/pdf"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// BuildReport loads the project and resolves assignee and dependency ids to
// display names.
func (s *Service) BuildReport(ctx context.Context, projectID ids.ID) (Report, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return Report{}, fmt.Errorf("get project: %w", err)
	}
	tasks, err := s.store.ListTasks(ctx, projectID, store.TaskFilter{})
	if err != nil {
		return Report{}, fmt.Errorf("list tasks: %w", err)
	}

	userIDs := []ids.ID{project.OwnerID}
	for _, task := range tasks {
		if task.AssignedTo != nil {
			userIDs = append(userIDs, *task.AssignedTo)
		}
	}
	users, err := s.store.ListUsersByIDs(ctx, userIDs)
	if err != nil {
		return Report{}, fmt.Errorf("list users: %w", err)
	}
	names := make(map[ids.ID]string, len(users))
	for _, user := range users {
		names[user.ID] = user.FullName
	}
	titles := make(map[ids.ID]string, len(tasks))
	for _, task := range tasks {
		titles[task.ID] = task.Title
	}

	report := Report{
		ProjectID:   project.ID.String(),
		ProjectName: project.Name,
		Description: project.Description,
		Owner:       names[project.OwnerID],
		GeneratedAt: s.now().UTC(),
		Tasks:       make([]ReportTask, 0, len(tasks)),
	}
	var progressSum float64
	for _, task := range tasks {
		row := ReportTask{
			ID:           task.ID.String(),
			Title:        task.Title,
			Status:       task.Status,
			Priority:     task.Priority,
			StartDate:    task.StartDate,
			DueDate:      task.DueDate,
			Progress:     task.Progress,
			Dependencies: make([]string, 0, len(task.Dependencies)),
		}
		if task.AssignedTo != nil {
			row.Assignee = names[*task.AssignedTo]
		}
		for _, dep := range task.Dependencies {
			if title, ok := titles[dep]; ok {
				row.Dependencies = append(row.Dependencies, title)
			}
		}
		report.Tasks = append(report.Tasks, row)

		switch task.Status {
		case store.StatusToDo:
			report.Summary.ToDo++
		case store.StatusInProgress:
			report.Summary.InProgress++
		case store.StatusDone:
			report.Summary.Done++
		}
		progressSum += task.Progress
	}
	report.Summary.Total = len(tasks)
	if len(tasks) > 0 {
		report.Summary.AverageProgress = math.Round(progressSum/float64(len(tasks))*100) / 100
	}
	return report, nil
}

func renderCSV(report Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "title", "status", "priority", "assignee", "start_date", "due_date", "progress", "dependencies"})
	for _, task := range report.Tasks {
		_ = w.Write([]string{
			task.ID,
			task.Title,
			task.Status,
			task.Priority,
			task.Assignee,
			task.StartDate,
			task.DueDate,
			strconv.FormatFloat(task.Progress, 'f', 2, 64),
			strings.Join(task.Dependencies, "; "),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// renderPDF prints the HTML report with headless Chromium and falls back to
// a plain table layout when Chromium is missing or fails.
func (s *Service) renderPDF(ctx context.Context, report Report) ([]byte, error) {
	html, err := RenderReportHTML(report)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	data, err := s.chrome(ctx, html)
	if err == nil {
		return data, nil
	}
	if errors.Is(err, ErrPDFDependencyMissing) {
		s.logger.Debug("chromium not installed, using native pdf")
	} else {
		s.logger.Warn("chromium pdf failed, using native pdf", "err", err)
	}
	return nativePDF(report)
}

// sanitizeFilename creates a safe filename from a title
func sanitizeFilename(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('-')
		}
		if b.Len() >= 50 {
			break
		}
	}
	if b.Len() == 0 {
		return "project"
	}
	return b.String()
}
