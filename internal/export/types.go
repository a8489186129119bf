// Package export renders a project's backlog as a downloadable report.
package export

import (
	"errors"
	"strings"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

// ParseFormat accepts a format name case-insensitively; empty means PDF.
func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case "":
		return FormatPDF, nil
	case FormatJSON, FormatCSV, FormatPDF:
		return f, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Report is the backlog snapshot shared by every format.
type Report struct {
	ProjectID   string       `json:"projectId"`
	ProjectName string       `json:"projectName"`
	Description string       `json:"description"`
	Owner       string       `json:"owner"`
	GeneratedAt time.Time    `json:"generatedAt"`
	Summary     Summary      `json:"summary"`
	Tasks       []ReportTask `json:"tasks"`
}

// Summary counts tasks per status.
type Summary struct {
	Total           int     `json:"total"`
	ToDo            int     `json:"toDo"`
	InProgress      int     `json:"inProgress"`
	Done            int     `json:"done"`
	AverageProgress float64 `json:"averageProgress"`
}

// ReportTask is one backlog row with references resolved to names.
type ReportTask struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Status       string   `json:"status"`
	Priority     string   `json:"priority"`
	Assignee     string   `json:"assignee"`
	StartDate    string   `json:"startDate"`
	DueDate      string   `json:"dueDate"`
	Progress     float64  `json:"progress"`
	Dependencies []string `json:"dependencies"`
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates headless Chromium is not installed.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
