package export

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/jung-kurt/gofpdf"
)

var chromiumBinaries = []string{"chromium-browser", "chromium", "google-chrome", "google-chrome-stable"}

func findChromium() (string, bool) {
	for _, name := range chromiumBinaries {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

// percentEncodeForDataURL encodes a string for use in a data URL. Spaces
// become %20, not +.
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			result.WriteByte(c)
		default:
			fmt.Fprintf(&result, "%%%02X", c)
		}
	}
	return result.String()
}

// chromePDF converts HTML to PDF using headless Chrome
func chromePDF(ctx context.Context, html string) ([]byte, error) {
	path, ok := findChromium()
	if !ok {
		return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(path),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var pdfData []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate("data:text/html;charset=utf-8,"+percentEncodeForDataURL(html)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfData, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(true).
				WithPaperWidth(8.27). // A4
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.5).
				WithMarginLeft(0.5).
				WithMarginRight(0.5).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}
	return pdfData, nil
}

var nativeColumns = []struct {
	header string
	width  float64
	value  func(ReportTask) string
}{
	{"Title", 80, func(t ReportTask) string { return t.Title }},
	{"Status", 25, func(t ReportTask) string { return t.Status }},
	{"Priority", 18, func(t ReportTask) string { return t.Priority }},
	{"Assignee", 35, func(t ReportTask) string { return t.Assignee }},
	{"Start", 22, func(t ReportTask) string { return t.StartDate }},
	{"Due", 22, func(t ReportTask) string { return t.DueDate }},
	{"Progress", 18, func(t ReportTask) string { return formatPercent(t.Progress) }},
	{"Depends on", 57, func(t ReportTask) string { return strings.Join(t.Dependencies, ", ") }},
}

// nativePDF lays the report out as a single table with gofpdf core fonts.
func nativePDF(report Report) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(report.ProjectName+" backlog", true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr(report.ProjectName))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 9)
	if report.Description != "" {
		pdf.MultiCell(0, 5, tr(report.Description), "", "L", false)
	}
	pdf.Cell(0, 6, tr(fmt.Sprintf("Owner: %s | Generated %s", report.Owner, report.GeneratedAt.Format("Jan 2, 2006 15:04 MST"))))
	pdf.Ln(6)
	s := report.Summary
	pdf.Cell(0, 6, fmt.Sprintf("Total: %d   To Do: %d   In Progress: %d   Done: %d   Average progress: %s",
		s.Total, s.ToDo, s.InProgress, s.Done, formatPercent(s.AverageProgress)))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(243, 244, 246)
	for _, col := range nativeColumns {
		pdf.CellFormat(col.width, 7, col.header, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, task := range report.Tasks {
		for _, col := range nativeColumns {
			pdf.CellFormat(col.width, 6, truncate(tr(col.value(task)), pdf, col.width-2), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(report.Tasks) == 0 {
		pdf.Cell(0, 6, "No tasks in this backlog.")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("native pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(text string, pdf *gofpdf.Fpdf, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	for len(text) > 0 && pdf.GetStringWidth(text+"...") > width {
		text = text[:len(text)-1]
	}
	return text + "..."
}
