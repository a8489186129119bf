package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"teamworks/api/internal/blob"
	"teamworks/api/internal/export"
	"teamworks/api/internal/ids"
	"teamworks/api/internal/rbac"
	"teamworks/api/internal/search"
	"teamworks/api/internal/store"
)

const (
	attachmentURLTTL     = 15 * time.Minute
	removeObjectsTimeout = time.Minute
)

func (s *Service) requireBlobs() error {
	if s.blobs == nil {
		return domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage is not configured", nil)
	}
	return nil
}

func (s *Service) ListAttachments(ctx context.Context, session Session, projectID, taskID ids.ID) ([]map[string]any, error) {
	if err := s.requireBlobs(); err != nil {
		return nil, err
	}
	task, _, err := s.loadTask(ctx, session, projectID, taskID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, task.ID)
	if err != nil {
		return nil, storeFailure(err)
	}
	return mapSlice(attachments, attachmentPayload), nil
}

// UploadInput is one file of a multipart upload.
type UploadInput struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadAttachment writes the object first and records it second; a failed
// insert removes the object again.
func (s *Service) UploadAttachment(ctx context.Context, session Session, projectID, taskID ids.ID, upload UploadInput) (map[string]any, error) {
	if err := s.requireBlobs(); err != nil {
		return nil, err
	}
	task, project, err := s.loadTask(ctx, session, projectID, taskID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	if upload.Size <= 0 {
		return nil, validationError("file", "File is empty")
	}
	if s.cfg.MaxUploadBytes > 0 && upload.Size > s.cfg.MaxUploadBytes {
		return nil, domainError(http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
			fmt.Sprintf("File exceeds the %d byte limit", s.cfg.MaxUploadBytes), nil)
	}

	fileName := blob.SafeFileName(upload.FileName)
	attachment := store.Attachment{
		ID:          ids.New(),
		TaskID:      task.ID,
		ProjectID:   project.ID,
		FileName:    fileName,
		ContentType: upload.ContentType,
		SizeBytes:   upload.Size,
		ObjectKey:   blob.ObjectKey(project.ID, task.ID, fileName),
		UploadedBy:  session.UserID,
		CreatedAt:   s.now(),
	}
	if err := s.blobs.Put(ctx, attachment.ObjectKey, upload.Body, upload.Size, upload.ContentType); err != nil {
		return nil, domainError(http.StatusBadGateway, "UPLOAD_FAILED", "Could not store the file", nil)
	}
	if err := s.store.InsertAttachment(ctx, attachment); err != nil {
		s.removeObjects([]string{attachment.ObjectKey})
		return nil, storeFailure(err)
	}
	return attachmentPayload(attachment), nil
}

// AttachmentURL returns a short-lived download link.
func (s *Service) AttachmentURL(ctx context.Context, session Session, projectID, taskID, attachmentID ids.ID) (map[string]any, error) {
	if err := s.requireBlobs(); err != nil {
		return nil, err
	}
	task, _, err := s.loadTask(ctx, session, projectID, taskID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	attachment, err := s.store.GetAttachment(ctx, attachmentID, task.ID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusNotFound, "ATTACHMENT_NOT_FOUND", "Attachment not found", nil)
		}
		return nil, storeFailure(err)
	}
	url, err := s.blobs.PresignGet(ctx, attachment.ObjectKey, attachment.FileName, attachmentURLTTL)
	if err != nil {
		return nil, domainError(http.StatusBadGateway, "DOWNLOAD_FAILED", "Could not create a download link", nil)
	}
	payload := attachmentPayload(attachment)
	payload["url"] = url
	payload["expiresAt"] = formatTime(s.now().Add(attachmentURLTTL))
	return payload, nil
}

// Export renders the project's backlog report.
func (s *Service) Export(ctx context.Context, session Session, projectID ids.ID, rawFormat string) (*export.Result, error) {
	project, err := s.authorize(ctx, session, projectID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		return nil, validationError("format", "format must be pdf, csv or json")
	}
	return s.exporter.Export(ctx, project.ID, format)
}

// SearchInput carries the raw search query parameters.
type SearchInput struct {
	Text   string
	Type   string
	Limit  int
	Offset int
}

// Search looks for tasks and projects inside the caller's projects.
func (s *Service) Search(ctx context.Context, session Session, input SearchInput) (search.Response, error) {
	kind, ok := search.ParseResultType(input.Type)
	if !ok {
		return search.Response{}, validationError("type", "type must be task or project")
	}
	if input.Limit < 0 || input.Offset < 0 {
		return search.Response{}, validationError("limit", "limit and offset must not be negative")
	}
	_, projectIDs, err := s.projectIDsFor(ctx, session.UserID)
	if err != nil {
		return search.Response{}, err
	}
	return s.search.Search(ctx, search.Query{
		Text:       strings.TrimSpace(input.Text),
		FilterType: kind,
		ProjectIDs: projectIDs,
		Limit:      input.Limit,
		Offset:     input.Offset,
	}), nil
}
