package app

import (
	"errors"
	"net/http"

	"teamworks/api/internal/ids"
)

func taskListFilter(r *http.Request) TaskListFilter {
	query := r.URL.Query()
	return TaskListFilter{
		Status:     query.Get("status"),
		Priority:   query.Get("priority"),
		AssignedTo: query.Get("assignedTo"),
	}
}

// handleBacklog serves /api/projects/{pid}/backlog/...
func (s *HTTPServer) handleBacklog(w http.ResponseWriter, r *http.Request, session Session, projectID ids.ID, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			s.respondList(w, r)(s.service.ListTasks(ctx, session, projectID, taskListFilter(r)))
		case http.MethodPost:
			body, err := readBody(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.respond(w, r, http.StatusCreated)(s.service.CreateTask(ctx, session, projectID, body))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	taskID, ok := parseID(w, parts[0], "taskId")
	if !ok {
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.respond(w, r, http.StatusOK)(s.service.GetTask(ctx, session, projectID, taskID))
		case http.MethodPut, http.MethodPatch:
			body, err := readBody(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.respond(w, r, http.StatusOK)(s.service.UpdateTask(ctx, session, projectID, taskID, body))
		case http.MethodDelete:
			s.respond(w, r, http.StatusOK)(s.service.DeleteTask(ctx, session, projectID, taskID))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch parts[1] {
	case "dependencies":
		s.handleDependencies(w, r, session, projectID, taskID, parts[2:])
	case "dependents":
		if r.Method == http.MethodGet && len(parts) == 2 {
			s.respondList(w, r)(s.service.Dependents(ctx, session, projectID, taskID))
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	case "comments":
		s.handleComments(w, r, session, projectID, taskID, parts[2:])
	case "attachments":
		s.handleAttachments(w, r, session, projectID, taskID, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleDependencies(w http.ResponseWriter, r *http.Request, session Session, projectID, taskID ids.ID, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		var body struct {
			DependencyID string `json:"dependencyId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, r, http.StatusOK)(s.service.AddDependency(r.Context(), session, projectID, taskID, body.DependencyID))
	case len(parts) == 1 && r.Method == http.MethodDelete:
		// Malformed dependency ids surface as INVALID_REFERENCE from the manager.
		s.respond(w, r, http.StatusOK)(s.service.RemoveDependency(r.Context(), session, projectID, taskID, parts[0]))
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleComments(w http.ResponseWriter, r *http.Request, session Session, projectID, taskID ids.ID, parts []string) {
	if len(parts) != 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.respondList(w, r)(s.service.ListComments(r.Context(), session, projectID, taskID))
	case http.MethodPost:
		var body struct {
			Text string `json:"text"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, r, http.StatusCreated)(s.service.AddComment(r.Context(), session, projectID, taskID, body.Text))
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleAttachments(w http.ResponseWriter, r *http.Request, session Session, projectID, taskID ids.ID, parts []string) {
	ctx := r.Context()
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		s.respondList(w, r)(s.service.ListAttachments(ctx, session, projectID, taskID))
	case len(parts) == 0 && r.Method == http.MethodPost:
		s.handleUpload(w, r, session, projectID, taskID)
	case len(parts) == 1 && r.Method == http.MethodGet:
		attachmentID, ok := parseID(w, parts[0], "attachmentId")
		if !ok {
			return
		}
		s.respond(w, r, http.StatusOK)(s.service.AttachmentURL(ctx, session, projectID, taskID, attachmentID))
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, session Session, projectID, taskID ids.ID) {
	if !s.service.AttachmentsEnabled() {
		s.writeServiceError(w, r, domainError(http.StatusServiceUnavailable, "ATTACHMENTS_UNAVAILABLE", "Attachment storage is not configured", nil))
		return
	}
	limit := s.service.cfg.MaxUploadBytes
	if limit > 0 {
		// Leave room for the multipart framing around the file.
		r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "File is too large", nil)
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected a multipart form with a file field", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "file is required", map[string]string{"file": "required"})
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	s.respond(w, r, http.StatusCreated)(s.service.UploadAttachment(r.Context(), session, projectID, taskID, UploadInput{
		FileName:    header.Filename,
		ContentType: contentType,
		Size:        header.Size,
		Body:        file,
	}))
}
