package app

import (
	"net/http"
	"strconv"

	"teamworks/api/internal/ids"
)

// handleProjects serves /api/projects/... with parts relative to "projects".
func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			s.respondList(w, r)(s.service.ListProjects(r.Context(), session))
		case http.MethodPost:
			var body CreateProjectInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.respond(w, r, http.StatusCreated)(s.service.CreateProject(r.Context(), session, body))
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	projectID, ok := parseID(w, parts[0], "projectId")
	if !ok {
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			s.respond(w, r, http.StatusOK)(s.service.GetProject(r.Context(), session, projectID))
		case http.MethodPut, http.MethodPatch:
			var body UpdateProjectInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			s.respond(w, r, http.StatusOK)(s.service.UpdateProject(r.Context(), session, projectID, body))
		case http.MethodDelete:
			if err := s.service.DeleteProject(r.Context(), session, projectID); err != nil {
				s.writeServiceError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"id": projectID.String(), "deleted": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch {
	case parts[1] == "backlog":
		s.handleBacklog(w, r, session, projectID, parts[2:])

	case len(parts) == 2 && parts[1] == "name" && r.Method == http.MethodPut:
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, r, http.StatusOK)(s.service.UpdateProject(r.Context(), session, projectID, UpdateProjectInput{Name: &body.Name}))

	case len(parts) == 2 && parts[1] == "owner" && r.Method == http.MethodPut:
		var body struct {
			OwnerID string `json:"ownerId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		ownerID, err := ids.Parse(body.OwnerID)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "ownerId is not a valid user id", map[string]string{"ownerId": "invalid id"})
			return
		}
		s.respond(w, r, http.StatusOK)(s.service.TransferOwnership(r.Context(), session, projectID, ownerID))

	case len(parts) == 3 && parts[1] == "members" && r.Method == http.MethodDelete:
		userID, ok := parseID(w, parts[2], "userId")
		if !ok {
			return
		}
		s.respond(w, r, http.StatusOK)(s.service.RemoveMember(r.Context(), session, projectID, userID))

	case len(parts) == 2 && parts[1] == "invitations" && r.Method == http.MethodPost:
		var body struct {
			Email string `json:"email"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, r, http.StatusCreated)(s.service.InviteMember(r.Context(), session, projectID, body.Email))

	case len(parts) == 2 && parts[1] == "export" && r.Method == http.MethodGet:
		s.handleExport(w, r, session, projectID)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session Session, projectID ids.ID) {
	result, err := s.service.Export(r.Context(), session, projectID, r.URL.Query().Get("format"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(result.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func queryInt(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", name+" must be a non-negative integer", map[string]string{name: "invalid"})
		return 0, false
	}
	return value, true
}
