package app

import (
	"net/http"
	"strconv"
)

// handleNotifications serves /api/notifications/...
func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		unreadOnly, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
		s.respond(w, r, http.StatusOK)(s.service.ListNotifications(r.Context(), session, unreadOnly))
	case len(parts) == 1 && parts[0] == "read-all" && r.Method == http.MethodPost:
		s.respond(w, r, http.StatusOK)(s.service.MarkAllNotificationsRead(r.Context(), session))
	case len(parts) == 2 && parts[1] == "read" && (r.Method == http.MethodPatch || r.Method == http.MethodPut):
		notificationID, ok := parseID(w, parts[0], "notificationId")
		if !ok {
			return
		}
		s.respond(w, r, http.StatusOK)(s.service.MarkNotificationRead(r.Context(), session, notificationID))
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// handleInvitations serves /api/invitations/...
func (s *HTTPServer) handleInvitations(w http.ResponseWriter, r *http.Request, session Session, parts []string) {
	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		s.respondList(w, r)(s.service.ListInvitations(r.Context(), session, r.URL.Query().Get("email")))
	case len(parts) == 1 && parts[0] == "respond" && r.Method == http.MethodPost:
		var body RespondInvitationInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, r, http.StatusOK)(s.service.RespondInvitation(r.Context(), session, body))
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}
