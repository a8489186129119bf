package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"teamworks/api/internal/authpw"
	"teamworks/api/internal/ids"
	"teamworks/api/internal/rbac"
	"teamworks/api/internal/store"
)

const maxCommentLength = 5000

// Comments

func (s *Service) ListComments(ctx context.Context, session Session, projectID, taskID ids.ID) ([]map[string]any, error) {
	task, _, err := s.loadTask(ctx, session, projectID, taskID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListComments(ctx, task.ID)
	if err != nil {
		return nil, storeFailure(err)
	}
	return mapSlice(comments, commentPayload), nil
}

// AddComment stores the comment under the caller's current display name and
// notifies the task's assignee.
func (s *Service) AddComment(ctx context.Context, session Session, projectID, taskID ids.ID, text string) (map[string]any, error) {
	task, project, err := s.loadTask(ctx, session, projectID, taskID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, validationError("text", "Comment text is required")
	}
	if len([]rune(text)) > maxCommentLength {
		return nil, validationError("text", "Comment is too long")
	}

	comment := store.Comment{
		ID:         ids.New(),
		TaskID:     task.ID,
		ProjectID:  project.ID,
		AuthorID:   session.UserID,
		AuthorName: session.UserName,
		Body:       text,
		CreatedAt:  s.now(),
	}
	if err := s.store.InsertComment(ctx, comment); err != nil {
		return nil, storeFailure(err)
	}

	if task.AssignedTo != nil && *task.AssignedTo != session.UserID {
		message := fmt.Sprintf("%s commented on %q", session.UserName, task.Title)
		s.notify(ctx, *task.AssignedTo, store.NotificationTaskCommented, message, &project.ID, &task.ID)
	}
	return commentPayload(comment), nil
}

// Notifications

func (s *Service) ListNotifications(ctx context.Context, session Session, unreadOnly bool) (map[string]any, error) {
	items, err := s.store.ListNotifications(ctx, session.UserID, unreadOnly)
	if err != nil {
		return nil, storeFailure(err)
	}
	unread := 0
	for _, n := range items {
		if !n.Read {
			unread++
		}
	}
	return map[string]any{
		"notifications": mapSlice(items, notificationPayload),
		"unreadCount":   unread,
	}, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, session Session, notificationID ids.ID) (map[string]any, error) {
	ok, err := s.store.MarkNotificationRead(ctx, notificationID, session.UserID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if !ok {
		return nil, domainError(http.StatusNotFound, "NOTIFICATION_NOT_FOUND", "Notification not found", nil)
	}
	return map[string]any{"id": notificationID.String(), "isRead": true}, nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, session Session) (map[string]any, error) {
	updated, err := s.store.MarkAllNotificationsRead(ctx, session.UserID)
	if err != nil {
		return nil, storeFailure(err)
	}
	return map[string]any{"updated": updated}, nil
}

// Invitations

// ListInvitations returns pending invitations for the caller's email. A
// requested email other than the caller's is refused.
func (s *Service) ListInvitations(ctx context.Context, session Session, requestedEmail string) ([]map[string]any, error) {
	if strings.TrimSpace(requestedEmail) != "" {
		email, err := authpw.NormalizeEmail(requestedEmail)
		if err != nil || email != session.Email {
			return nil, forbidden("You can only view your own invitations")
		}
	}
	invitations, err := s.store.ListPendingInvitations(ctx, session.Email)
	if err != nil {
		return nil, storeFailure(err)
	}
	return mapSlice(invitations, invitationPayload), nil
}

type RespondInvitationInput struct {
	ProjectID string `json:"projectId"`
	Action    string `json:"action"`
}

// RespondInvitation accepts or declines the caller's pending invitation and
// notifies the project owner either way.
func (s *Service) RespondInvitation(ctx context.Context, session Session, input RespondInvitationInput) (map[string]any, error) {
	projectID, err := ids.Parse(input.ProjectID)
	if err != nil {
		return nil, validationError("projectId", "projectId must be a valid id")
	}
	var status, kind, verb string
	switch strings.ToLower(strings.TrimSpace(input.Action)) {
	case "accept":
		status, kind, verb = store.InvitationAccepted, store.NotificationInvitationAccepted, "accepted"
	case "decline":
		status, kind, verb = store.InvitationDeclined, store.NotificationInvitationDeclined, "declined"
	default:
		return nil, validationError("action", "action must be accept or decline")
	}

	inv, err := s.store.GetPendingInvitation(ctx, projectID, session.Email)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusNotFound, "INVITATION_NOT_FOUND", "No pending invitation for this project", nil)
		}
		return nil, storeFailure(err)
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusNotFound, "PROJECT_NOT_FOUND", "Project not found", nil)
		}
		return nil, storeFailure(err)
	}

	if status == store.InvitationAccepted && !project.HasMember(session.UserID) {
		if err := s.store.AddProjectMember(ctx, project.ID, session.UserID); err != nil {
			return nil, storeFailure(err)
		}
		project.MemberIDs = append(project.MemberIDs, session.UserID)
	}
	now := s.now()
	if err := s.store.UpdateInvitationStatus(ctx, inv.ID, status, now); err != nil {
		return nil, storeFailure(err)
	}
	inv.Status = status
	inv.UpdatedAt = now

	message := fmt.Sprintf("%s %s your invitation to %s", session.UserName, verb, project.Name)
	s.notify(ctx, project.OwnerID, kind, message, &project.ID, nil)
	s.logger.Info("invitation answered", "project_id", project.ID, "user_id", session.UserID, "status", status)

	payload := invitationPayload(inv)
	if status == store.InvitationAccepted {
		payload["project"] = projectPayload(project)
	}
	return payload, nil
}
