package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"teamworks/api/internal/authpw"
	"teamworks/api/internal/ids"
	"teamworks/api/internal/rbac"
	"teamworks/api/internal/store"
)

const maxProjectNameLength = 120

type CreateProjectInput struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	MemberEmails []string `json:"memberEmails"`
}

type UpdateProjectInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func normalizeProjectName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationError("name", "Project name is required")
	}
	if len([]rune(name)) > maxProjectNameLength {
		return "", validationError("name", "Project name is too long")
	}
	return name, nil
}

func (s *Service) ListProjects(ctx context.Context, session Session) ([]map[string]any, error) {
	projects, err := s.store.ListProjectsForUser(ctx, session.UserID)
	if err != nil {
		return nil, storeFailure(err)
	}
	out := make([]map[string]any, 0, len(projects))
	for _, project := range projects {
		payload := projectPayload(project)
		payload["role"] = rbac.RoleIn(session.UserID, project.OwnerID, project.MemberIDs)
		out = append(out, payload)
	}
	return out, nil
}

// CreateProject makes the caller the owner and invites memberEmails.
func (s *Service) CreateProject(ctx context.Context, session Session, input CreateProjectInput) (map[string]any, error) {
	name, err := normalizeProjectName(input.Name)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(input.MemberEmails))
	for _, raw := range input.MemberEmails {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		email, err := authpw.NormalizeEmail(raw)
		if err != nil {
			return nil, validationError("memberEmails", "Invalid email address: "+raw)
		}
		if email != session.Email {
			emails = append(emails, email)
		}
	}

	now := s.now()
	project := store.Project{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		OwnerID:     session.UserID,
		MemberIDs:   []ids.ID{session.UserID},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, storeFailure(err)
	}
	s.search.IndexProject(project)
	s.logger.Info("project created", "project_id", project.ID, "owner_id", session.UserID)

	invitations := make([]map[string]any, 0, len(emails))
	for _, email := range emails {
		inv, err := s.invite(ctx, session, project, email)
		if err != nil {
			var domainErr *DomainError
			if errors.As(err, &domainErr) && domainErr.Status == http.StatusConflict {
				continue
			}
			return nil, err
		}
		invitations = append(invitations, invitationPayload(inv))
	}

	payload := projectPayload(project)
	payload["invitations"] = invitations
	return payload, nil
}

// GetProject returns the project with its members resolved to users.
func (s *Service) GetProject(ctx context.Context, session Session, projectID ids.ID) (map[string]any, error) {
	project, err := s.authorize(ctx, session, projectID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	users, err := s.store.ListUsersByIDs(ctx, project.MemberIDs)
	if err != nil {
		return nil, storeFailure(err)
	}
	members := make([]map[string]any, 0, len(users))
	for _, user := range users {
		member := userPayload(user)
		member["role"] = rbac.RoleIn(user.ID, project.OwnerID, project.MemberIDs)
		members = append(members, member)
	}
	payload := projectPayload(project)
	payload["members"] = members
	payload["role"] = rbac.RoleIn(session.UserID, project.OwnerID, project.MemberIDs)
	return payload, nil
}

func (s *Service) UpdateProject(ctx context.Context, session Session, projectID ids.ID, input UpdateProjectInput) (map[string]any, error) {
	project, err := s.authorize(ctx, session, projectID, rbac.ActionManage)
	if err != nil {
		return nil, err
	}
	if input.Name != nil {
		name, err := normalizeProjectName(*input.Name)
		if err != nil {
			return nil, err
		}
		project.Name = name
	}
	if input.Description != nil {
		project.Description = strings.TrimSpace(*input.Description)
	}
	project.UpdatedAt = s.now()
	if err := s.store.UpdateProject(ctx, project); err != nil {
		return nil, storeFailure(err)
	}
	s.search.IndexProject(project)
	return projectPayload(project), nil
}

// TransferOwnership hands the project to an existing member. The previous
// owner stays a member.
func (s *Service) TransferOwnership(ctx context.Context, session Session, projectID, newOwnerID ids.ID) (map[string]any, error) {
	project, err := s.authorize(ctx, session, projectID, rbac.ActionManage)
	if err != nil {
		return nil, err
	}
	if newOwnerID == project.OwnerID {
		return projectPayload(project), nil
	}
	if !ids.Contains(project.MemberIDs, newOwnerID) {
		return nil, validationError("ownerId", "New owner must be a project member")
	}
	project.OwnerID = newOwnerID
	project.UpdatedAt = s.now()
	if err := s.store.UpdateProject(ctx, project); err != nil {
		return nil, storeFailure(err)
	}
	s.logger.Info("project ownership transferred", "project_id", project.ID, "from", session.UserID, "to", newOwnerID)
	return projectPayload(project), nil
}

// DeleteProject removes the project with its tasks, comments, invitations,
// notifications and attachments.
func (s *Service) DeleteProject(ctx context.Context, session Session, projectID ids.ID) error {
	project, err := s.authorize(ctx, session, projectID, rbac.ActionManage)
	if err != nil {
		return err
	}
	tasks, err := s.store.ListTasks(ctx, project.ID, store.TaskFilter{})
	if err != nil {
		return storeFailure(err)
	}
	var objectKeys []string
	taskIDs := make([]ids.ID, 0, len(tasks))
	for _, task := range tasks {
		taskIDs = append(taskIDs, task.ID)
		if s.blobs == nil {
			continue
		}
		attachments, err := s.store.ListAttachments(ctx, task.ID)
		if err != nil {
			return storeFailure(err)
		}
		for _, a := range attachments {
			objectKeys = append(objectKeys, a.ObjectKey)
		}
	}

	if err := s.store.DeleteProject(ctx, project.ID); err != nil {
		if !errors.Is(err, store.ErrPartialDelete) {
			return storeFailure(err)
		}
		s.logger.Warn("project deleted with incomplete cleanup", "project_id", project.ID, "err", err)
	}
	s.search.DeleteProject(project.ID, taskIDs)
	s.removeObjects(objectKeys)
	s.logger.Info("project deleted", "project_id", project.ID, "tasks", len(tasks))
	return nil
}

// RemoveMember drops a member and unassigns their tasks. The owner cannot be
// removed.
func (s *Service) RemoveMember(ctx context.Context, session Session, projectID, userID ids.ID) (map[string]any, error) {
	project, err := s.authorize(ctx, session, projectID, rbac.ActionManage)
	if err != nil {
		return nil, err
	}
	if userID == project.OwnerID {
		return nil, domainError(http.StatusUnprocessableEntity, "CANNOT_REMOVE_OWNER", "The project owner cannot be removed", nil)
	}
	removed, err := s.store.RemoveProjectMember(ctx, project.ID, userID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if !removed {
		return nil, domainError(http.StatusNotFound, "MEMBER_NOT_FOUND", "User is not a member of this project", nil)
	}
	unassigned, err := s.store.UnassignTasks(ctx, project.ID, userID, s.now())
	if err != nil {
		return nil, storeFailure(err)
	}
	return map[string]any{
		"projectId":       project.ID.String(),
		"removedUserId":   userID.String(),
		"unassignedTasks": unassigned,
	}, nil
}

// InviteMember records a pending invitation and emails the invitee when mail
// is configured.
func (s *Service) InviteMember(ctx context.Context, session Session, projectID ids.ID, rawEmail string) (map[string]any, error) {
	project, err := s.authorize(ctx, session, projectID, rbac.ActionManage)
	if err != nil {
		return nil, err
	}
	email, err := authpw.NormalizeEmail(rawEmail)
	if err != nil {
		return nil, validationError("email", "A valid email address is required")
	}
	inv, err := s.invite(ctx, session, project, email)
	if err != nil {
		return nil, err
	}
	return invitationPayload(inv), nil
}

func (s *Service) invite(ctx context.Context, session Session, project store.Project, email string) (store.Invitation, error) {
	existing, err := s.store.GetUserByEmail(ctx, email)
	switch {
	case err == nil && project.HasMember(existing.ID):
		return store.Invitation{}, domainError(http.StatusConflict, "ALREADY_MEMBER", "User is already a project member", nil)
	case err != nil && !store.IsNotFound(err):
		return store.Invitation{}, storeFailure(err)
	}

	now := s.now()
	inv := store.Invitation{
		ID:          ids.New(),
		ProjectID:   project.ID,
		ProjectName: project.Name,
		Email:       email,
		InvitedBy:   session.UserID,
		Status:      store.InvitationPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertInvitation(ctx, inv); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.Invitation{}, domainError(http.StatusConflict, "INVITATION_EXISTS", "An invitation is already pending for this email", nil)
		}
		return store.Invitation{}, storeFailure(err)
	}

	if s.mailer != nil && s.mailer.IsConfigured() {
		inviter := session.UserName
		s.async(func() {
			if err := s.mailer.SendInvitationEmail(email, project.Name, inviter); err != nil {
				s.logger.Warn("send invitation email", "project_id", project.ID, "err", err)
			}
		})
	}
	return inv, nil
}

func (s *Service) removeObjects(keys []string) {
	if s.blobs == nil || len(keys) == 0 {
		return
	}
	s.async(func() {
		ctx, cancel := context.WithTimeout(context.Background(), removeObjectsTimeout)
		defer cancel()
		for _, key := range keys {
			if err := s.blobs.Remove(ctx, key); err != nil {
				s.logger.Warn("remove attachment object", "key", key, "err", err)
			}
		}
	})
}
