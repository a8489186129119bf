package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"teamworks/api/internal/auth"
	"teamworks/api/internal/authpw"
	"teamworks/api/internal/backlog"
	"teamworks/api/internal/blob"
	"teamworks/api/internal/config"
	"teamworks/api/internal/export"
	"teamworks/api/internal/ids"
	"teamworks/api/internal/rbac"
	"teamworks/api/internal/search"
	sessionstore "teamworks/api/internal/session"
	"teamworks/api/internal/store"
)

// Session is the authenticated caller, resolved once from the bearer token.
type Session struct {
	Token        string
	RefreshToken string
	UserID       ids.ID
	UserName     string
	Email        string
	JTI          string
	ExpiresAt    time.Time
}

// DataStore is implemented by store.PostgresStore and store.MongoStore.
type DataStore interface {
	backlog.TaskStore
	authpw.UserStore
	sessionstore.Store
	search.Fallback
	search.Source
	export.DataStore

	Ping(ctx context.Context) error
	ListUsers(ctx context.Context) ([]store.User, error)

	CreateProject(ctx context.Context, project store.Project) error
	ListProjectsForUser(ctx context.Context, userID ids.ID) ([]store.Project, error)
	UpdateProject(ctx context.Context, project store.Project) error
	AddProjectMember(ctx context.Context, projectID, userID ids.ID) error
	RemoveProjectMember(ctx context.Context, projectID, userID ids.ID) (bool, error)
	DeleteProject(ctx context.Context, projectID ids.ID) error

	InsertTask(ctx context.Context, task store.Task) error
	ListTasksForProjects(ctx context.Context, projectIDs []ids.ID, filter store.TaskFilter) ([]store.Task, error)
	UpdateTask(ctx context.Context, task store.Task) error
	DeleteTask(ctx context.Context, taskID, projectID ids.ID) error
	UnassignTasks(ctx context.Context, projectID, userID ids.ID, updatedAt time.Time) (int64, error)

	InsertComment(ctx context.Context, comment store.Comment) error
	ListComments(ctx context.Context, taskID ids.ID) ([]store.Comment, error)

	InsertNotification(ctx context.Context, n store.Notification) error
	ListNotifications(ctx context.Context, userID ids.ID, unreadOnly bool) ([]store.Notification, error)
	MarkNotificationRead(ctx context.Context, notificationID, userID ids.ID) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, userID ids.ID) (int64, error)

	InsertInvitation(ctx context.Context, inv store.Invitation) error
	ListPendingInvitations(ctx context.Context, email string) ([]store.Invitation, error)
	GetPendingInvitation(ctx context.Context, projectID ids.ID, email string) (store.Invitation, error)
	UpdateInvitationStatus(ctx context.Context, invitationID ids.ID, status string, updatedAt time.Time) error

	InsertAttachment(ctx context.Context, a store.Attachment) error
	ListAttachments(ctx context.Context, taskID ids.ID) ([]store.Attachment, error)
	GetAttachment(ctx context.Context, attachmentID, taskID ids.ID) (store.Attachment, error)
}

var (
	_ DataStore = (*store.PostgresStore)(nil)
	_ DataStore = (*store.MongoStore)(nil)
)

// Mailer delivers invitation emails.
type Mailer interface {
	IsConfigured() bool
	SendInvitationEmail(to, projectName, inviterName string) error
}

// Deps are the collaborators of a Service. Only Store is required.
type Deps struct {
	Store    DataStore
	Sessions sessionstore.Store
	Search   *search.Service
	Blobs    blob.Store
	Mailer   Mailer
	Logger   *log.Logger
}

type Service struct {
	cfg       config.Config
	store     DataStore
	sessions  sessionstore.Store
	deps      *backlog.Manager
	passwords *authpw.Service
	search    *search.Service
	exporter  *export.Service
	blobs     blob.Store
	mailer    Mailer
	logger    *log.Logger
	now       func() time.Time
	async     func(func())
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	sessions := deps.Sessions
	if sessions == nil {
		sessions = deps.Store
	}
	searchService := deps.Search
	if searchService == nil {
		searchService = search.NewService(nil, deps.Store, logger)
	}
	now := func() time.Time { return time.Now().UTC() }

	return &Service{
		cfg:       cfg,
		store:     deps.Store,
		sessions:  sessions,
		deps:      backlog.NewManager(deps.Store, logger, backlog.WithClock(now)),
		passwords: authpw.NewService(deps.Store),
		search:    searchService,
		exporter:  export.NewService(deps.Store, logger),
		blobs:     deps.Blobs,
		mailer:    deps.Mailer,
		logger:    logger.WithPrefix("app"),
		now:       now,
		async:     func(fn func()) { go fn() },
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SearchHealthy reports whether the dedicated search engine is serving
// queries.
func (s *Service) SearchHealthy() bool {
	return s.search.EngineHealthy()
}

func (s *Service) AttachmentsEnabled() bool {
	return s.blobs != nil
}

// Sessions

func (s *Service) SignUp(ctx context.Context, fullName, email, password string) (map[string]any, error) {
	user, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{FullName: fullName, Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user signed up", "user_id", user.ID)
	return userPayload(user), nil
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, store.User, error) {
	user, err := s.passwords.SignIn(ctx, email, password)
	if err != nil {
		return Session{}, store.User{}, err
	}
	session, err := s.issueSession(ctx, user)
	return session, user, err
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, store.User, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return Session{}, store.User{}, auth.ErrInvalidToken
	}
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if store.IsNotFound(err) {
			return Session{}, store.User{}, auth.ErrInvalidToken
		}
		return Session{}, store.User{}, storeFailure(err)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, store.User{}, storeFailure(err)
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return Session{}, store.User{}, auth.ErrInvalidToken
		}
		return Session{}, store.User{}, storeFailure(err)
	}
	session, err := s.issueSession(ctx, user)
	return session, user, err
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	claims := auth.NewClaims(user.ID.String(), user.FullName, now, s.cfg.AccessTTL)
	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), claims)
	if err != nil {
		return Session{}, err
	}

	refresh, err := newRefreshToken()
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, storeFailure(fmt.Errorf("save refresh session: %w", err))
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.FullName,
		Email:        user.Email,
		JTI:          claims.ID,
		ExpiresAt:    claims.Expiry(),
	}, nil
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, storeFailure(err)
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	userID, err := ids.Parse(claims.Subject)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, storeFailure(err)
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.FullName,
		Email:     user.Email,
		JTI:       claims.ID,
		ExpiresAt: claims.Expiry(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.Warn("revoke access token", "err", err)
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.Warn("revoke refresh token", "err", err)
		}
	}
}

// Access control

// authorize loads the project and checks the caller's role allows action.
func (s *Service) authorize(ctx context.Context, session Session, projectID ids.ID, action rbac.Action) (store.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Project{}, domainError(http.StatusNotFound, "PROJECT_NOT_FOUND", "Project not found", nil)
		}
		return store.Project{}, storeFailure(err)
	}
	role := rbac.RoleIn(session.UserID, project.OwnerID, project.MemberIDs)
	if role == rbac.RoleNone {
		return store.Project{}, forbidden("You are not a member of this project")
	}
	if !rbac.Can(role, action) {
		return store.Project{}, forbidden("Only the project owner can do this")
	}
	return project, nil
}

func (s *Service) projectIDsFor(ctx context.Context, userID ids.ID) ([]store.Project, []ids.ID, error) {
	projects, err := s.store.ListProjectsForUser(ctx, userID)
	if err != nil {
		return nil, nil, storeFailure(err)
	}
	projectIDs := make([]ids.ID, 0, len(projects))
	for _, project := range projects {
		projectIDs = append(projectIDs, project.ID)
	}
	return projects, projectIDs, nil
}

// notify records a notification. Failures are logged, never returned.
func (s *Service) notify(ctx context.Context, userID ids.ID, kind, message string, projectID, taskID *ids.ID) {
	n := store.Notification{
		ID:        ids.New(),
		UserID:    userID,
		Type:      kind,
		Message:   message,
		ProjectID: projectID,
		TaskID:    taskID,
		CreatedAt: s.now(),
	}
	if err := s.store.InsertNotification(ctx, n); err != nil {
		s.logger.Warn("insert notification", "type", kind, "user_id", userID, "err", err)
	}
}

// Payloads

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func idOrNil(id *ids.ID) any {
	if id == nil {
		return nil
	}
	return id.String()
}

func userPayload(user store.User) map[string]any {
	return map[string]any{
		"id":        user.ID.String(),
		"fullName":  user.FullName,
		"email":     user.Email,
		"createdAt": formatTime(user.CreatedAt),
	}
}

func projectPayload(project store.Project) map[string]any {
	return map[string]any{
		"id":          project.ID.String(),
		"name":        project.Name,
		"description": project.Description,
		"ownerId":     project.OwnerID.String(),
		"memberIds":   ids.Strings(project.MemberIDs),
		"createdAt":   formatTime(project.CreatedAt),
		"updatedAt":   formatTime(project.UpdatedAt),
	}
}

func taskPayload(task store.Task) map[string]any {
	return map[string]any{
		"id":           task.ID.String(),
		"projectId":    task.ProjectID.String(),
		"title":        task.Title,
		"description":  task.Description,
		"status":       task.Status,
		"priority":     task.Priority,
		"assignedTo":   idOrNil(task.AssignedTo),
		"startDate":    task.StartDate,
		"dueDate":      task.DueDate,
		"progress":     task.Progress,
		"dependencies": ids.Strings(task.Dependencies),
		"createdBy":    task.CreatedBy.String(),
		"createdAt":    formatTime(task.CreatedAt),
		"updatedAt":    formatTime(task.UpdatedAt),
	}
}

func commentPayload(comment store.Comment) map[string]any {
	return map[string]any{
		"id":        comment.ID.String(),
		"taskId":    comment.TaskID.String(),
		"projectId": comment.ProjectID.String(),
		"authorId":  comment.AuthorID.String(),
		"author":    comment.AuthorName,
		"text":      comment.Body,
		"createdAt": formatTime(comment.CreatedAt),
	}
}

func notificationPayload(n store.Notification) map[string]any {
	return map[string]any{
		"id":        n.ID.String(),
		"type":      n.Type,
		"message":   n.Message,
		"projectId": idOrNil(n.ProjectID),
		"taskId":    idOrNil(n.TaskID),
		"isRead":    n.Read,
		"createdAt": formatTime(n.CreatedAt),
	}
}

func invitationPayload(inv store.Invitation) map[string]any {
	payload := map[string]any{
		"id":          inv.ID.String(),
		"projectId":   inv.ProjectID.String(),
		"projectName": inv.ProjectName,
		"email":       inv.Email,
		"invitedBy":   inv.InvitedBy.String(),
		"status":      inv.Status,
		"createdAt":   formatTime(inv.CreatedAt),
		"respondedAt": nil,
	}
	if inv.Status != store.InvitationPending {
		payload["respondedAt"] = formatTime(inv.UpdatedAt)
	}
	return payload
}

func attachmentPayload(a store.Attachment) map[string]any {
	return map[string]any{
		"id":          a.ID.String(),
		"taskId":      a.TaskID.String(),
		"projectId":   a.ProjectID.String(),
		"fileName":    a.FileName,
		"contentType": a.ContentType,
		"size":        a.SizeBytes,
		"uploadedBy":  a.UploadedBy.String(),
		"createdAt":   formatTime(a.CreatedAt),
	}
}

func mapSlice[T any](items []T, fn func(T) map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, fn(item))
	}
	return out
}
