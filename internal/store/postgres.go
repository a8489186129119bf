package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"teamworks/api/internal/ids"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close(context.Context) error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullableID(id *ids.ID) any {
	if id == nil || id.IsZero() {
		return nil
	}
	return id.String()
}

func idPtr(value sql.NullString) *ids.ID {
	if !value.Valid || value.String == "" {
		return nil
	}
	id := ids.ID(value.String)
	return &id
}

func encodeIDs(values []ids.ID) (string, error) {
	if values == nil {
		values = []ids.ID{}
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func decodeIDs(raw []byte) ([]ids.ID, error) {
	out := []ids.ID{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode id list: %w", err)
	}
	return out, nil
}

// Users

const userColumns = `id, full_name, email, password_hash, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.FullName, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, full_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.ID.String(), user.FullName, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID ids.ID) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID.String()))
	if err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
	if err != nil {
		return User{}, notFound(err)
	}
	return user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users ORDER BY full_name ASC`)
}

func (s *PostgresStore) ListUsersByIDs(ctx context.Context, userIDs []ids.ID) ([]User, error) {
	if len(userIDs) == 0 {
		return []User{}, nil
	}
	return s.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1) ORDER BY full_name ASC`, ids.Strings(userIDs))
}

func (s *PostgresStore) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		items = append(items, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user User) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET full_name=$2, email=$3, password_hash=$4, updated_at=$5
		WHERE id=$1
	`, user.ID.String(), user.FullName, user.Email, user.PasswordHash, user.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireAffected(result, "update user")
}

func requireAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Sessions

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash string, userID ids.ID, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID.String(), expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (ids.ID, error) {
	var userID ids.ID
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM refresh_sessions
		WHERE token_hash=$1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", notFound(err)
	}
	return userID, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1)`, jti).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("check revoked token: %w", err)
	}
	return revoked, nil
}

// Projects

const projectSelect = `
	SELECT p.id, p.name, p.description, p.owner_id, p.created_at, p.updated_at,
		COALESCE((SELECT json_agg(pm.user_id ORDER BY pm.added_at) FROM project_members pm WHERE pm.project_id = p.id), '[]'::json)::text
	FROM projects p`

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var item Project
	var members []byte
	if err := row.Scan(&item.ID, &item.Name, &item.Description, &item.OwnerID, &item.CreatedAt, &item.UpdatedAt, &members); err != nil {
		return Project{}, err
	}
	memberIDs, err := decodeIDs(members)
	if err != nil {
		return Project{}, fmt.Errorf("project %s members: %w", item.ID, err)
	}
	item.MemberIDs = memberIDs
	return item, nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, project Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create project: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projects (id, name, description, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, project.ID.String(), project.Name, project.Description, project.OwnerID.String(), project.CreatedAt, project.UpdatedAt); err != nil {
		return fmt.Errorf("create project: %w", err)
	}
	for _, member := range project.MemberIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO project_members (project_id, user_id, added_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (project_id, user_id) DO NOTHING
		`, project.ID.String(), member.String(), project.CreatedAt); err != nil {
			return fmt.Errorf("add project member: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create project: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID ids.ID) (Project, error) {
	item, err := scanProject(s.db.QueryRowContext(ctx, projectSelect+` WHERE p.id=$1`, projectID.String()))
	if err != nil {
		return Project{}, notFound(err)
	}
	return item, nil
}

func (s *PostgresStore) ListProjectsForUser(ctx context.Context, userID ids.ID) ([]Project, error) {
	return s.queryProjects(ctx, projectSelect+`
		WHERE p.owner_id=$1
			OR EXISTS(SELECT 1 FROM project_members m WHERE m.project_id = p.id AND m.user_id = $1)
		ORDER BY p.created_at DESC
	`, userID.String())
}

func (s *PostgresStore) ListAllProjects(ctx context.Context) ([]Project, error) {
	return s.queryProjects(ctx, projectSelect+` ORDER BY p.created_at DESC`)
}

func (s *PostgresStore) queryProjects(ctx context.Context, query string, args ...any) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	items := make([]Project, 0)
	for rows.Next() {
		item, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateProject(ctx context.Context, project Project) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name=$2, description=$3, owner_id=$4, updated_at=$5
		WHERE id=$1
	`, project.ID.String(), project.Name, project.Description, project.OwnerID.String(), project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return requireAffected(result, "update project")
}

func (s *PostgresStore) AddProjectMember(ctx context.Context, projectID, userID ids.ID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (project_id, user_id) DO NOTHING
	`, projectID.String(), userID.String())
	if err != nil {
		return fmt.Errorf("add project member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveProjectMember(ctx context.Context, projectID, userID ids.ID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM project_members WHERE project_id=$1 AND user_id=$2`, projectID.String(), userID.String())
	if err != nil {
		return false, fmt.Errorf("remove project member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove project member rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteProject removes the project; members, tasks, comments and
// invitations go with it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteProject(ctx context.Context, projectID ids.ID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id=$1`, projectID.String())
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return requireAffected(result, "delete project")
}

// Tasks

const taskColumns = `id, project_id, title, description, status, priority, assigned_to, start_date, due_date, progress, dependencies::text, created_by, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var item Task
	var assigned sql.NullString
	var deps []byte
	if err := row.Scan(
		&item.ID,
		&item.ProjectID,
		&item.Title,
		&item.Description,
		&item.Status,
		&item.Priority,
		&assigned,
		&item.StartDate,
		&item.DueDate,
		&item.Progress,
		&deps,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return Task{}, err
	}
	item.AssignedTo = idPtr(assigned)
	dependencies, err := decodeIDs(deps)
	if err != nil {
		return Task{}, fmt.Errorf("task %s dependencies: %w", item.ID, err)
	}
	item.Dependencies = dependencies
	return item, nil
}

func (s *PostgresStore) InsertTask(ctx context.Context, task Task) error {
	deps, err := encodeIDs(task.Dependencies)
	if err != nil {
		return fmt.Errorf("encode dependencies: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, description, status, priority, assigned_to, start_date, due_date, progress, dependencies, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13, $14)
	`, task.ID.String(), task.ProjectID.String(), task.Title, task.Description, task.Status, task.Priority,
		nullableID(task.AssignedTo), task.StartDate, task.DueDate, task.Progress, deps,
		task.CreatedBy.String(), task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// FindTask loads a task scoped to its project. A task that exists in another
// project is reported as ErrNotFound.
func (s *PostgresStore) FindTask(ctx context.Context, taskID, projectID ids.ID) (Task, error) {
	item, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=$1 AND project_id=$2`, taskID.String(), projectID.String()))
	if err != nil {
		return Task{}, notFound(err)
	}
	return item, nil
}

func (s *PostgresStore) ListTasks(ctx context.Context, projectID ids.ID, filter TaskFilter) ([]Task, error) {
	return s.ListTasksForProjects(ctx, []ids.ID{projectID}, filter)
}

func (s *PostgresStore) ListTasksForProjects(ctx context.Context, projectIDs []ids.ID, filter TaskFilter) ([]Task, error) {
	if len(projectIDs) == 0 {
		return []Task{}, nil
	}
	where := []string{"project_id = ANY($1)"}
	args := []any{ids.Strings(projectIDs)}
	argN := 2
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argN))
		args = append(args, filter.Status)
		argN++
	}
	if filter.Priority != "" {
		where = append(where, fmt.Sprintf("priority = $%d", argN))
		args = append(args, filter.Priority)
		argN++
	}
	switch {
	case filter.Unassigned:
		where = append(where, "assigned_to IS NULL")
	case filter.AssignedTo != nil:
		where = append(where, fmt.Sprintf("assigned_to = $%d", argN))
		args = append(args, filter.AssignedTo.String())
	}
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at ASC`, args...)
}

func (s *PostgresStore) ListAllTasks(ctx context.Context) ([]Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC`)
}

func (s *PostgresStore) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	items := make([]Task, 0)
	for rows.Next() {
		item, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tasks: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, task Task) error {
	deps, err := encodeIDs(task.Dependencies)
	if err != nil {
		return fmt.Errorf("encode dependencies: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title=$3, description=$4, status=$5, priority=$6, assigned_to=$7, start_date=$8, due_date=$9,
			progress=$10, dependencies=$11::jsonb, updated_at=$12
		WHERE id=$1 AND project_id=$2
	`, task.ID.String(), task.ProjectID.String(), task.Title, task.Description, task.Status, task.Priority,
		nullableID(task.AssignedTo), task.StartDate, task.DueDate, task.Progress, deps, task.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireAffected(result, "update task")
}

func (s *PostgresStore) UpdateTaskDependencies(ctx context.Context, taskID ids.ID, dependencies []ids.ID, updatedAt time.Time) error {
	deps, err := encodeIDs(dependencies)
	if err != nil {
		return fmt.Errorf("encode dependencies: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET dependencies=$2::jsonb, updated_at=$3 WHERE id=$1
	`, taskID.String(), deps, updatedAt)
	if err != nil {
		return fmt.Errorf("update task dependencies: %w", err)
	}
	return requireAffected(result, "update task dependencies")
}

// RemoveDependencyReferences strips removedID from the dependency list of
// every task in the project and returns how many tasks changed.
func (s *PostgresStore) RemoveDependencyReferences(ctx context.Context, projectID, removedID ids.ID, updatedAt time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET dependencies = dependencies - $2::text, updated_at=$3
		WHERE project_id=$1 AND dependencies @> jsonb_build_array($2::text)
	`, projectID.String(), removedID.String(), updatedAt)
	if err != nil {
		return 0, fmt.Errorf("remove dependency references: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove dependency references rows: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) DeleteTask(ctx context.Context, taskID, projectID ids.ID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=$1 AND project_id=$2`, taskID.String(), projectID.String())
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireAffected(result, "delete task")
}

func (s *PostgresStore) UnassignTasks(ctx context.Context, projectID, userID ids.ID, updatedAt time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET assigned_to=NULL, updated_at=$3
		WHERE project_id=$1 AND assigned_to=$2
	`, projectID.String(), userID.String(), updatedAt)
	if err != nil {
		return 0, fmt.Errorf("unassign tasks: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("unassign tasks rows: %w", err)
	}
	return affected, nil
}

// Comments

func (s *PostgresStore) InsertComment(ctx context.Context, comment Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_comments (id, task_id, project_id, author_id, author_name, body, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, comment.ID.String(), comment.TaskID.String(), comment.ProjectID.String(), comment.AuthorID.String(), comment.AuthorName, comment.Body, comment.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListComments(ctx context.Context, taskID ids.ID) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, project_id, author_id, author_name, body, created_at
		FROM task_comments
		WHERE task_id=$1
		ORDER BY created_at ASC
	`, taskID.String())
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	items := make([]Comment, 0)
	for rows.Next() {
		var item Comment
		if err := rows.Scan(&item.ID, &item.TaskID, &item.ProjectID, &item.AuthorID, &item.AuthorName, &item.Body, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return items, nil
}

// Notifications

func (s *PostgresStore) InsertNotification(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, message, project_id, task_id, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, n.ID.String(), n.UserID.String(), n.Type, n.Message, nullableID(n.ProjectID), nullableID(n.TaskID), n.Read, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID ids.ID, unreadOnly bool) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, message, project_id, task_id, read, created_at
		FROM notifications
		WHERE user_id=$1 AND (NOT $2::boolean OR read = FALSE)
		ORDER BY created_at DESC
	`, userID.String(), unreadOnly)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var item Notification
		var projectID, taskID sql.NullString
		if err := rows.Scan(&item.ID, &item.UserID, &item.Type, &item.Message, &projectID, &taskID, &item.Read, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		item.ProjectID = idPtr(projectID)
		item.TaskID = idPtr(taskID)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, notificationID, userID ids.ID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET read=TRUE WHERE id=$1 AND user_id=$2`, notificationID.String(), userID.String())
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark notification read rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID ids.ID) (int64, error) {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET read=TRUE WHERE user_id=$1 AND read=FALSE`, userID.String())
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read rows: %w", err)
	}
	return affected, nil
}

// Invitations

const invitationSelect = `
	SELECT i.id, i.project_id, p.name, i.email, i.invited_by, i.status, i.created_at, i.updated_at
	FROM invitations i
	JOIN projects p ON p.id = i.project_id`

func scanInvitation(row interface{ Scan(...any) error }) (Invitation, error) {
	var item Invitation
	err := row.Scan(&item.ID, &item.ProjectID, &item.ProjectName, &item.Email, &item.InvitedBy, &item.Status, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *PostgresStore) InsertInvitation(ctx context.Context, inv Invitation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invitations (id, project_id, email, invited_by, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, inv.ID.String(), inv.ProjectID.String(), inv.Email, inv.InvitedBy.String(), inv.Status, inv.CreatedAt, inv.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListPendingInvitations(ctx context.Context, email string) ([]Invitation, error) {
	rows, err := s.db.QueryContext(ctx, invitationSelect+`
		WHERE i.email=$1 AND i.status='pending'
		ORDER BY i.created_at DESC
	`, email)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	items := make([]Invitation, 0)
	for rows.Next() {
		item, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitations: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetPendingInvitation(ctx context.Context, projectID ids.ID, email string) (Invitation, error) {
	item, err := scanInvitation(s.db.QueryRowContext(ctx, invitationSelect+`
		WHERE i.project_id=$1 AND i.email=$2 AND i.status='pending'
	`, projectID.String(), email))
	if err != nil {
		return Invitation{}, notFound(err)
	}
	return item, nil
}

func (s *PostgresStore) UpdateInvitationStatus(ctx context.Context, invitationID ids.ID, status string, updatedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE invitations SET status=$2, updated_at=$3 WHERE id=$1`, invitationID.String(), status, updatedAt)
	if err != nil {
		return fmt.Errorf("update invitation: %w", err)
	}
	return requireAffected(result, "update invitation")
}

// Attachments

const attachmentColumns = `id, task_id, project_id, file_name, content_type, size_bytes, object_key, uploaded_by, created_at`

func scanAttachment(row interface{ Scan(...any) error }) (Attachment, error) {
	var item Attachment
	err := row.Scan(&item.ID, &item.TaskID, &item.ProjectID, &item.FileName, &item.ContentType, &item.SizeBytes, &item.ObjectKey, &item.UploadedBy, &item.CreatedAt)
	return item, err
}

func (s *PostgresStore) InsertAttachment(ctx context.Context, a Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_attachments (`+attachmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID.String(), a.TaskID.String(), a.ProjectID.String(), a.FileName, a.ContentType, a.SizeBytes, a.ObjectKey, a.UploadedBy.String(), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAttachments(ctx context.Context, taskID ids.ID) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+attachmentColumns+` FROM task_attachments WHERE task_id=$1 ORDER BY created_at ASC`, taskID.String())
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		item, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID, taskID ids.ID) (Attachment, error) {
	item, err := scanAttachment(s.db.QueryRowContext(ctx, `SELECT `+attachmentColumns+` FROM task_attachments WHERE id=$1 AND task_id=$2`, attachmentID.String(), taskID.String()))
	if err != nil {
		return Attachment{}, notFound(err)
	}
	return item, nil
}

// Search fallback

func (s *PostgresStore) SearchTasks(ctx context.Context, text string, projectIDs []ids.ID) ([]SearchHit, error) {
	if len(projectIDs) == 0 || strings.TrimSpace(text) == "" {
		return []SearchHit{}, nil
	}
	return s.querySearch(ctx, `
		SELECT 'task', id, project_id, title, description, updated_at
		FROM tasks
		WHERE project_id = ANY($1)
			AND (to_tsvector('english', title || ' ' || description) @@ plainto_tsquery('english', $2)
				OR title ILIKE $3 ESCAPE '\'
				OR description ILIKE $3 ESCAPE '\')
		ORDER BY updated_at DESC
	`, ids.Strings(projectIDs), text, likePattern(text))
}

func (s *PostgresStore) SearchProjects(ctx context.Context, text string, projectIDs []ids.ID) ([]SearchHit, error) {
	if len(projectIDs) == 0 || strings.TrimSpace(text) == "" {
		return []SearchHit{}, nil
	}
	return s.querySearch(ctx, `
		SELECT 'project', id, id, name, description, updated_at
		FROM projects
		WHERE id = ANY($1)
			AND (to_tsvector('english', name || ' ' || description) @@ plainto_tsquery('english', $2)
				OR name ILIKE $3 ESCAPE '\'
				OR description ILIKE $3 ESCAPE '\')
		ORDER BY updated_at DESC
	`, ids.Strings(projectIDs), text, likePattern(text))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring ILIKE pattern that matches text literally.
func likePattern(text string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(text)) + "%"
}

func (s *PostgresStore) querySearch(ctx context.Context, query string, args ...any) ([]SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	items := make([]SearchHit, 0)
	for rows.Next() {
		var hit SearchHit
		if err := rows.Scan(&hit.Kind, &hit.ID, &hit.ProjectID, &hit.Title, &hit.Snippet, &hit.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		items = append(items, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return items, nil
}
