package app

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"teamworks/api/internal/authpw"
	"teamworks/api/internal/config"
	"teamworks/api/internal/ids"
	"teamworks/api/internal/logging"
	"teamworks/api/internal/store"
)

// fakeStore is an in-memory DataStore. Slices keep insertion order, which
// stands in for createdAt ordering.
type fakeStore struct {
	mu sync.Mutex

	users         []store.User
	projects      []store.Project
	tasks         []store.Task
	comments      []store.Comment
	notifications []store.Notification
	invitations   []store.Invitation
	attachments   []store.Attachment
	refresh       map[string]ids.ID
	revoked       map[string]bool

	pingErr       error
	removeRefsErr error
	getProjectErr error
	// deleteTaskErr is returned after the task has been removed.
	deleteTaskErr error
}

var _ DataStore = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{refresh: map[string]ids.ID{}, revoked: map[string]bool{}}
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

// Users

func (f *fakeStore) CreateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == user.Email {
			return store.ErrConflict
		}
	}
	f.users = append(f.users, user)
	return nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id ids.ID) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (f *fakeStore) UpdateUser(_ context.Context, user store.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, u := range f.users {
		if u.ID == user.ID {
			f.users[i] = user
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) ListUsers(context.Context) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.User(nil), f.users...), nil
}

func (f *fakeStore) ListUsersByIDs(_ context.Context, userIDs []ids.ID) ([]store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.User
	for _, u := range f.users {
		if ids.Contains(userIDs, u.ID) {
			out = append(out, u)
		}
	}
	return out, nil
}

// Sessions

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash string, userID ids.ID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh[tokenHash] = userID
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (ids.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	userID, ok := f.refresh[tokenHash]
	if !ok {
		return "", store.ErrNotFound
	}
	return userID, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refresh, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

// Projects

func (f *fakeStore) CreateProject(_ context.Context, project store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects = append(f.projects, project)
	return nil
}

func (f *fakeStore) GetProject(_ context.Context, projectID ids.ID) (store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getProjectErr != nil {
		return store.Project{}, f.getProjectErr
	}
	for _, p := range f.projects {
		if p.ID == projectID {
			p.MemberIDs = append([]ids.ID(nil), p.MemberIDs...)
			return p, nil
		}
	}
	return store.Project{}, store.ErrNotFound
}

func (f *fakeStore) ListProjectsForUser(_ context.Context, userID ids.ID) ([]store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Project
	for _, p := range f.projects {
		if p.HasMember(userID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAllProjects(context.Context) ([]store.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Project(nil), f.projects...), nil
}

func (f *fakeStore) UpdateProject(_ context.Context, project store.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.projects {
		if p.ID == project.ID {
			f.projects[i] = project
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) AddProjectMember(_ context.Context, projectID, userID ids.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.projects {
		if p.ID == projectID {
			if !ids.Contains(p.MemberIDs, userID) {
				f.projects[i].MemberIDs = append(p.MemberIDs, userID)
			}
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) RemoveProjectMember(_ context.Context, projectID, userID ids.ID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.projects {
		if p.ID != projectID {
			continue
		}
		kept := make([]ids.ID, 0, len(p.MemberIDs))
		for _, id := range p.MemberIDs {
			if id != userID {
				kept = append(kept, id)
			}
		}
		f.projects[i].MemberIDs = kept
		return len(kept) != len(p.MemberIDs), nil
	}
	return false, store.ErrNotFound
}

func (f *fakeStore) DeleteProject(_ context.Context, projectID ids.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := false
	projects := f.projects[:0]
	for _, p := range f.projects {
		if p.ID == projectID {
			found = true
			continue
		}
		projects = append(projects, p)
	}
	f.projects = projects
	if !found {
		return store.ErrNotFound
	}
	tasks := f.tasks[:0]
	for _, t := range f.tasks {
		if t.ProjectID != projectID {
			tasks = append(tasks, t)
		}
	}
	f.tasks = tasks
	invitations := f.invitations[:0]
	for _, inv := range f.invitations {
		if inv.ProjectID != projectID {
			invitations = append(invitations, inv)
		}
	}
	f.invitations = invitations
	return nil
}

// Tasks

func (f *fakeStore) InsertTask(_ context.Context, task store.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return nil
}

func (f *fakeStore) FindTask(_ context.Context, taskID, projectID ids.ID) (store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == taskID && t.ProjectID == projectID {
			t.Dependencies = append([]ids.ID{}, t.Dependencies...)
			return t, nil
		}
	}
	return store.Task{}, store.ErrNotFound
}

func matchesFilter(t store.Task, filter store.TaskFilter) bool {
	if filter.Status != "" && t.Status != filter.Status {
		return false
	}
	if filter.Priority != "" && t.Priority != filter.Priority {
		return false
	}
	if filter.Unassigned && t.AssignedTo != nil {
		return false
	}
	if filter.AssignedTo != nil && (t.AssignedTo == nil || *t.AssignedTo != *filter.AssignedTo) {
		return false
	}
	return true
}

func (f *fakeStore) ListTasks(_ context.Context, projectID ids.ID, filter store.TaskFilter) ([]store.Task, error) {
	return f.ListTasksForProjects(context.Background(), []ids.ID{projectID}, filter)
}

func (f *fakeStore) ListTasksForProjects(_ context.Context, projectIDs []ids.ID, filter store.TaskFilter) ([]store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Task
	for _, t := range f.tasks {
		if ids.Contains(projectIDs, t.ProjectID) && matchesFilter(t, filter) {
			t.Dependencies = append([]ids.ID{}, t.Dependencies...)
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) ListAllTasks(context.Context) ([]store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Task(nil), f.tasks...), nil
}

func (f *fakeStore) UpdateTask(_ context.Context, task store.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == task.ID && t.ProjectID == task.ProjectID {
			f.tasks[i] = task
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) UpdateTaskDependencies(_ context.Context, taskID ids.ID, deps []ids.ID, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == taskID {
			f.tasks[i].Dependencies = append([]ids.ID{}, deps...)
			f.tasks[i].UpdatedAt = updatedAt
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) RemoveDependencyReferences(_ context.Context, projectID, removedID ids.ID, updatedAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.removeRefsErr != nil {
		return 0, f.removeRefsErr
	}
	var updated int64
	for i, t := range f.tasks {
		if t.ProjectID != projectID || !ids.Contains(t.Dependencies, removedID) {
			continue
		}
		kept := make([]ids.ID, 0, len(t.Dependencies))
		for _, id := range t.Dependencies {
			if id != removedID {
				kept = append(kept, id)
			}
		}
		f.tasks[i].Dependencies = kept
		f.tasks[i].UpdatedAt = updatedAt
		updated++
	}
	return updated, nil
}

func (f *fakeStore) DeleteTask(_ context.Context, taskID, projectID ids.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tasks {
		if t.ID == taskID && t.ProjectID == projectID {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return f.deleteTaskErr
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) UnassignTasks(_ context.Context, projectID, userID ids.ID, updatedAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var updated int64
	for i, t := range f.tasks {
		if t.ProjectID == projectID && t.AssignedTo != nil && *t.AssignedTo == userID {
			f.tasks[i].AssignedTo = nil
			f.tasks[i].UpdatedAt = updatedAt
			updated++
		}
	}
	return updated, nil
}

// Comments, notifications, invitations, attachments

func (f *fakeStore) InsertComment(_ context.Context, comment store.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, comment)
	return nil
}

func (f *fakeStore) ListComments(_ context.Context, taskID ids.ID) ([]store.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Comment
	for _, c := range f.comments {
		if c.TaskID == taskID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertNotification(_ context.Context, n store.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n)
	return nil
}

func (f *fakeStore) ListNotifications(_ context.Context, userID ids.ID, unreadOnly bool) ([]store.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Notification
	for i := len(f.notifications) - 1; i >= 0; i-- {
		n := f.notifications[i]
		if n.UserID == userID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeStore) MarkNotificationRead(_ context.Context, notificationID, userID ids.ID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, n := range f.notifications {
		if n.ID == notificationID && n.UserID == userID {
			f.notifications[i].Read = true
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) MarkAllNotificationsRead(_ context.Context, userID ids.ID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var updated int64
	for i, n := range f.notifications {
		if n.UserID == userID && !n.Read {
			f.notifications[i].Read = true
			updated++
		}
	}
	return updated, nil
}

func (f *fakeStore) InsertInvitation(_ context.Context, inv store.Invitation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.invitations {
		if existing.ProjectID == inv.ProjectID && existing.Email == inv.Email && existing.Status == store.InvitationPending {
			return store.ErrConflict
		}
	}
	f.invitations = append(f.invitations, inv)
	return nil
}

func (f *fakeStore) ListPendingInvitations(_ context.Context, email string) ([]store.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Invitation
	for _, inv := range f.invitations {
		if inv.Email == email && inv.Status == store.InvitationPending {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeStore) GetPendingInvitation(_ context.Context, projectID ids.ID, email string) (store.Invitation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, inv := range f.invitations {
		if inv.ProjectID == projectID && inv.Email == email && inv.Status == store.InvitationPending {
			return inv, nil
		}
	}
	return store.Invitation{}, store.ErrNotFound
}

func (f *fakeStore) UpdateInvitationStatus(_ context.Context, invitationID ids.ID, status string, updatedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, inv := range f.invitations {
		if inv.ID == invitationID {
			f.invitations[i].Status = status
			f.invitations[i].UpdatedAt = updatedAt
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeStore) InsertAttachment(_ context.Context, a store.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachments = append(f.attachments, a)
	return nil
}

func (f *fakeStore) ListAttachments(_ context.Context, taskID ids.ID) ([]store.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Attachment
	for _, a := range f.attachments {
		if a.TaskID == taskID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAttachment(_ context.Context, attachmentID, taskID ids.ID) (store.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attachments {
		if a.ID == attachmentID && a.TaskID == taskID {
			return a, nil
		}
	}
	return store.Attachment{}, store.ErrNotFound
}

// Search fallback

func (f *fakeStore) SearchTasks(_ context.Context, text string, projectIDs []ids.ID) ([]store.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	needle := strings.ToLower(text)
	var out []store.SearchHit
	for _, t := range f.tasks {
		if ids.Contains(projectIDs, t.ProjectID) && strings.Contains(strings.ToLower(t.Title+" "+t.Description), needle) {
			out = append(out, store.SearchHit{Kind: "task", ID: t.ID, ProjectID: t.ProjectID, Title: t.Title, Snippet: t.Description, UpdatedAt: t.UpdatedAt})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (f *fakeStore) SearchProjects(_ context.Context, text string, projectIDs []ids.ID) ([]store.SearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	needle := strings.ToLower(text)
	var out []store.SearchHit
	for _, p := range f.projects {
		if ids.Contains(projectIDs, p.ID) && strings.Contains(strings.ToLower(p.Name+" "+p.Description), needle) {
			out = append(out, store.SearchHit{Kind: "project", ID: p.ID, ProjectID: p.ID, Title: p.Name, Snippet: p.Description, UpdatedAt: p.UpdatedAt})
		}
	}
	return out, nil
}

// test helpers

var errStoreDown = errors.New("store down")

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      "test-secret",
		AccessTTL:      time.Hour,
		RefreshTTL:     24 * time.Hour,
		MaxUploadBytes: 1 << 20,
	}
}

func newTestService(fs *fakeStore) *Service {
	svc := New(testConfig(), Deps{Store: fs, Logger: logging.Discard()})
	svc.passwords = authpw.NewService(fs).WithCost(bcrypt.MinCost)
	svc.async = func(fn func()) { fn() }
	return svc
}

func (f *fakeStore) addUser(name, email string) store.User {
	user := store.User{
		ID:        ids.New(),
		FullName:  name,
		Email:     email,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	f.mu.Lock()
	f.users = append(f.users, user)
	f.mu.Unlock()
	return user
}

func (f *fakeStore) addProject(name string, owner store.User, members ...store.User) store.Project {
	project := store.Project{
		ID:        ids.New(),
		Name:      name,
		OwnerID:   owner.ID,
		MemberIDs: []ids.ID{owner.ID},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	for _, m := range members {
		project.MemberIDs = append(project.MemberIDs, m.ID)
	}
	f.mu.Lock()
	f.projects = append(f.projects, project)
	f.mu.Unlock()
	return project
}

func (f *fakeStore) addTask(project store.Project, title string, deps ...ids.ID) store.Task {
	task := store.Task{
		ID:           ids.New(),
		ProjectID:    project.ID,
		Title:        title,
		Status:       store.StatusToDo,
		Priority:     store.PriorityMedium,
		Dependencies: append([]ids.ID{}, deps...),
		CreatedBy:    project.OwnerID,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	f.mu.Lock()
	f.tasks = append(f.tasks, task)
	f.mu.Unlock()
	return task
}

func (f *fakeStore) task(id ids.ID) (store.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return store.Task{}, false
}
