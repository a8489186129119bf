package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"teamworks/api/internal/ids"
)

func openIntegrationStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("TEAMWORKS_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("TEAMWORKS_TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewPostgresStore(db), ctx
}

func seedProject(t *testing.T, ctx context.Context, s *PostgresStore) (User, Project) {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	owner := User{ID: ids.New(), FullName: "Ada Owner", Email: "ada@example.com", PasswordHash: "x", CreatedAt: now, UpdatedAt: now}
	if err := s.CreateUser(ctx, owner); err != nil {
		t.Fatalf("create user: %v", err)
	}
	project := Project{ID: ids.New(), Name: "Apollo", OwnerID: owner.ID, MemberIDs: []ids.ID{owner.ID}, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateProject(ctx, project); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return owner, project
}

func seedTask(t *testing.T, ctx context.Context, s *PostgresStore, project Project, owner User, title string, deps ...ids.ID) Task {
	t.Helper()
	now := time.Now().UTC()
	task := Task{
		ID:           ids.New(),
		ProjectID:    project.ID,
		Title:        title,
		Status:       StatusToDo,
		Priority:     PriorityMedium,
		Dependencies: deps,
		CreatedBy:    owner.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.InsertTask(ctx, task); err != nil {
		t.Fatalf("insert task %s: %v", title, err)
	}
	return task
}

func TestPostgresDependencyReferencesAreScopedToProject(t *testing.T) {
	s, ctx := openIntegrationStore(t)
	owner, project := seedProject(t, ctx, s)
	now := time.Now().UTC()
	other := Project{ID: ids.New(), Name: "Gemini", OwnerID: owner.ID, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateProject(ctx, other); err != nil {
		t.Fatalf("create project: %v", err)
	}

	a := seedTask(t, ctx, s, project, owner, "A")
	b := seedTask(t, ctx, s, project, owner, "B", a.ID)
	c := seedTask(t, ctx, s, project, owner, "C", a.ID, b.ID)
	foreign := seedTask(t, ctx, s, other, owner, "Foreign", a.ID)

	if _, err := s.FindTask(ctx, a.ID, other.ID); !IsNotFound(err) {
		t.Fatalf("FindTask across projects error = %v, want not found", err)
	}

	changed, err := s.RemoveDependencyReferences(ctx, project.ID, a.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("RemoveDependencyReferences: %v", err)
	}
	if changed != 2 {
		t.Fatalf("changed = %d, want 2", changed)
	}

	gotC, err := s.FindTask(ctx, c.ID, project.ID)
	if err != nil {
		t.Fatalf("FindTask C: %v", err)
	}
	if len(gotC.Dependencies) != 1 || gotC.Dependencies[0] != b.ID {
		t.Fatalf("C dependencies = %v, want [%s]", gotC.Dependencies, b.ID)
	}
	gotForeign, err := s.FindTask(ctx, foreign.ID, other.ID)
	if err != nil {
		t.Fatalf("FindTask foreign: %v", err)
	}
	if len(gotForeign.Dependencies) != 1 {
		t.Fatalf("foreign dependencies should be untouched, got %v", gotForeign.Dependencies)
	}
}

func TestPostgresUpdateTaskDependencies(t *testing.T) {
	s, ctx := openIntegrationStore(t)
	owner, project := seedProject(t, ctx, s)
	a := seedTask(t, ctx, s, project, owner, "A")
	b := seedTask(t, ctx, s, project, owner, "B")

	if err := s.UpdateTaskDependencies(ctx, b.ID, []ids.ID{a.ID}, time.Now().UTC()); err != nil {
		t.Fatalf("UpdateTaskDependencies: %v", err)
	}
	got, err := s.FindTask(ctx, b.ID, project.ID)
	if err != nil {
		t.Fatalf("FindTask: %v", err)
	}
	if len(got.Dependencies) != 1 || got.Dependencies[0] != a.ID {
		t.Fatalf("dependencies = %v, want [%s]", got.Dependencies, a.ID)
	}

	if err := s.UpdateTaskDependencies(ctx, ids.New(), nil, time.Now().UTC()); !IsNotFound(err) {
		t.Fatalf("missing task error = %v, want not found", err)
	}
}

func TestPostgresPendingInvitationIsUnique(t *testing.T) {
	s, ctx := openIntegrationStore(t)
	owner, project := seedProject(t, ctx, s)
	now := time.Now().UTC()
	inv := Invitation{ID: ids.New(), ProjectID: project.ID, Email: "bob@example.com", InvitedBy: owner.ID, Status: InvitationPending, CreatedAt: now, UpdatedAt: now}
	if err := s.InsertInvitation(ctx, inv); err != nil {
		t.Fatalf("insert invitation: %v", err)
	}
	inv.ID = ids.New()
	if err := s.InsertInvitation(ctx, inv); err != ErrConflict {
		t.Fatalf("duplicate pending invitation error = %v, want ErrConflict", err)
	}

	pending, err := s.ListPendingInvitations(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("list invitations: %v", err)
	}
	if len(pending) != 1 || pending[0].ProjectName != "Apollo" {
		t.Fatalf("pending = %+v, want one Apollo invitation", pending)
	}
}

func TestPostgresSearchTasksMatchesLiterally(t *testing.T) {
	s, ctx := openIntegrationStore(t)
	owner, project := seedProject(t, ctx, s)
	underscored := seedTask(t, ctx, s, project, owner, "write_docs")
	seedTask(t, ctx, s, project, owner, "Release plan")
	now := time.Now().UTC()
	described := Task{
		ID:          ids.New(),
		ProjectID:   project.ID,
		Title:       "Rollout",
		Description: "Covers the staging environment",
		Status:      StatusToDo,
		Priority:    PriorityLow,
		CreatedBy:   owner.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.InsertTask(ctx, described); err != nil {
		t.Fatalf("insert task: %v", err)
	}

	cases := []struct {
		query string
		want  ids.ID
	}{
		{query: "_", want: underscored.ID},
		{query: "stag", want: described.ID},
	}
	for _, tc := range cases {
		hits, err := s.SearchTasks(ctx, tc.query, []ids.ID{project.ID})
		if err != nil {
			t.Fatalf("SearchTasks(%q): %v", tc.query, err)
		}
		if len(hits) != 1 || hits[0].ID != tc.want {
			t.Fatalf("SearchTasks(%q) = %v, want only %s", tc.query, hits, tc.want)
		}
	}
}
