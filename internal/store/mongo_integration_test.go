package store

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"teamworks/api/internal/ids"
)

func TestMongoDependencyLifecycle(t *testing.T) {
	uri := strings.TrimSpace(os.Getenv("TEAMWORKS_TEST_MONGO_URI"))
	if uri == "" {
		t.Skip("TEAMWORKS_TEST_MONGO_URI is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, db, err := OpenMongo(ctx, uri, "teamworks_test_"+ids.New().String())
	if err != nil {
		t.Fatalf("open mongo: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})

	s := NewMongoStore(client, db)
	if err := s.EnsureIndexes(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	projectID := ids.New()
	now := time.Now().UTC()
	insert := func(title string, deps ...ids.ID) Task {
		task := Task{ID: ids.New(), ProjectID: projectID, Title: title, Status: StatusToDo, Priority: PriorityMedium, Dependencies: deps, CreatedAt: now, UpdatedAt: now}
		if err := s.InsertTask(ctx, task); err != nil {
			t.Fatalf("insert %s: %v", title, err)
		}
		return task
	}
	a := insert("A")
	b := insert("B", a.ID)
	c := insert("C", a.ID, b.ID)

	loaded, err := s.FindTask(ctx, a.ID, projectID)
	if err != nil {
		t.Fatalf("FindTask: %v", err)
	}
	if loaded.Dependencies == nil {
		t.Fatal("expected non-nil dependency slice")
	}
	if _, err := s.FindTask(ctx, a.ID, ids.New()); !IsNotFound(err) {
		t.Fatalf("FindTask other project error = %v, want not found", err)
	}

	changed, err := s.RemoveDependencyReferences(ctx, projectID, a.ID, time.Now().UTC())
	if err != nil {
		t.Fatalf("RemoveDependencyReferences: %v", err)
	}
	if changed != 2 {
		t.Fatalf("changed = %d, want 2", changed)
	}
	gotC, err := s.FindTask(ctx, c.ID, projectID)
	if err != nil {
		t.Fatalf("FindTask C: %v", err)
	}
	if len(gotC.Dependencies) != 1 || gotC.Dependencies[0] != b.ID {
		t.Fatalf("C dependencies = %v, want [%s]", gotC.Dependencies, b.ID)
	}

	email := "dup@example.com"
	user := User{ID: ids.New(), FullName: "Dup", Email: email, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	user.ID = ids.New()
	if err := s.CreateUser(ctx, user); err != ErrConflict {
		t.Fatalf("duplicate email error = %v, want ErrConflict", err)
	}
}
