package backlog

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"teamworks/api/internal/ids"
	"teamworks/api/internal/logging"
	"teamworks/api/internal/store"
)

type memTaskStore struct {
	tasks      map[ids.ID]store.Task
	findErr    error
	updateErr  error
	cleanupErr error
	updates    int
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: map[ids.ID]store.Task{}}
}

func (m *memTaskStore) add(projectID ids.ID, deps ...ids.ID) store.Task {
	task := store.Task{ID: ids.New(), ProjectID: projectID, Title: "task", Dependencies: append([]ids.ID{}, deps...)}
	m.tasks[task.ID] = task
	return task
}

func (m *memTaskStore) FindTask(_ context.Context, taskID, projectID ids.ID) (store.Task, error) {
	if m.findErr != nil {
		return store.Task{}, m.findErr
	}
	task, ok := m.tasks[taskID]
	if !ok || task.ProjectID != projectID {
		return store.Task{}, store.ErrNotFound
	}
	task.Dependencies = append([]ids.ID{}, task.Dependencies...)
	return task, nil
}

func (m *memTaskStore) ListTasks(_ context.Context, projectID ids.ID, _ store.TaskFilter) ([]store.Task, error) {
	out := []store.Task{}
	for _, task := range m.tasks {
		if task.ProjectID == projectID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (m *memTaskStore) UpdateTaskDependencies(_ context.Context, taskID ids.ID, deps []ids.ID, updatedAt time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	task, ok := m.tasks[taskID]
	if !ok {
		return store.ErrNotFound
	}
	m.updates++
	task.Dependencies = append([]ids.ID{}, deps...)
	task.UpdatedAt = updatedAt
	m.tasks[taskID] = task
	return nil
}

func (m *memTaskStore) RemoveDependencyReferences(_ context.Context, projectID, removedID ids.ID, updatedAt time.Time) (int64, error) {
	if m.cleanupErr != nil {
		return 0, m.cleanupErr
	}
	var changed int64
	for id, task := range m.tasks {
		if task.ProjectID != projectID || !ids.Contains(task.Dependencies, removedID) {
			continue
		}
		kept := []ids.ID{}
		for _, dep := range task.Dependencies {
			if dep != removedID {
				kept = append(kept, dep)
			}
		}
		task.Dependencies = kept
		task.UpdatedAt = updatedAt
		m.tasks[id] = task
		changed++
	}
	return changed, nil
}

func (m *memTaskStore) delete(taskID ids.ID) {
	delete(m.tasks, taskID)
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestManager(s TaskStore) *Manager {
	return NewManager(s, logging.Discard(), WithClock(func() time.Time { return fixedNow }))
}

func equalIDs(a, b []ids.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNormalize(t *testing.T) {
	projectID := ids.New()
	s := newMemTaskStore()
	a := s.add(projectID)
	b := s.add(projectID)
	foreign := s.add(ids.New())
	self := s.add(projectID)
	m := newTestManager(s)

	cases := []struct {
		name    string
		input   []string
		exclude ids.ID
		want    []ids.ID
		wantErr error
	}{
		{name: "absent", input: nil, want: []ids.ID{}},
		{name: "empty", input: []string{}, want: []ids.ID{}},
		{name: "dedupes keeping first seen", input: []string{b.ID.String(), a.ID.String(), b.ID.String()}, want: []ids.ID{b.ID, a.ID}},
		{name: "upper case folds to same id", input: []string{a.ID.String(), strings.ToUpper(a.ID.String())}, want: []ids.ID{a.ID}},
		{name: "malformed", input: []string{"not-an-id"}, wantErr: ErrInvalidReference},
		{name: "self", input: []string{a.ID.String(), self.ID.String()}, exclude: self.ID, wantErr: ErrSelfDependency},
		{name: "other project", input: []string{foreign.ID.String()}, wantErr: ErrDependencyNotFound},
		{name: "missing", input: []string{ids.New().String()}, wantErr: ErrDependencyNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.Normalize(context.Background(), tc.input, projectID, tc.exclude)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("Normalize() error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got == nil {
				t.Fatal("Normalize() returned nil slice")
			}
			if !equalIDs(got, tc.want) {
				t.Fatalf("Normalize() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNormalizeStoreFailureIsInfrastructure(t *testing.T) {
	s := newMemTaskStore()
	s.findErr = errors.New("connection reset")
	m := newTestManager(s)

	_, err := m.Normalize(context.Background(), []string{ids.New().String()}, ids.New(), "")
	if !errors.Is(err, ErrInfrastructure) || !Retryable(err) {
		t.Fatalf("Normalize() error = %v, want infrastructure error", err)
	}
}

func TestDependencyScenario(t *testing.T) {
	ctx := context.Background()
	projectID := ids.New()
	s := newMemTaskStore()
	a := s.add(projectID)
	b := s.add(projectID)
	s.add(projectID)
	m := newTestManager(s)

	deps, err := m.AddDependency(ctx, a.ID, b.ID, projectID)
	if err != nil {
		t.Fatalf("AddDependency(A, B) error = %v", err)
	}
	if !equalIDs(deps, []ids.ID{b.ID}) {
		t.Fatalf("after add: %v, want [B]", deps)
	}
	if got := s.tasks[a.ID].UpdatedAt; !got.Equal(fixedNow) {
		t.Fatalf("updatedAt = %v, want %v", got, fixedNow)
	}

	if _, err := m.AddDependency(ctx, a.ID, b.ID, projectID); !errors.Is(err, ErrDuplicateDependency) {
		t.Fatalf("second AddDependency(A, B) error = %v, want duplicate", err)
	}
	if !equalIDs(s.tasks[a.ID].Dependencies, []ids.ID{b.ID}) {
		t.Fatalf("list changed after duplicate add: %v", s.tasks[a.ID].Dependencies)
	}

	if _, err := m.AddDependency(ctx, a.ID, a.ID, projectID); !errors.Is(err, ErrSelfDependency) {
		t.Fatalf("AddDependency(A, A) error = %v, want self dependency", err)
	}

	s.delete(b.ID)
	changed, err := m.OnTaskDeleted(ctx, b.ID, projectID)
	if err != nil {
		t.Fatalf("OnTaskDeleted(B) error = %v", err)
	}
	if changed != 1 {
		t.Fatalf("changed = %d, want 1", changed)
	}
	if got := s.tasks[a.ID].Dependencies; len(got) != 0 {
		t.Fatalf("A.dependencies = %v, want empty", got)
	}
}

func TestAddThenRemoveRestoresList(t *testing.T) {
	ctx := context.Background()
	projectID := ids.New()
	s := newMemTaskStore()
	x := s.add(projectID)
	y := s.add(projectID)
	task := s.add(projectID, x.ID)
	m := newTestManager(s)

	before := append([]ids.ID{}, s.tasks[task.ID].Dependencies...)
	if _, err := m.AddDependency(ctx, task.ID, y.ID, projectID); err != nil {
		t.Fatalf("AddDependency error = %v", err)
	}
	after, err := m.RemoveDependency(ctx, task.ID, y.ID, projectID)
	if err != nil {
		t.Fatalf("RemoveDependency error = %v", err)
	}
	if !equalIDs(after, before) {
		t.Fatalf("after add+remove = %v, want %v", after, before)
	}
}

func TestRemoveDependencyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	projectID := ids.New()
	s := newMemTaskStore()
	x := s.add(projectID)
	task := s.add(projectID, x.ID)
	m := newTestManager(s)

	got, err := m.RemoveDependency(ctx, task.ID, ids.New(), projectID)
	if err != nil {
		t.Fatalf("RemoveDependency(absent) error = %v", err)
	}
	if !equalIDs(got, []ids.ID{x.ID}) {
		t.Fatalf("RemoveDependency(absent) = %v, want [%s]", got, x.ID)
	}
	if s.updates != 1 {
		t.Fatalf("updates = %d, want the list persisted once", s.updates)
	}
}

func TestAddDependencyErrors(t *testing.T) {
	ctx := context.Background()
	projectID := ids.New()
	otherProject := ids.New()
	s := newMemTaskStore()
	task := s.add(projectID)
	foreign := s.add(otherProject)
	m := newTestManager(s)

	cases := []struct {
		name    string
		taskID  ids.ID
		depID   ids.ID
		project ids.ID
		want    error
	}{
		{name: "dependency in other project", taskID: task.ID, depID: foreign.ID, project: projectID, want: ErrDependencyNotFound},
		{name: "task missing", taskID: ids.New(), depID: task.ID, project: projectID, want: ErrTaskNotFound},
		{name: "task in other project", taskID: task.ID, depID: foreign.ID, project: otherProject, want: ErrTaskNotFound},
		{name: "self regardless of project", taskID: task.ID, depID: task.ID, project: otherProject, want: ErrSelfDependency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.AddDependency(ctx, tc.taskID, tc.depID, tc.project); !errors.Is(err, tc.want) {
				t.Fatalf("AddDependency() error = %v, want %v", err, tc.want)
			}
			if got := s.tasks[task.ID].Dependencies; len(got) != 0 {
				t.Fatalf("task dependencies changed to %v", got)
			}
		})
	}
}

func TestAddDependencyStoreWriteFailure(t *testing.T) {
	ctx := context.Background()
	projectID := ids.New()
	s := newMemTaskStore()
	a := s.add(projectID)
	b := s.add(projectID)
	s.updateErr = errors.New("write timeout")
	m := newTestManager(s)

	if _, err := m.AddDependency(ctx, a.ID, b.ID, projectID); !errors.Is(err, ErrInfrastructure) {
		t.Fatalf("AddDependency() error = %v, want infrastructure", err)
	}
}

func TestOnTaskDeletedLeavesOtherProjectsAlone(t *testing.T) {
	ctx := context.Background()
	projectID := ids.New()
	otherProject := ids.New()
	s := newMemTaskStore()
	x := s.add(projectID)
	dependent := s.add(projectID, x.ID)
	outsider := s.add(otherProject, x.ID)
	m := newTestManager(s)

	s.delete(x.ID)
	if _, err := m.OnTaskDeleted(ctx, x.ID, projectID); err != nil {
		t.Fatalf("OnTaskDeleted error = %v", err)
	}
	remaining, _ := s.ListTasks(ctx, projectID, store.TaskFilter{})
	for _, task := range remaining {
		if ids.Contains(task.Dependencies, x.ID) {
			t.Fatalf("task %s still lists deleted task", task.ID)
		}
	}
	if len(s.tasks[dependent.ID].Dependencies) != 0 {
		t.Fatal("dependent should be cleaned")
	}
	if !ids.Contains(s.tasks[outsider.ID].Dependencies, x.ID) {
		t.Fatal("task in another project must not be touched")
	}
}

func TestOnTaskDeletedReportsFailure(t *testing.T) {
	s := newMemTaskStore()
	s.cleanupErr = errors.New("store down")
	m := newTestManager(s)

	changed, err := m.OnTaskDeleted(context.Background(), ids.New(), ids.New())
	if !errors.Is(err, ErrInfrastructure) {
		t.Fatalf("OnTaskDeleted error = %v, want infrastructure", err)
	}
	if changed != 0 {
		t.Fatalf("changed = %d, want 0", changed)
	}
}

func TestDependents(t *testing.T) {
	ctx := context.Background()
	projectID := ids.New()
	s := newMemTaskStore()
	x := s.add(projectID)
	d1 := s.add(projectID, x.ID)
	s.add(projectID)
	m := newTestManager(s)

	got, err := m.Dependents(ctx, x.ID, projectID)
	if err != nil {
		t.Fatalf("Dependents error = %v", err)
	}
	if len(got) != 1 || got[0].ID != d1.ID {
		t.Fatalf("Dependents = %v, want only %s", got, d1.ID)
	}
}
