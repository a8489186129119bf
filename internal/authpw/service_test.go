package authpw

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"teamworks/api/internal/ids"
	"teamworks/api/internal/store"
)

// mockUserStore is a mock implementation of UserStore for testing
type mockUserStore struct {
	users      map[ids.ID]store.User
	emailIndex map[string]ids.ID
	lookupErr  error
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[ids.ID]store.User),
		emailIndex: make(map[string]ids.ID),
	}
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if m.lookupErr != nil {
		return store.User{}, m.lookupErr
	}
	if userID, ok := m.emailIndex[email]; ok {
		return m.users[userID], nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id ids.ID) (store.User, error) {
	if user, ok := m.users[id]; ok {
		return user, nil
	}
	return store.User{}, store.ErrNotFound
}

func (m *mockUserStore) CreateUser(ctx context.Context, user store.User) error {
	if _, taken := m.emailIndex[user.Email]; taken {
		return store.ErrConflict
	}
	m.users[user.ID] = user
	m.emailIndex[user.Email] = user.ID
	return nil
}

func (m *mockUserStore) UpdateUser(ctx context.Context, user store.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return store.ErrNotFound
	}
	m.users[user.ID] = user
	return nil
}

func newTestService(users UserStore) *Service {
	return NewService(users).WithCost(bcrypt.MinCost)
}

func TestSignUp(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := newTestService(mockStore)

	t.Run("successful sign up", func(t *testing.T) {
		user, err := svc.SignUp(ctx, SignUpRequest{
			FullName: "  Test User ",
			Email:    " Test@Example.com",
			Password: "password123",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.ID.IsZero() {
			t.Error("expected ID to be set")
		}
		if user.Email != "test@example.com" {
			t.Errorf("expected lower-cased email, got %q", user.Email)
		}
		if user.FullName != "Test User" {
			t.Errorf("expected trimmed name, got %q", user.FullName)
		}
		if user.PasswordHash == "password123" || user.PasswordHash == "" {
			t.Error("expected password to be hashed")
		}
	})

	cases := []struct {
		name string
		req  SignUpRequest
		want error
	}{
		{name: "duplicate email", req: SignUpRequest{FullName: "Other", Email: "TEST@example.com", Password: "password123"}, want: ErrEmailTaken},
		{name: "short password", req: SignUpRequest{FullName: "Test", Email: "test2@example.com", Password: "short"}, want: ErrWeakPassword},
		{name: "missing fields", req: SignUpRequest{}, want: ErrMissingFields},
		{name: "bad email", req: SignUpRequest{FullName: "Test", Email: "not-an-email", Password: "password123"}, want: ErrInvalidEmail},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.SignUp(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("SignUp() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestSignUpStoreFailure(t *testing.T) {
	mockStore := newMockUserStore()
	mockStore.lookupErr = errors.New("db down")
	svc := newTestService(mockStore)

	_, err := svc.SignUp(context.Background(), SignUpRequest{FullName: "A", Email: "a@example.com", Password: "password123"})
	if err == nil || errors.Is(err, ErrEmailTaken) {
		t.Fatalf("SignUp() error = %v, want wrapped store failure", err)
	}
}

func TestSignIn(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := newTestService(mockStore)

	if _, err := svc.SignUp(ctx, SignUpRequest{FullName: "Test User", Email: "test@example.com", Password: "password123"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	t.Run("successful sign in", func(t *testing.T) {
		user, err := svc.SignIn(ctx, "TEST@example.com", "password123")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if user.Email != "test@example.com" {
			t.Errorf("expected email test@example.com, got %s", user.Email)
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "test@example.com", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("non-existent user", func(t *testing.T) {
		if _, err := svc.SignIn(ctx, "nonexistent@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	mockStore := newMockUserStore()
	svc := newTestService(mockStore)

	user, err := svc.SignUp(ctx, SignUpRequest{FullName: "Test User", Email: "test@example.com", Password: "password123"})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	if err := svc.ChangePassword(ctx, user.ID, "wrong-password", "newpassword123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "password123", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := svc.ChangePassword(ctx, user.ID, "password123", "newpassword123"); err != nil {
		t.Fatalf("ChangePassword() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, "test@example.com", "password123"); err == nil {
		t.Error("expected old password to stop working")
	}
	if _, err := svc.SignIn(ctx, "test@example.com", "newpassword123"); err != nil {
		t.Errorf("expected new password to work: %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]bool{
		"ada@example.com":        true,
		"  ADA@Example.COM ":     true,
		"Ada <ada@example.com>":  false,
		"":                       false,
		"missing-at.example.com": false,
	}
	for input, ok := range cases {
		_, err := NormalizeEmail(input)
		if ok != (err == nil) {
			t.Errorf("NormalizeEmail(%q) error = %v, want ok=%v", input, err, ok)
		}
	}
}
