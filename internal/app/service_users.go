package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"teamworks/api/internal/authpw"
	"teamworks/api/internal/ids"
	"teamworks/api/internal/store"
)

type UpdateUserInput struct {
	FullName *string `json:"fullName"`
	Email    *string `json:"email"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// ListUsers is the directory the frontend uses to map ids to names.
func (s *Service) ListUsers(ctx context.Context) ([]map[string]any, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, storeFailure(err)
	}
	return mapSlice(users, userPayload), nil
}

func (s *Service) GetUser(ctx context.Context, userID ids.ID) (map[string]any, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusNotFound, "USER_NOT_FOUND", "User not found", nil)
		}
		return nil, storeFailure(err)
	}
	return userPayload(user), nil
}

// UpdateUser edits the caller's own profile.
func (s *Service) UpdateUser(ctx context.Context, session Session, userID ids.ID, input UpdateUserInput) (map[string]any, error) {
	if userID != session.UserID {
		return nil, forbidden("You can only update your own profile")
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, storeFailure(err)
	}
	if input.FullName != nil {
		name := strings.TrimSpace(*input.FullName)
		if name == "" {
			return nil, validationError("fullName", "Full name is required")
		}
		user.FullName = name
	}
	if input.Email != nil {
		email, err := authpw.NormalizeEmail(*input.Email)
		if err != nil {
			return nil, validationError("email", "A valid email address is required")
		}
		if email != user.Email {
			other, err := s.store.GetUserByEmail(ctx, email)
			switch {
			case err == nil && other.ID != user.ID:
				return nil, authpw.ErrEmailTaken
			case err != nil && !store.IsNotFound(err):
				return nil, storeFailure(err)
			}
			user.Email = email
		}
	}
	user.UpdatedAt = s.now()
	if err := s.store.UpdateUser(ctx, user); err != nil {
		if store.IsNotFound(err) {
			return nil, domainError(http.StatusNotFound, "USER_NOT_FOUND", "User not found", nil)
		}
		if errors.Is(err, store.ErrConflict) {
			return nil, authpw.ErrEmailTaken
		}
		return nil, storeFailure(err)
	}
	return userPayload(user), nil
}

func (s *Service) ChangePassword(ctx context.Context, session Session, userID ids.ID, input ChangePasswordInput) error {
	if userID != session.UserID {
		return forbidden("You can only change your own password")
	}
	return s.passwords.ChangePassword(ctx, userID, input.CurrentPassword, input.NewPassword)
}
