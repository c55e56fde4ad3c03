// internal/services/user_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/homecare/careops-backend/internal/models"
	"github.com/homecare/careops-backend/internal/store"
	"github.com/homecare/careops-backend/internal/utils"
)

// UserService manages console operators. Every mutation is super_admin only.
type UserService struct {
	store store.Store
	authz *AuthorizationService
}

type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	Name     string          `json:"name" validate:"required,max=100"`
	Password string          `json:"password" validate:"required,strong_password"`
	Role     models.UserRole `json:"role" validate:"required,oneof=admin super_admin"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func NewUserService(s store.Store, authz *AuthorizationService) *UserService {
	return &UserService{store: s, authz: authz}
}

func (s *UserService) CreateUser(ctx context.Context, actorID uuid.UUID, req *CreateUserRequest) (*models.User, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionManageUsers); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	user, err := s.create(ctx, actorID, req)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SeedAdmin creates the first super_admin. It is a no-op when a user with the
// email already exists, so bootstrapping can run on every deploy.
func (s *UserService) SeedAdmin(ctx context.Context, email, name, password string) (*models.User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if existing, err := s.store.FindUserByEmail(ctx, email); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up admin: %w", err)
	}

	req := &CreateUserRequest{
		Email:    email,
		Name:     name,
		Password: password,
		Role:     models.UserRoleSuperAdmin,
	}
	if err := utils.ValidateStruct(req); err != nil {
		return nil, false, fmt.Errorf("validation failed: %w", err)
	}

	user, err := s.create(ctx, uuid.Nil, req)
	if err != nil {
		return nil, false, err
	}

	logrus.WithField("email", user.Email).Info("Seeded super admin")
	return user, true, nil
}

func (s *UserService) SetActive(ctx context.Context, actorID, id uuid.UUID, active bool) (*models.User, error) {
	if err := s.authz.Authorize(ctx, actorID, ActionManageUsers); err != nil {
		return nil, err
	}
	if actorID == id && !active {
		return nil, &ValidationError{Field: "active", Message: "you cannot deactivate your own account"}
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Active == active {
		return user, nil
	}

	previous := user.Active
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		user.Active = active
		if err := tx.UpdateUser(ctx, user); err != nil {
			return storeError(err, "user", user.ID)
		}
		return createAuditLog(ctx, tx, actorID, ActionManageUsers, "user", user.ID,
			map[string]interface{}{"active": previous},
			map[string]interface{}{"active": active},
		)
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, storeError(err, "user", id)
	}
	return user, nil
}

func (s *UserService) List(ctx context.Context, filter store.UserFilter) ([]models.User, int64, error) {
	users, total, err := s.store.ListUsers(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	return users, total, nil
}

func (s *UserService) create(ctx context.Context, actorID uuid.UUID, req *CreateUserRequest) (*models.User, error) {
	user := &models.User{
		Email:  strings.ToLower(strings.TrimSpace(req.Email)),
		Name:   strings.TrimSpace(req.Name),
		Role:   req.Role,
		Active: true,
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return &ValidationError{Field: "email", Message: "a user with this email already exists"}
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		return createAuditLog(ctx, tx, actorID, ActionManageUsers, "user", user.ID, nil, map[string]interface{}{
			"email": user.Email,
			"role":  user.Role,
		})
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}
