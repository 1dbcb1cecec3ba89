package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/yoockh/helpdesk/internal/models"
	pgrepo "github.com/yoockh/helpdesk/internal/repositories/postgres"
	"github.com/yoockh/helpdesk/internal/utils"
)

const minPasswordLen = 6

// UserService manages the roster on behalf of administrators.
type UserService interface {
	List(ctx context.Context) ([]models.User, error)
	Create(ctx context.Context, in models.UserInput) (*models.User, error)
	Update(ctx context.Context, id string, in models.UserInput) (*models.User, error)
	Delete(ctx context.Context, actorID, id string) error
	Count(ctx context.Context) (int64, error)
}

type userService struct {
	users pgrepo.UserRepository
	now   func() time.Time
}

func NewUserService(users pgrepo.UserRepository) UserService {
	return &userService{users: users, now: time.Now}
}

func validateUserInput(op string, in *models.UserInput, create bool) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if in.Name == "" || in.Email == "" {
		return utils.E(utils.CodeInvalidArgument, op, "name and email are required", nil)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return utils.E(utils.CodeInvalidArgument, op, "email is not valid", err)
	}
	if in.Role == "" {
		in.Role = models.RoleUser
	}
	if !in.Role.Valid() {
		return utils.E(utils.CodeInvalidArgument, op, "role must be user or admin", nil)
	}
	if create && len(in.Password) < minPasswordLen {
		return utils.E(utils.CodeInvalidArgument, op, "password must be at least 6 characters", nil)
	}
	if !create && in.Password != "" && len(in.Password) < minPasswordLen {
		return utils.E(utils.CodeInvalidArgument, op, "password must be at least 6 characters", nil)
	}
	return nil
}

func (s *userService) List(ctx context.Context) ([]models.User, error) {
	const op = "UserService.List"

	rows, err := s.users.List(ctx)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list users", err)
	}
	return rows, nil
}

func (s *userService) Create(ctx context.Context, in models.UserInput) (*models.User, error) {
	const op = "UserService.Create"

	if err := validateUserInput(op, &in, true); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, utils.E(utils.CodeConflict, op, "email already registered", utils.ErrConflict)
	} else if !errors.Is(err, utils.ErrNotFound) {
		return nil, utils.E(utils.CodeInternal, op, "failed to check email", err)
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to hash password", err)
	}
	u := &models.User{
		Name:         in.Name,
		Email:        in.Email,
		Role:         in.Role,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, "email already registered", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to create user", err)
	}
	return u, nil
}

func (s *userService) Update(ctx context.Context, id string, in models.UserInput) (*models.User, error) {
	const op = "UserService.Update"

	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "id is required", nil)
	}
	if err := validateUserInput(op, &in, false); err != nil {
		return nil, err
	}
	if other, err := s.users.GetByEmail(ctx, in.Email); err == nil && other.ID != id {
		return nil, utils.E(utils.CodeConflict, op, "email already registered", utils.ErrConflict)
	}

	fields := map[string]any{"name": in.Name, "email": in.Email, "role": in.Role}
	if in.Password != "" {
		hash, err := utils.HashPassword(in.Password)
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to hash password", err)
		}
		fields["password_hash"] = hash
	}
	if err := s.users.Update(ctx, id, fields); err != nil {
		switch {
		case errors.Is(err, utils.ErrNotFound):
			return nil, utils.E(utils.CodeNotFound, op, "user not found", err)
		case errors.Is(err, utils.ErrConflict):
			return nil, utils.E(utils.CodeConflict, op, "email already registered", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to update user", err)
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to reload user", err)
	}
	return u, nil
}

func (s *userService) Delete(ctx context.Context, actorID, id string) error {
	const op = "UserService.Delete"

	if id == "" {
		return utils.E(utils.CodeInvalidArgument, op, "id is required", nil)
	}
	if id == actorID {
		return utils.E(utils.CodeInvalidArgument, op, "cannot delete your own account", nil)
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "user not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to delete user", err)
	}
	return nil
}

func (s *userService) Count(ctx context.Context) (int64, error) {
	const op = "UserService.Count"

	n, err := s.users.Count(ctx)
	if err != nil {
		return 0, utils.E(utils.CodeInternal, op, "failed to count users", err)
	}
	return n, nil
}
