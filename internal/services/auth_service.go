package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yoockh/helpdesk/internal/auth"
	"github.com/yoockh/helpdesk/internal/cache"
	"github.com/yoockh/helpdesk/internal/models"
	pgrepo "github.com/yoockh/helpdesk/internal/repositories/postgres"
	"github.com/yoockh/helpdesk/internal/utils"
)

type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type AuthService interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Logout(ctx context.Context, claims *auth.Claims) error
	Me(ctx context.Context, userID string) (*models.User, error)
	// SeedAdmin creates the bootstrap administrator when no account uses email yet.
	SeedAdmin(ctx context.Context, name, email, password string) error
}

type authService struct {
	users   pgrepo.UserRepository
	issuer  *auth.Issuer
	revoked cache.Revocations
	log     *logrus.Entry
	now     func() time.Time
}

func NewAuthService(users pgrepo.UserRepository, issuer *auth.Issuer, revoked cache.Revocations, log *logrus.Entry) AuthService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &authService{users: users, issuer: issuer, revoked: revoked, log: log, now: time.Now}
}

func (s *authService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	const op = "AuthService.Login"

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "email and password are required", nil)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeUnauthorized, op, "invalid credentials", nil)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to look up user", err)
	}
	if err := utils.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, utils.E(utils.CodeUnauthorized, op, "invalid credentials", nil)
	}

	token, _, err := s.issuer.Issue(u)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to issue token", err)
	}

	now := s.now().UTC()
	if err := s.users.TouchSignIn(ctx, u.ID, now); err != nil {
		s.log.WithError(err).WithField("user_id", u.ID).Warn("touch sign-in failed")
	} else {
		u.LastSignInAt = now
	}
	return &LoginResult{Token: token, User: u}, nil
}

func (s *authService) Logout(ctx context.Context, claims *auth.Claims) error {
	const op = "AuthService.Logout"

	if claims == nil || claims.ID == "" {
		return utils.E(utils.CodeUnauthorized, op, "no active token", nil)
	}
	if s.revoked == nil {
		return nil
	}
	ttl := s.issuer.Remaining(claims)
	if ttl <= 0 {
		return nil
	}
	if err := s.revoked.Revoke(ctx, claims.ID, ttl); err != nil {
		return utils.E(utils.CodeUnavailable, op, "failed to revoke token", err)
	}
	return nil
}

func (s *authService) Me(ctx context.Context, userID string) (*models.User, error) {
	const op = "AuthService.Me"

	if userID == "" {
		return nil, utils.E(utils.CodeUnauthorized, op, "missing user", nil)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "user not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to get user", err)
	}
	return u, nil
}

func (s *authService) SeedAdmin(ctx context.Context, name, email, password string) error {
	const op = "AuthService.SeedAdmin"

	if email == "" || password == "" {
		return nil
	}
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, utils.ErrNotFound) {
		return utils.E(utils.CodeInternal, op, "failed to look up admin", err)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to hash password", err)
	}
	if name == "" {
		name = "Admin User"
	}
	admin := &models.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, admin); err != nil && !errors.Is(err, utils.ErrConflict) {
		return utils.E(utils.CodeInternal, op, "failed to create admin", err)
	}
	s.log.WithField("email", email).Info("seeded admin account")
	return nil
}
