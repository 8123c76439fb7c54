package services

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/Preyoshi04/MockWise/internal/models"
	pgrepo "github.com/Preyoshi04/MockWise/internal/repositories/postgres"
	"github.com/Preyoshi04/MockWise/internal/utils"

	"github.com/google/uuid"
)

type AuthService interface {
	Register(ctx context.Context, email, password, fullName string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*LoginResult, error)
}

type LoginResult struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

const minPasswordLen = 6

type authService struct {
	users  pgrepo.UserRepository
	tokens utils.TokenIssuer
}

func NewAuthService(users pgrepo.UserRepository, tokens utils.TokenIssuer) AuthService {
	return &authService{users: users, tokens: tokens}
}

func normalizeEmail(v string) string { return strings.ToLower(strings.TrimSpace(v)) }

func (s *authService) Register(ctx context.Context, email, password, fullName string) (*models.User, error) {
	const op = "AuthService.Register"

	email = normalizeEmail(email)
	fullName = strings.TrimSpace(fullName)
	if email == "" || password == "" || fullName == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "All fields are required", nil)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid email address", err)
	}
	if len(password) < minPasswordLen {
		return nil, utils.E(utils.CodeInvalidArgument, op, "password must be at least 6 characters", nil)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooLong) {
			return nil, utils.E(utils.CodeInvalidArgument, op, "password is too long", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to hash password", err)
	}

	u := &models.User{
		ID:              uuid.NewString(),
		Name:            fullName,
		Email:           email,
		PasswordHash:    hash,
		Role:            models.RoleUser,
		Plan:            models.PlanFree,
		TotalInterviews: 0,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, utils.ErrConflict) {
			return nil, utils.E(utils.CodeConflict, op, "email is already registered", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to create user", err)
	}
	return u, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	const op = "AuthService.Login"

	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "email and password are required", nil)
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeUnauthorized, op, "invalid email or password", nil)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load user", err)
	}
	if err := utils.CheckPassword(u.PasswordHash, password); err != nil {
		return nil, utils.E(utils.CodeUnauthorized, op, "invalid email or password", nil)
	}

	role := string(u.Role)
	if role == "" {
		role = string(models.RoleUser)
	}
	token, exp, err := s.tokens.Issue(u.ID, role)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to issue token", err)
	}
	return &LoginResult{User: u, Token: token, ExpiresAt: exp}, nil
}
