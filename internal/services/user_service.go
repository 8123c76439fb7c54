package services

import (
	"context"
	"errors"
	"strings"

	"github.com/Preyoshi04/MockWise/internal/models"
	pgrepo "github.com/Preyoshi04/MockWise/internal/repositories/postgres"
	"github.com/Preyoshi04/MockWise/internal/utils"
)

const maxTechStacks = 20

type UserService interface {
	Get(ctx context.Context, userID string) (*models.User, error)
	SetTechStacks(ctx context.Context, userID string, stacks []string) (*models.User, error)
}

type userService struct {
	users pgrepo.UserRepository
}

func NewUserService(users pgrepo.UserRepository) UserService {
	return &userService{users: users}
}

func (s *userService) Get(ctx context.Context, userID string) (*models.User, error) {
	const op = "UserService.Get"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "user not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load user", err)
	}
	return u, nil
}

// SetTechStacks replaces the user's preferred stacks. Entries are trimmed and
// deduplicated case-insensitively, keeping the first spelling.
func (s *userService) SetTechStacks(ctx context.Context, userID string, stacks []string) (*models.User, error) {
	const op = "UserService.SetTechStacks"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}

	seen := map[string]struct{}{}
	clean := make([]string, 0, len(stacks))
	for _, st := range stacks {
		st = strings.TrimSpace(st)
		key := strings.ToLower(st)
		if st == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		clean = append(clean, st)
	}
	if len(clean) > maxTechStacks {
		return nil, utils.E(utils.CodeInvalidArgument, op, "too many tech stacks (max 20)", nil)
	}

	if err := s.users.SetTechStacks(ctx, userID, clean); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "user not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to update tech stacks", err)
	}
	return s.Get(ctx, userID)
}
