package memory

import (
	"context"
	"sync"

	"github.com/Preyoshi04/MockWise/internal/models"
	"github.com/Preyoshi04/MockWise/internal/utils"
)

type UserRepo struct {
	mu    sync.Mutex
	users map[string]models.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{users: map[string]models.User{}}
}

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == u.Email {
			return utils.ErrConflict
		}
	}
	r.users[u.ID] = *u
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, utils.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, utils.ErrNotFound
}

func (r *UserRepo) IncrementInterviews(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return utils.ErrNotFound
	}
	u.TotalInterviews++
	r.users[id] = u
	return nil
}

func (r *UserRepo) SetTechStacks(ctx context.Context, id string, stacks []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return utils.ErrNotFound
	}
	u.TechStacks = append([]string(nil), stacks...)
	r.users[id] = u
	return nil
}
