// Package memory is a process-local credential store used by tests and by
// STORE_DRIVER=memory during local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/accessedu/portal-auth/internal/domain/entity"
	"github.com/accessedu/portal-auth/internal/domain/repository"
)

type UserRepository struct {
	mu    sync.RWMutex
	users map[string]entity.User // keyed by normalized email
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: map[string]entity.User{}}
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *UserRepository) Insert(ctx context.Context, u *entity.User) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[u.Email]; exists {
		return nil, repository.ErrConflict
	}
	r.users[u.Email] = *u
	cp := *u
	return &cp, nil
}

func (r *UserRepository) UpdateFields(ctx context.Context, email string, patch repository.UserPatch) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.OnlyIfUnverified && u.VerifiedAt != nil {
		return nil, repository.ErrPrecondition
	}
	patch.Apply(&u)
	r.users[email] = u
	return &u, nil
}

func (r *UserRepository) List(ctx context.Context, f repository.ListFilter) ([]entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]entity.User, 0, len(r.users))
	for _, u := range r.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		out = append(out, u)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if f.Offset >= len(out) {
		return []entity.User{}, nil
	}
	if f.Offset > 0 {
		out = out[f.Offset:]
	}
	if limit := f.NormalizeLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ repository.UserRepository = (*UserRepository)(nil)
