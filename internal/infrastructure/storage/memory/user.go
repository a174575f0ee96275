package memory

import (
	"context"
	"strings"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/domain/auth"
)

var _ auth.Repository = (*UserRepo)(nil)

// UserRepo is the in-memory user store.
type UserRepo struct {
	store *Store
}

func (r *UserRepo) Create(ctx context.Context, user *auth.User) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	for _, existing := range r.store.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return apperror.NewConflict("email already registered").WithDetail("email", user.Email)
		}
	}
	r.store.users[user.ID] = cloneUser(user)
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, userID id.ID) (*auth.User, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	user, ok := r.store.users[userID]
	if !ok {
		return nil, apperror.NewNotFound("user", userID)
	}
	return cloneUser(user), nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	for _, user := range r.store.users {
		if strings.EqualFold(user.Email, email) {
			return cloneUser(user), nil
		}
	}
	return nil, apperror.NewNotFound("user", email)
}
