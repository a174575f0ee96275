// Package auth provides user accounts and JWT-based authentication for
// the HTTP API.
package auth

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
)

// Role gates access to mutating endpoints.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

// User is an API account. PasswordHash is a bcrypt hash and never
// leaves the server.
type User struct {
	ID           id.ID     `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Roles        []Role    `json:"roles" db:"roles"`
	IsActive     bool      `json:"isActive" db:"is_active"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// NewUser creates an active user with a freshly hashed password.
func NewUser(email, password string, roles []Role, now time.Time) (*User, error) {
	if email == "" {
		return nil, apperror.NewValidation("email is required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:           id.New(),
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// HasRole reports whether the user carries the role. Admins pass every
// role check.
func (u *User) HasRole(role Role) bool {
	for _, r := range u.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

// CheckPassword compares a candidate password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// HashPassword bcrypt-hashes a password with the default cost.
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", apperror.NewValidation("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperror.NewInternal(err)
	}
	return string(hash), nil
}

// Repository persists users.
type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, userID id.ID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
