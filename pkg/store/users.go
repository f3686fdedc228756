package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Role is a user's authorization level.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User mirrors the users table.
type User struct {
	ID            string `db:"id"`
	Email         string `db:"email"`
	PasswordHash  string `db:"password_hash"`
	Role          Role   `db:"role"`
	CreditBalance int64  `db:"credit_balance"`
	IsActive      bool   `db:"is_active"`
}

// CreateUser inserts a new user with a zero starting balance.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash string, role Role) (User, error) {
	u := User{ID: uuid.NewString(), Email: email, PasswordHash: passwordHash, Role: role, IsActive: true}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, role, credit_balance, is_active)
		VALUES (?, ?, ?, ?, 0, 1)`, u.ID, u.Email, u.PasswordHash, u.Role)
	if err != nil {
		return User{}, fmt.Errorf("store: creating user %q: %w", email, err)
	}
	return u, nil
}

// UserByEmail looks up a user by their unique email.
func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	if err := s.db.GetContext(ctx, &u, `SELECT id, email, password_hash, role, credit_balance, is_active FROM users WHERE email = ?`, email); err != nil {
		return User{}, fmt.Errorf("store: looking up user %q: %w", email, err)
	}
	return u, nil
}

// SetUserActive flips a user's is_active flag, used to suspend access
// without deleting their credit history.
func (s *Store) SetUserActive(ctx context.Context, userID string, active bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET is_active = ? WHERE id = ?`, active, userID)
	return err
}
