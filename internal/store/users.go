package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop-service/internal/models"

	"github.com/lib/pq"
)

// ErrDuplicateEmail is returned when a user insert or update violates
// the unique email constraint.
var ErrDuplicateEmail = errors.New("email already registered")

// CreateUser inserts a user and fills in its generated fields
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (name, email, phone, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, u, query, u.Name, u.Email, u.Phone, u.PasswordHash)
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE email = $1", email)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers retrieves all users, newest first
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY created_at DESC")
	return users, err
}

// UpdateUser applies a partial update; empty fields keep their current
// value. The password hash is only written when updatePassword is set.
func (s *Store) UpdateUser(ctx context.Context, u *models.User, updatePassword bool) (*models.User, error) {
	var hash interface{}
	if updatePassword {
		hash = u.PasswordHash
	}

	var updated models.User
	err := s.db.GetContext(ctx, &updated, `
		UPDATE users
		SET name          = COALESCE(NULLIF($2, ''), name),
		    email         = COALESCE(NULLIF($3, ''), email),
		    phone         = COALESCE(NULLIF($4, ''), phone),
		    password_hash = COALESCE($5, password_hash)
		WHERE id = $1
		RETURNING *`,
		u.ID, u.Name, u.Email, u.Phone, hash)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if isUniqueViolation(err) {
		return nil, ErrDuplicateEmail
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteUser removes a user
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
