package service

import (
	"context"
	"errors"
	"fmt"

	"shop-service/internal/auth"
	"shop-service/internal/models"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

// UserStore is the persistence surface for accounts.
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, u *models.User, updatePassword bool) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// UserService handles registration, login, and account management
type UserService struct {
	store  UserStore
	tokens *auth.TokenManager
	logger *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(store UserStore, tokens *auth.TokenManager) *UserService {
	return &UserService{
		store:  store,
		tokens: tokens,
		logger: util.GetLogger(),
	}
}

// RegisterRequest carries the registration payload
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=6"`
}

// AuthenticatedUser is a sanitized user plus a signed access token
type AuthenticatedUser struct {
	models.User
	Token string `json:"token"`
}

// Register hashes the password, stores the user, and issues a token
func (s *UserService) Register(ctx context.Context, req *RegisterRequest) (*AuthenticatedUser, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Register")
	defer span.End()

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.logger.Info("User registered", zap.Int64("user_id", user.ID))
	return &AuthenticatedUser{User: *user, Token: token}, nil
}

// Login verifies credentials and issues a token. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthenticatedUser, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Login")
	defer span.End()

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.UserLoginsTotal.WithLabelValues("failure").Inc()
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		util.UserLoginsTotal.WithLabelValues("failure").Inc()
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	util.UserLoginsTotal.WithLabelValues("success").Inc()
	return &AuthenticatedUser{User: *user, Token: token}, nil
}

// ListUsers returns all users; password hashes never serialize.
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// UpdateUserRequest carries a partial account update
type UpdateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// UpdateUser applies a partial update, re-hashing the password when one
// is supplied
func (s *UserService) UpdateUser(ctx context.Context, id int64, req *UpdateUserRequest) (*models.User, error) {
	updatePassword := false
	hash := ""
	if req.Password != "" {
		var err error
		hash, err = auth.HashPassword(req.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		updatePassword = true
	}

	user := &models.User{
		ID:           id,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
	}
	return s.store.UpdateUser(ctx, user, updatePassword)
}

// DeleteUser removes an account
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	return s.store.DeleteUser(ctx, id)
}
