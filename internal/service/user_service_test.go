package service

import (
	"context"
	"testing"
	"time"

	"shop-service/internal/auth"
	"shop-service/internal/models"
	"shop-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUserStore struct {
	byEmail map[string]*models.User
	nextID  int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{byEmail: make(map[string]*models.User), nextID: 1}
}

func (f *fakeUserStore) CreateUser(_ context.Context, u *models.User) error {
	if _, ok := f.byEmail[u.Email]; ok {
		return store.ErrDuplicateEmail
	}
	u.ID = f.nextID
	f.nextID++
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUserStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUserStore) ListUsers(_ context.Context) ([]models.User, error) {
	var out []models.User
	for _, u := range f.byEmail {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUserStore) UpdateUser(_ context.Context, u *models.User, updatePassword bool) (*models.User, error) {
	existing, err := f.GetUserByID(context.Background(), u.ID)
	if err != nil {
		return nil, err
	}
	if u.Name != "" {
		existing.Name = u.Name
	}
	if updatePassword {
		existing.PasswordHash = u.PasswordHash
	}
	return existing, nil
}

func (f *fakeUserStore) DeleteUser(_ context.Context, id int64) error {
	for email, u := range f.byEmail {
		if u.ID == id {
			delete(f.byEmail, email)
			return nil
		}
	}
	return store.ErrNotFound
}

func newTestUserService() (*UserService, *fakeUserStore) {
	st := newFakeUserStore()
	tokens := auth.NewTokenManager("test-secret", time.Hour)
	return NewUserService(st, tokens), st
}

func TestRegisterHashesPassword(t *testing.T) {
	svc, st := newTestUserService()

	out, err := svc.Register(context.Background(), &RegisterRequest{
		Name:     "John Doe",
		Email:    "john@example.com",
		Password: "hunter22",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Token)

	stored := st.byEmail["john@example.com"]
	require.NotNil(t, stored)
	assert.NotEqual(t, "hunter22", stored.PasswordHash)
	assert.True(t, auth.CheckPassword(stored.PasswordHash, "hunter22"))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestUserService()

	req := &RegisterRequest{Name: "John", Email: "john@example.com", Password: "hunter22"}
	_, err := svc.Register(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), req)
	assert.ErrorIs(t, err, store.ErrDuplicateEmail)
}

func TestLogin(t *testing.T) {
	svc, _ := newTestUserService()

	_, err := svc.Register(context.Background(), &RegisterRequest{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	out, err := svc.Login(context.Background(), "jane@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", out.Email)
	assert.NotEmpty(t, out.Token)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestUserService()

	_, err := svc.Register(context.Background(), &RegisterRequest{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "jane@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newTestUserService()

	// unknown email and wrong password must be indistinguishable
	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateUserRehashesPassword(t *testing.T) {
	svc, st := newTestUserService()

	out, err := svc.Register(context.Background(), &RegisterRequest{
		Name:     "Jane",
		Email:    "jane@example.com",
		Password: "old-password",
	})
	require.NoError(t, err)

	_, err = svc.UpdateUser(context.Background(), out.ID, &UpdateUserRequest{Password: "new-password"})
	require.NoError(t, err)

	stored := st.byEmail["jane@example.com"]
	assert.True(t, auth.CheckPassword(stored.PasswordHash, "new-password"))
	assert.False(t, auth.CheckPassword(stored.PasswordHash, "old-password"))
}
