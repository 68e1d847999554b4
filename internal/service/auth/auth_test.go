package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"bone_chat/internal/model"
	"bone_chat/internal/service/auth"
)

type memUserStore struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*model.User)}
}

func (s *memUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, nil
	}
	cpy := *u
	return &cpy, nil
}

func (s *memUserStore) GetByID(_ context.Context, id primitive.ObjectID) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			cpy := *u
			return &cpy, nil
		}
	}
	return nil, nil
}

func (s *memUserStore) Create(_ context.Context, u *model.User) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = primitive.NewObjectID()
	s.users[u.Email] = u
	return u.ID, nil
}

func (s *memUserStore) delete(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, email)
}

type memTokenStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{keys: make(map[string]struct{})}
}

func (s *memTokenStore) Set(_ context.Context, key string, _ any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[key] = struct{}{}
	return nil
}

func (s *memTokenStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok, nil
}

func newTestService() *auth.Service {
	return auth.NewService(newMemUserStore(), newMemTokenStore(), "test-secret", time.Hour)
}

func TestSignupLoginVerify(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	u, err := svc.Signup(ctx, "a@example.com", "alice", "hunter22")
	require.NoError(t, err)
	require.False(t, u.ID.IsZero())
	assert.NotEqual(t, "hunter22", string(u.PasswordHash))

	token, err := svc.Login(ctx, "a@example.com", "hunter22")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := svc.VerifyToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID.Hex(), userID)
}

func TestSignupDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Signup(ctx, "a@example.com", "alice", "hunter22")
	require.NoError(t, err)

	_, err = svc.Signup(ctx, "a@example.com", "imposter", "password")
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Signup(ctx, "a@example.com", "alice", "hunter22")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "a@example.com", "wrong")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "hunter22")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestVerifyRejectsGarbageAndForeignTokens(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.VerifyToken(ctx, "not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	// Token signed with a different secret.
	other := auth.NewService(newMemUserStore(), newMemTokenStore(), "other-secret", time.Hour)
	_, err = other.Signup(ctx, "b@example.com", "bob", "pw")
	require.NoError(t, err)
	token, err := other.Login(ctx, "b@example.com", "pw")
	require.NoError(t, err)

	_, err = svc.VerifyToken(ctx, token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestVerifyRejectsDeletedUser(t *testing.T) {
	ctx := context.Background()
	users := newMemUserStore()
	svc := auth.NewService(users, newMemTokenStore(), "test-secret", time.Hour)

	_, err := svc.Signup(ctx, "a@example.com", "alice", "hunter22")
	require.NoError(t, err)
	token, err := svc.Login(ctx, "a@example.com", "hunter22")
	require.NoError(t, err)

	users.delete("a@example.com")

	_, err = svc.VerifyToken(ctx, token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestLogoutBlacklistsToken(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.Signup(ctx, "a@example.com", "alice", "hunter22")
	require.NoError(t, err)
	token, err := svc.Login(ctx, "a@example.com", "hunter22")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))

	_, err = svc.VerifyToken(ctx, token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
