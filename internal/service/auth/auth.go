package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"bone_chat/internal/model"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrInvalidToken       = errors.New("auth: invalid or expired token")
)

type (
	// UserStore is the persistence the service needs; *user.UserRepo
	// satisfies it.
	UserStore interface {
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		GetByID(ctx context.Context, id primitive.ObjectID) (*model.User, error)
		Create(ctx context.Context, user *model.User) (primitive.ObjectID, error)
	}

	// TokenStore keeps revoked tokens until they would have expired anyway;
	// *redis.RedisService satisfies it.
	TokenStore interface {
		Set(ctx context.Context, key string, value any, ttl time.Duration) error
		Exists(ctx context.Context, key string) (bool, error)
	}

	Service struct {
		users    UserStore
		tokens   TokenStore
		secret   []byte
		tokenTTL time.Duration
	}
)

func NewService(users UserStore, tokens TokenStore, secret string, tokenTTL time.Duration) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

func (s *Service) Signup(ctx context.Context, email, name, password string) (*model.User, error) {
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	u := &model.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
	}

	if _, err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login checks the credentials and issues a bearer token carrying the user id.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	claims := jwt.MapClaims{
		"user_id": u.ID.Hex(),
		"exp":     time.Now().Add(s.tokenTTL).Unix(),
		"iss":     "bone-chat",
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Logout blacklists the token for its remaining lifetime.
func (s *Service) Logout(ctx context.Context, token string) error {
	parsed, err := s.parse(token)
	if err != nil {
		return err
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return ErrInvalidToken
	}

	ttl := time.Until(exp.Time)
	if ttl < time.Second {
		ttl = time.Second
	}
	return s.tokens.Set(ctx, blacklistKey(token), 1, ttl)
}

// VerifyToken returns the user id for a valid, non-revoked bearer token.
func (s *Service) VerifyToken(ctx context.Context, token string) (string, error) {
	revoked, err := s.tokens.Exists(ctx, blacklistKey(token))
	if err != nil {
		return "", err
	}
	if revoked {
		return "", ErrInvalidToken
	}

	parsed, err := s.parse(token)
	if err != nil {
		return "", err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrInvalidToken
	}

	// A valid signature is not enough: the account must still exist.
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return "", ErrInvalidToken
	}
	u, err := s.users.GetByID(ctx, oid)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func (s *Service) parse(token string) (*jwt.Token, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return parsed, nil
}

func blacklistKey(token string) string {
	return "blacklist:" + token
}
