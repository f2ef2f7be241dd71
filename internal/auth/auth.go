package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/quadchat/quadchat/internal/user"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrTokenExpired    = errors.New("token expired")
	ErrUnknownIdentity = errors.New("unknown identity")
)

const minPasswordLength = 8

type Session struct {
	Token     string
	UserID    user.ID
	Username  string
	ExpiresAt time.Time
}

// Service issues and verifies signed session tokens. It is the identity
// resolver for both the REST handlers and the websocket endpoint: a
// credential string in, a known user out.
type Service struct {
	users    *user.Service
	secret   []byte
	tokenTTL time.Duration
	now      func() time.Time
}

func NewService(users *user.Service, secret string, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		users:    users,
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

func (s *Service) Register(ctx context.Context, username, email, password, displayName string) (user.User, Session, error) {
	if s.users == nil {
		return user.User{}, Session{}, errors.New("user service is required")
	}
	if len(strings.TrimSpace(password)) < minPasswordLength {
		return user.User{}, Session{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return user.User{}, Session{}, err
	}

	created, err := s.users.CreateWithPassword(ctx, username, email, hash, displayName)
	if err != nil {
		return user.User{}, Session{}, err
	}

	session, err := s.issue(created)
	if err != nil {
		return user.User{}, Session{}, err
	}
	return created, session, nil
}

func (s *Service) Login(ctx context.Context, username, password string) (user.User, Session, error) {
	if s.users == nil {
		return user.User{}, Session{}, errors.New("user service is required")
	}
	if strings.TrimSpace(username) == "" || password == "" {
		return user.User{}, Session{}, ErrInvalidInput
	}

	found, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return user.User{}, Session{}, ErrUnauthorized
	}
	if checkPassword(found.PasswordHash, password) != nil {
		return user.User{}, Session{}, ErrUnauthorized
	}

	session, err := s.issue(found)
	if err != nil {
		return user.User{}, Session{}, err
	}
	return found, session, nil
}

// ResolveToken maps a credential string to the user it was issued for.
func (s *Service) ResolveToken(ctx context.Context, token string) (user.User, error) {
	if s.users == nil {
		return user.User{}, errors.New("user service is required")
	}
	if strings.TrimSpace(token) == "" {
		return user.User{}, ErrUnauthorized
	}

	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return user.User{}, ErrTokenExpired
		}
		return user.User{}, ErrUnauthorized
	}
	if !parsed.Valid || claims.Subject == "" {
		return user.User{}, ErrUnauthorized
	}

	found, err := s.users.GetByID(ctx, user.ID(claims.Subject))
	if err != nil {
		return user.User{}, ErrUnknownIdentity
	}
	return found, nil
}

func (s *Service) issue(u user.User) (Session, error) {
	now := s.now()
	expires := now.Add(s.tokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   string(u.ID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, fmt.Errorf("sign token: %w", err)
	}
	return Session{
		Token:     token,
		UserID:    u.ID,
		Username:  u.Username,
		ExpiresAt: expires,
	}, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(hashed, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
}
