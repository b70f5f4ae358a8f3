package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/kailas-cloud/bookdex/internal/domain"
)

const minPasswordLen = 8

// Config holds the token signing settings.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Service issues and verifies credentials. Passwords are stored as
// bcrypt hashes; sessions are HS256 access/refresh JWT pairs, with
// the current refresh token persisted on the user so a re-issued pair
// revokes the previous one.
type Service struct {
	users Users
	cfg   Config
	now   func() time.Time
}

// New creates an auth service.
func New(users Users, cfg Config) *Service {
	return &Service{users: users, cfg: cfg, now: time.Now}
}

// SignUp registers a new account and returns its first token pair. A
// taken email yields domain.ErrAlreadyExists.
func (s *Service) SignUp(ctx context.Context, email, password string) (TokenPair, error) {
	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return TokenPair{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	u := &domain.User{Email: email, Password: string(hash)}
	if err := s.users.Create(ctx, u); err != nil {
		return TokenPair{}, fmt.Errorf("create user: %w", err)
	}

	return s.issue(ctx, u.ID)
}

// SignIn verifies credentials and returns a fresh token pair. Unknown
// email and wrong password are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, password string) (TokenPair, error) {
	u, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return TokenPair{}, domain.ErrInvalidCredentials
		}
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)); err != nil {
		return TokenPair{}, domain.ErrInvalidCredentials
	}

	return s.issue(ctx, u.ID)
}

// Refresh re-issues a token pair for a valid refresh token. The token
// must both verify and match the one persisted on the user, so a pair
// issued later revokes this one.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	userID, err := s.parse(refreshToken, s.cfg.RefreshSecret)
	if err != nil {
		return TokenPair{}, domain.ErrInvalidToken
	}

	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return TokenPair{}, domain.ErrInvalidToken
	}
	if u.RefreshToken != refreshToken {
		return TokenPair{}, domain.ErrInvalidToken
	}

	return s.issue(ctx, userID)
}

// VerifyAccess checks an access token and returns the user ID.
func (s *Service) VerifyAccess(tokenStr string) (string, error) {
	userID, err := s.parse(tokenStr, s.cfg.AccessSecret)
	if err != nil {
		return "", domain.ErrInvalidToken
	}
	return userID, nil
}

// issue signs a new pair and persists the refresh token on the user.
func (s *Service) issue(ctx context.Context, userID string) (TokenPair, error) {
	access, err := s.sign(userID, s.cfg.AccessSecret, s.cfg.AccessTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.sign(userID, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	if _, err := s.users.Update(ctx, userID, func(u *domain.User) error {
		u.RefreshToken = refresh
		return nil
	}); err != nil {
		return TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) sign(userID, secret string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func (s *Service) parse(tokenStr, secret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func validateCredentials(email, password string) error {
	if email == "" || !strings.Contains(email, "@") {
		return fmt.Errorf("valid email is required: %w", domain.ErrValidation)
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters: %w", minPasswordLen, domain.ErrValidation)
	}
	return nil
}
