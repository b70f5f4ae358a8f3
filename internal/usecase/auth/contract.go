package auth

import (
	"context"

	"github.com/kailas-cloud/bookdex/internal/domain"
)

// Users defines the storage contract for accounts.
type Users interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, id string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, id string, fn func(u *domain.User) error) (*domain.User, error)
}

// TokenPair is an access token plus its refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
