package cache

import (
	"context"
	"errors"
	"time"
)

// Token is a gateway access token and the instant it stops being valid.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenCache shares gateway tokens between processes.
type TokenCache interface {
	Get(ctx context.Context, key string) (*Token, error)
	Set(ctx context.Context, key string, token *Token) error
	Delete(ctx context.Context, key string) error
}

var ErrCacheMiss = errors.New("cache miss")
