// Package refreshtokens stores single-use refresh tokens. A token is
// deleted on rotation, so a replayed refresh fails.
package refreshtokens

import (
	"context"
	"time"
)

type RefreshToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

type Repository interface {
	Create(ctx context.Context, userID string, token string, validity time.Duration) error
	Find(ctx context.Context, token string) (*RefreshToken, error)
	Delete(ctx context.Context, token string) error
}
