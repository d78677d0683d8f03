// Package transport implements the HTTP client for the cloud authority:
// entity writes, the change feed, edit leases and session management.
package transport

import (
	"context"
	"time"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// Session identifies the logged-in principal as reported by the authority.
// The engine trusts TenantID from here, never from local configuration.
type Session struct {
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId"`
}

// Authority is the client's view of the cloud store. All methods map
// transport failures to common.ErrNetwork and expired-token responses to a
// transparent refresh, so callers only see domain errors.
type Authority interface {
	// Login authenticates with the configured credentials and stores the
	// token pair for subsequent calls.
	Login(ctx context.Context, username, password string) (*Session, error)

	// Write submits one mutation. On a version conflict the returned
	// *ConflictResult carries the authority's current record and the error
	// matches common.ErrVersionConflict. On a held lease the error matches
	// common.ErrLockDenied.
	Write(ctx context.Context, req model.WriteRequest) (*model.WriteResult, *model.ConflictResult, error)

	// ListChangedSince fetches one page of the tenant's change feed.
	ListChangedSince(ctx context.Context, since int64, limit int) (*model.ChangePage, error)

	// AcquireLock requests an advisory edit lease.
	AcquireLock(ctx context.Context, entityType, entityID, holder string, ttl time.Duration) error

	// ReleaseLock releases a lease; a no-op if it already expired.
	ReleaseLock(ctx context.Context, entityType, entityID, holder string) error

	// Ping probes reachability.
	Ping(ctx context.Context) error

	// AccessToken returns the current access token, used by the relay
	// listener to authenticate the websocket dial.
	AccessToken() string
}
