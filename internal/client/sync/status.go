package sync

import (
	"time"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
)

// State is the engine's coarse activity indicator.
type State string

const (
	// StateIdle means no cycle is running and the last one succeeded.
	StateIdle State = "idle"
	// StateSyncing means a push/pull cycle is in flight.
	StateSyncing State = "syncing"
	// StateError means the last cycle failed; the engine keeps retrying
	// with backoff.
	StateError State = "error"
)

// Snapshot is a read-only view of the engine for status displays. It is a
// value copy; mutating it has no effect on the engine.
type Snapshot struct {
	State        State             `json:"state"`
	PendingCount int               `json:"pendingCount"`
	LastSyncedAt time.Time         `json:"lastSyncedAt"`
	LastError    string            `json:"lastError,omitempty"`
	Abandoned    []*model.Mutation `json:"abandoned,omitempty"`
}
