// Package sync implements the offline-first synchronization engine: the
// push and pull pipelines, conflict resolution, tenant isolation and the
// session lifecycle around them.
package sync

// Context identifies the active session. Every component receives one
// explicitly; storage keys and queue scopes derive from it, so there is no
// ambient tenant state anywhere in the engine.
type Context struct {
	TenantID string
	DeviceID string
	UserID   string
}

// Holder names this session for advisory lock leases, e.g. "u1@dev-1".
func (c Context) Holder() string {
	return c.UserID + "@" + c.DeviceID
}
