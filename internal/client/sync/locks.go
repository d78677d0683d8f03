package sync

import gosync "sync"

// entityLocks serializes local-store writes per entity id, so a pull-applied
// version and a push-acknowledgment update never race on the same row. This
// is distinct from the remote lease coordinator: it guards the local SQLite
// rows only.
type entityLocks struct {
	mu    gosync.Mutex
	locks map[string]*gosync.Mutex
}

func newEntityLocks() *entityLocks {
	return &entityLocks{locks: make(map[string]*gosync.Mutex)}
}

// Lock acquires the write lock for one entity and returns its unlock func.
func (l *entityLocks) Lock(entityType, entityID string) func() {
	key := entityType + "/" + entityID

	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &gosync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
