package httpapi

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/common"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/logging"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/model"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/entities"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/refreshtokens"
	"github.com/rafikhanmanyar-star/pbookspro-sync/internal/server/users"
)

func testLogger() logging.Logger {
	return logging.NewJSONLogger(io.Discard)
}

type memUserRepo struct {
	mu     sync.Mutex
	nextID int
	byName map[string]*users.User
	byID   map[string]*users.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byName: map[string]*users.User{}, byID: map[string]*users.User{}}
}

func (r *memUserRepo) Create(_ context.Context, u *users.User) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[u.Username]; ok {
		return nil, fmt.Errorf("username taken")
	}
	r.nextID++
	stored := *u
	stored.ID = fmt.Sprintf("u-%d", r.nextID)
	stored.CreatedAt = time.Now()
	r.byName[stored.Username] = &stored
	r.byID[stored.ID] = &stored
	return &stored, nil
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byName[username]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*users.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return u, nil
}

type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*refreshtokens.RefreshToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: map[string]*refreshtokens.RefreshToken{}}
}

func (r *memTokenRepo) Create(_ context.Context, userID, token string, validity time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = &refreshtokens.RefreshToken{
		Token:     token,
		UserID:    userID,
		ExpiresAt: time.Now().Add(validity),
	}
	return nil
}

func (r *memTokenRepo) Find(_ context.Context, token string) (*refreshtokens.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.tokens[token]
	if !ok {
		return nil, common.ErrNotFound
	}
	return rt, nil
}

func (r *memTokenRepo) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, token)
	return nil
}

type memEntityRepo struct {
	mu        sync.Mutex
	records   map[string]*model.EntityRecord
	idemKeys  map[string]string
	conflicts []*model.ConflictLogEntry
	nextSeq   int64
}

func newMemEntityRepo() *memEntityRepo {
	return &memEntityRepo{records: map[string]*model.EntityRecord{}, idemKeys: map[string]string{}}
}

func entityKey(tenantID, entityType, entityID string) string {
	return tenantID + "/" + entityType + "/" + entityID
}

func (r *memEntityRepo) Get(_ context.Context, tenantID, entityType, entityID string) (*model.EntityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[entityKey(tenantID, entityType, entityID)]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memEntityRepo) Write(_ context.Context, w *entities.Write) (*model.EntityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := entityKey(w.TenantID, w.EntityType, w.EntityID)

	if prior, ok := r.idemKeys[w.TenantID+"/"+w.IdempotencyKey]; ok {
		rec := r.records[prior]
		cp := *rec
		return &cp, nil
	}

	current, exists := r.records[key]
	switch w.Op {
	case model.OpCreate:
		if exists {
			cp := *current
			return &cp, common.ErrVersionConflict
		}
		r.nextSeq++
		rec := &model.EntityRecord{
			TenantID:   w.TenantID,
			EntityType: w.EntityType,
			EntityID:   w.EntityID,
			Version:    1,
			Payload:    w.Payload,
			UpdatedAt:  time.Now(),
			UpdatedBy:  w.Actor,
			ChangeSeq:  r.nextSeq,
		}
		r.records[key] = rec
		r.idemKeys[w.TenantID+"/"+w.IdempotencyKey] = key
		cp := *rec
		return &cp, nil

	case model.OpUpdate, model.OpDelete:
		if !exists {
			return nil, common.ErrNotFound
		}
		if current.Deleted || current.Version != *w.ExpectedVersion {
			cp := *current
			return &cp, common.ErrVersionConflict
		}
		r.nextSeq++
		current.Version++
		current.ChangeSeq = r.nextSeq
		current.UpdatedAt = time.Now()
		current.UpdatedBy = w.Actor
		if w.Op == model.OpDelete {
			current.Deleted = true
		} else {
			current.Payload = w.Payload
		}
		r.idemKeys[w.TenantID+"/"+w.IdempotencyKey] = key
		cp := *current
		return &cp, nil
	}
	return nil, common.ErrMalformedPayload
}

func (r *memEntityRepo) ListChangedSince(_ context.Context, tenantID string, since int64, limit int) ([]model.EntityRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.EntityRecord
	for seq := since + 1; seq <= r.nextSeq && len(out) < limit; seq++ {
		for _, rec := range r.records {
			if rec.TenantID == tenantID && rec.ChangeSeq == seq {
				out = append(out, *rec)
			}
		}
	}
	return out, nil
}

func (r *memEntityRepo) AppendConflict(_ context.Context, e *model.ConflictLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts = append(r.conflicts, e)
	return nil
}

type memLockRepo struct {
	mu     sync.Mutex
	leases map[string]*model.LockLease
}

func newMemLockRepo() *memLockRepo {
	return &memLockRepo{leases: map[string]*model.LockLease{}}
}

func (r *memLockRepo) Acquire(_ context.Context, lease *model.LockLease) (*model.LockLease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entityKey(lease.TenantID, lease.EntityType, lease.EntityID)
	if cur, ok := r.leases[key]; ok && !cur.Expired(time.Now()) && cur.Holder != lease.Holder {
		cp := *cur
		return &cp, common.ErrLockDenied
	}
	cp := *lease
	r.leases[key] = &cp
	out := cp
	return &out, nil
}

func (r *memLockRepo) Release(_ context.Context, tenantID, entityType, entityID, holder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := entityKey(tenantID, entityType, entityID)
	if cur, ok := r.leases[key]; ok && cur.Holder == holder {
		delete(r.leases, key)
	}
	return nil
}

func (r *memLockRepo) Get(_ context.Context, tenantID, entityType, entityID string) (*model.LockLease, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.leases[entityKey(tenantID, entityType, entityID)]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *cur
	return &cp, nil
}

type memRelay struct {
	mu   sync.Mutex
	subs map[string][]chan model.RelayEvent
}

func newMemRelay() *memRelay {
	return &memRelay{subs: map[string][]chan model.RelayEvent{}}
}

func (m *memRelay) Publish(_ context.Context, ev model.RelayEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs[ev.TenantID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (m *memRelay) Subscribe(tenantID string) (<-chan model.RelayEvent, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan model.RelayEvent, 16)
	m.subs[tenantID] = append(m.subs[tenantID], ch)
	return ch, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		chans := m.subs[tenantID]
		for i, c := range chans {
			if c == ch {
				m.subs[tenantID] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
	}
}
