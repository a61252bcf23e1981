package admission

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/betlink/hub/internal/domain"
	"github.com/betlink/hub/internal/repository"
)

type fakeKeys struct {
	mu      sync.Mutex
	byHash  map[string]*domain.APIKey
	lookups int
	touched []uuid.UUID
}

func newFakeKeys() *fakeKeys {
	return &fakeKeys{byHash: map[string]*domain.APIKey{}}
}

func (f *fakeKeys) add(plaintext string, key *domain.APIKey) {
	f.byHash[HashKey(plaintext)] = key
}

func (f *fakeKeys) Insert(_ context.Context, _ repository.DBTX, k *domain.APIKey) (*domain.APIKey, error) {
	return k, nil
}

func (f *fakeKeys) FindByHash(_ context.Context, _ repository.DBTX, hash string) (*domain.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if k, ok := f.byHash[hash]; ok {
		cp := *k
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeKeys) FindByID(_ context.Context, _ repository.DBTX, id uuid.UUID) (*domain.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range f.byHash {
		if k.ID == id {
			cp := *k
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeKeys) ListByPartner(context.Context, repository.DBTX, uuid.UUID) ([]domain.APIKey, error) {
	return nil, nil
}

func (f *fakeKeys) Deactivate(context.Context, repository.DBTX, uuid.UUID, uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeKeys) TouchLastUsed(_ context.Context, _ repository.DBTX, id uuid.UUID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched = append(f.touched, id)
	return nil
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string][]byte{}}
}

func (f *fakeCache) Get(_ context.Context, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.entries[key]
	return v, ok
}

func (f *fakeCache) SetWithTags(_ context.Context, key string, value []byte, _ []string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = value
}

// syncTasks runs submitted work inline so tests observe its effects.
type syncTasks struct {
	mu    sync.Mutex
	names []string
}

func (s *syncTasks) Submit(name string, fn func(context.Context) error) bool {
	s.mu.Lock()
	s.names = append(s.names, name)
	s.mu.Unlock()
	_ = fn(context.Background())
	return true
}

type fakeCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	blocks  map[string]time.Duration
	failing bool
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, blocks: map[string]time.Duration{}}
}

func (f *fakeCounter) IncrWindow(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return 0, context.DeadlineExceeded
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeCounter) SetBlock(_ context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocks[key] = ttl
	return nil
}

func (f *fakeCounter) BlockTTL(_ context.Context, key string) (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocks[key], nil
}

type fakeIPs struct {
	entries map[uuid.UUID][]domain.PartnerIP
}

func (f *fakeIPs) Insert(_ context.Context, _ repository.DBTX, e *domain.PartnerIP) (*domain.PartnerIP, error) {
	return e, nil
}

func (f *fakeIPs) ListByPartner(_ context.Context, _ repository.DBTX, partnerID uuid.UUID) ([]domain.PartnerIP, error) {
	return f.entries[partnerID], nil
}

func (f *fakeIPs) Delete(context.Context, repository.DBTX, uuid.UUID, uuid.UUID) (bool, error) {
	return false, nil
}

type fakeAudits struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func (f *fakeAudits) Insert(_ context.Context, _ repository.DBTX, a *domain.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, a)
	return nil
}

func (f *fakeAudits) List(context.Context, repository.DBTX, repository.Filter, repository.Page, repository.Sort) ([]domain.AuditLog, error) {
	return nil, nil
}
