package assessment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepo is the storage fallback used when no database is configured
// and in tests. Behavior mirrors the postgres repository, including list
// ordering by priority then recency.
type memoryRepo struct {
	mu        sync.RWMutex
	records   map[uuid.UUID]*Record
	overrides map[uuid.UUID][]*Override
}

func NewRepoMemory() Repository {
	return &memoryRepo{
		records:   map[uuid.UUID]*Record{},
		overrides: map[uuid.UUID][]*Override{},
	}
}

func (m *memoryRepo) Create(_ context.Context, r *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	cp := *r
	m.records[r.ID] = &cp
	return nil
}

func (m *memoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memoryRepo) List(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	return m.list(func(*Record) bool { return true }, limit, offset)
}

func (m *memoryRepo) ListPendingReview(ctx context.Context, limit, offset int) ([]*Record, int, error) {
	return m.list(func(r *Record) bool { return r.RequiresManualReview }, limit, offset)
}

func (m *memoryRepo) list(keep func(*Record) bool, limit, offset int) ([]*Record, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*Record
	for _, r := range m.records {
		if keep(r) {
			cp := *r
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Priority != all[j].Priority {
			return all[i].Priority < all[j].Priority
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *memoryRepo) AddOverride(_ context.Context, o *Override) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[o.AssessmentID]; !ok {
		return ErrNotFound
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	cp := *o
	m.overrides[o.AssessmentID] = append(m.overrides[o.AssessmentID], &cp)
	return nil
}

func (m *memoryRepo) ListOverrides(_ context.Context, assessmentID uuid.UUID) ([]*Override, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Override
	for _, o := range m.overrides[assessmentID] {
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}
