package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kaizen2025/bulkops/internal/core/domain"
	"github.com/kaizen2025/bulkops/internal/infra/storage"
)

// MemoryStorage backs the repositories with process-local maps. Used in
// tests and in DB-less runs.
type MemoryStorage struct {
	records map[string]*domain.LoanRecord
	audit   []*domain.AuditEntry
	prefs   map[string]string
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*domain.LoanRecord),
		prefs:   make(map[string]string),
	}
}

// -----------------------------------------------------------------------------
// Record Repository
// -----------------------------------------------------------------------------

type RecordRepo struct {
	store *MemoryStorage
}

func NewRecordRepo(store *MemoryStorage) *RecordRepo {
	return &RecordRepo{store: store}
}

// Seed loads records directly, bypassing history bookkeeping.
func (r *RecordRepo) Seed(records ...*domain.LoanRecord) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, rec := range records {
		r.store.records[rec.ID] = rec.Clone()
	}
}

func (r *RecordRepo) FetchMany(ctx context.Context, ids []string) ([]*domain.LoanRecord, []string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var (
		found   []*domain.LoanRecord
		missing []string
	)
	for _, id := range ids {
		if rec, ok := r.store.records[id]; ok {
			found = append(found, rec.Clone())
		} else {
			missing = append(missing, id)
		}
	}
	return found, missing, nil
}

func (r *RecordRepo) GetByID(ctx context.Context, id string) (*domain.LoanRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	rec, ok := r.store.records[id]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

func (r *RecordRepo) Persist(ctx context.Context, record *domain.LoanRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.records[record.ID]; !ok {
		return storage.ErrRecordNotFound
	}
	r.store.records[record.ID] = record.Clone()
	return nil
}

// -----------------------------------------------------------------------------
// Audit Repository
// -----------------------------------------------------------------------------

type AuditRepo struct {
	store      *MemoryStorage
	maxEntries int
}

func NewAuditRepo(store *MemoryStorage, maxEntries int) *AuditRepo {
	return &AuditRepo{store: store, maxEntries: maxEntries}
}

func (r *AuditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.audit = append(r.store.audit, entry)
	if r.maxEntries > 0 && len(r.store.audit) > r.maxEntries {
		// Drop oldest first.
		drop := len(r.store.audit) - r.maxEntries
		r.store.audit = append([]*domain.AuditEntry(nil), r.store.audit[drop:]...)
	}
	return nil
}

func (r *AuditRepo) GetByID(ctx context.Context, id string) (*domain.AuditEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, e := range r.store.audit {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, storage.ErrAuditEntryNotFound
}

func (r *AuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.AuditEntry
	for _, e := range r.store.audit {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *AuditRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.audit), nil
}

func (r *AuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var kept []*domain.AuditEntry
	for _, e := range r.store.audit {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	dropped := len(r.store.audit) - len(kept)
	r.store.audit = kept
	return dropped, nil
}

// -----------------------------------------------------------------------------
// Preference Store
// -----------------------------------------------------------------------------

type PreferenceRepo struct {
	store *MemoryStorage
}

func NewPreferenceRepo(store *MemoryStorage) *PreferenceRepo {
	return &PreferenceRepo{store: store}
}

func (r *PreferenceRepo) Get(ctx context.Context, actorID, key string) (string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return r.store.prefs[actorID+":"+key], nil
}

func (r *PreferenceRepo) Set(ctx context.Context, actorID, key, value string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.prefs[actorID+":"+key] = value
	return nil
}
