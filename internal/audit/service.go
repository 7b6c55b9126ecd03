// Package audit records the immutable trail of bulk operations.
package audit

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kaizen2025/bulkops/internal/core/domain"
	"github.com/kaizen2025/bulkops/internal/infra/storage"
	"github.com/kaizen2025/bulkops/internal/metrics"
)

// DefaultMaxEntries caps the audit log; the oldest entries rotate out.
const DefaultMaxEntries = 1000

// Service appends audit entries and notifies subscribers of changes.
// Appends are serialized: the log is the only process-wide mutable
// state shared between operations.
type Service struct {
	repo storage.AuditRepository

	mu   sync.Mutex
	subs []func(domain.AuditEntry)
}

// NewService creates an audit service over the given repository.
func NewService(repo storage.AuditRepository) *Service {
	return &Service{repo: repo}
}

// Record appends one entry for a completed or failed top-level
// operation and returns its id. Writing is best-effort: a storage
// failure is logged, never propagated into the caller's success path.
func (s *Service) Record(ctx context.Context, entry *domain.AuditEntry) string {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Append(ctx, entry); err != nil {
		slog.Error("Failed to append audit entry",
			"operation", entry.OperationID, "kind", entry.Kind, "error", err)
		return entry.ID
	}

	if count, err := s.repo.Count(ctx); err == nil {
		metrics.AuditLogSize.Set(float64(count))
	}

	for _, fn := range s.subs {
		fn(*entry)
	}
	return entry.ID
}

// Subscribe registers a change listener. Listeners run synchronously on
// the appending goroutine and must be fast.
func (s *Service) Subscribe(fn func(domain.AuditEntry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Get retrieves one entry by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.AuditEntry, error) {
	return s.repo.GetByID(ctx, id)
}

// History retrieves entries matching the filter, newest first.
func (s *Service) History(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	return s.repo.List(ctx, filter)
}

// Stats summarizes the stored history for the dashboard.
type Stats struct {
	TotalOperations  int                       `json:"total_operations"`
	TotalSuccessful  int                       `json:"total_successful"`
	TotalFailed      int                       `json:"total_failed"`
	OperationsByKind map[domain.ActionKind]int `json:"operations_by_kind"`
}

// Statistics aggregates the current audit history.
func (s *Service) Statistics(ctx context.Context) (*Stats, error) {
	entries, err := s.repo.List(ctx, domain.AuditFilter{})
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		OperationsByKind: make(map[domain.ActionKind]int),
	}
	for _, e := range entries {
		stats.TotalOperations++
		stats.TotalSuccessful += e.Successful
		stats.TotalFailed += e.Failed
		stats.OperationsByKind[e.Kind]++
	}
	return stats, nil
}
