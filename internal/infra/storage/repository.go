package storage

import (
	"context"
	"errors"
	"time"

	"github.com/kaizen2025/bulkops/internal/core/domain"
)

var (
	// ErrRecordNotFound is returned when a loan record doesn't exist.
	ErrRecordNotFound = errors.New("loan record not found")

	// ErrAuditEntryNotFound is returned when an audit entry doesn't exist.
	ErrAuditEntryNotFound = errors.New("audit entry not found")
)

// RecordRepository is the external record store. The engine never
// invents records; it fetches copies and persists proposed new states.
type RecordRepository interface {
	// FetchMany retrieves the records for the given ids. Missing ids are
	// reported in the second return value, not as an error.
	FetchMany(ctx context.Context, ids []string) ([]*domain.LoanRecord, []string, error)

	// GetByID retrieves a single record.
	GetByID(ctx context.Context, id string) (*domain.LoanRecord, error)

	// Persist stores the proposed new state of a record.
	Persist(ctx context.Context, record *domain.LoanRecord) error
}

// AuditRepository stores the append-only audit log. Implementations
// enforce the rotation cap on append (oldest entries dropped first).
type AuditRepository interface {
	// Append adds an entry, rotating out the oldest beyond the cap.
	Append(ctx context.Context, entry *domain.AuditEntry) error

	// GetByID retrieves a single entry.
	GetByID(ctx context.Context, id string) (*domain.AuditEntry, error)

	// List retrieves entries matching the filter, newest first.
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// DeleteOlderThan removes entries before the cutoff, returning how
	// many were dropped.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// PreferenceStore holds per-operator defaults (preferred export format,
// confirmation behavior). Passed into the engine explicitly; no ambient
// globals.
type PreferenceStore interface {
	Get(ctx context.Context, actorID, key string) (string, error)
	Set(ctx context.Context, actorID, key, value string) error
}

// Preference keys the engine recognises.
const (
	PrefExportFormat    = "export_format"
	PrefConfirmBehavior = "confirm_bulk_actions"
)
