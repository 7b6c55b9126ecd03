package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/kaizen2025/bulkops/internal/core/domain"
	"github.com/kaizen2025/bulkops/internal/infra/storage"
)

// AuditRepo implements storage.AuditRepository using PostgreSQL. The
// rotation cap is enforced after every append.
type AuditRepo struct {
	db         *DB
	maxEntries int
}

// NewAuditRepo creates a new PostgreSQL audit repository.
func NewAuditRepo(db *DB, maxEntries int) *AuditRepo {
	return &AuditRepo{db: db, maxEntries: maxEntries}
}

type auditRow struct {
	ID            string         `db:"id"`
	OperationID   string         `db:"operation_id"`
	Timestamp     time.Time      `db:"created_at"`
	ActorID       string         `db:"actor_id"`
	ActorRole     string         `db:"actor_role"`
	Kind          string         `db:"kind"`
	Parameters    types.JSONText `db:"parameters"`
	RecordIDs     pq.StringArray `db:"record_ids"`
	Successful    int            `db:"successful"`
	Failed        int            `db:"failed"`
	DurationMS    int64          `db:"duration_ms"`
	FailureReason sql.NullString `db:"failure_reason"`
}

// Append adds an entry, then drops the oldest entries beyond the cap.
func (r *AuditRepo) Append(ctx context.Context, entry *domain.AuditEntry) error {
	query := `
		INSERT INTO audit_entries
			(id, operation_id, created_at, actor_id, actor_role, kind, parameters,
			 record_ids, successful, failed, duration_ms, failure_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''))
	`
	params := entry.Parameters
	if params == nil {
		params = json.RawMessage("{}")
	}

	_, err := r.db.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.OperationID,
		entry.Timestamp,
		entry.ActorID,
		string(entry.ActorRole),
		string(entry.Kind),
		[]byte(params),
		pq.Array(entry.RecordIDs),
		entry.Successful,
		entry.Failed,
		entry.Duration.Milliseconds(),
		entry.FailureReason,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	if r.maxEntries > 0 {
		rotate := `
			DELETE FROM audit_entries
			WHERE id IN (
				SELECT id FROM audit_entries
				ORDER BY created_at DESC, id DESC
				OFFSET $1
			)
		`
		if _, err := r.db.ExecContext(ctx, rotate, r.maxEntries); err != nil {
			return fmt.Errorf("failed to rotate audit log: %w", err)
		}
	}
	return nil
}

// GetByID retrieves a single entry.
func (r *AuditRepo) GetByID(ctx context.Context, id string) (*domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE id = $1`

	var row auditRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrAuditEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return row.toDomain(), nil
}

const auditColumns = `
	id, operation_id, created_at, actor_id, actor_role, kind, parameters,
	record_ids, successful, failed, duration_ms, failure_reason
`

// List retrieves entries matching the filter, newest first.
func (r *AuditRepo) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM audit_entries WHERE 1=1`
	var args []any

	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		query += ` AND actor_id = $` + strconv.Itoa(len(args))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		query += ` AND kind = $` + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += ` AND created_at <= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}

	var rows []auditRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	entries := make([]*domain.AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toDomain())
	}
	return entries, nil
}

// Count returns the number of stored entries.
func (r *AuditRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM audit_entries`); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}

// DeleteOlderThan removes entries before the cutoff.
func (r *AuditRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM audit_entries WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune audit entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(affected), nil
}

func (row auditRow) toDomain() *domain.AuditEntry {
	entry := &domain.AuditEntry{
		ID:          row.ID,
		OperationID: row.OperationID,
		Timestamp:   row.Timestamp,
		ActorID:     row.ActorID,
		ActorRole:   domain.Role(row.ActorRole),
		Kind:        domain.ActionKind(row.Kind),
		Parameters:  json.RawMessage(row.Parameters),
		RecordIDs:   row.RecordIDs,
		Successful:  row.Successful,
		Failed:      row.Failed,
		Duration:    time.Duration(row.DurationMS) * time.Millisecond,
	}
	if row.FailureReason.Valid {
		entry.FailureReason = row.FailureReason.String
	}
	return entry
}
