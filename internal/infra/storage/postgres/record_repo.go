package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"

	"github.com/kaizen2025/bulkops/internal/core/domain"
	"github.com/kaizen2025/bulkops/internal/infra/storage"
)

// RecordRepo implements storage.RecordRepository using PostgreSQL.
type RecordRepo struct {
	db *DB
}

// NewRecordRepo creates a new PostgreSQL loan record repository.
func NewRecordRepo(db *DB) *RecordRepo {
	return &RecordRepo{db: db}
}

type recordRow struct {
	ID             string         `db:"id"`
	DocumentID     string         `db:"document_id"`
	DocumentTitle  string         `db:"document_title"`
	BorrowerID     string         `db:"borrower_id"`
	BorrowerName   string         `db:"borrower_name"`
	BorrowerEmail  string         `db:"borrower_email"`
	Status         string         `db:"status"`
	LoanDate       time.Time      `db:"loan_date"`
	ReturnDate     time.Time      `db:"return_date"`
	ActualReturn   sql.NullTime   `db:"actual_return"`
	ExtensionCount int            `db:"extension_count"`
	RecallCount    int            `db:"recall_count"`
	History        types.JSONText `db:"history"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

const recordColumns = `
	id, document_id, document_title, borrower_id, borrower_name, borrower_email,
	status, loan_date, return_date, actual_return, extension_count, recall_count,
	history, created_at, updated_at
`

// FetchMany returns the records for the given ids plus the ids that do
// not exist. Missing ids are a validation concern for the caller, not
// an error here.
func (r *RecordRepo) FetchMany(ctx context.Context, ids []string) ([]*domain.LoanRecord, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}

	query := `SELECT ` + recordColumns + ` FROM loan_records WHERE id = ANY($1)`

	var rows []recordRow
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(ids)); err != nil {
		return nil, nil, fmt.Errorf("failed to fetch loan records: %w", err)
	}

	seen := make(map[string]bool, len(rows))
	records := make([]*domain.LoanRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toDomain()
		if err != nil {
			return nil, nil, err
		}
		records = append(records, rec)
		seen[rec.ID] = true
	}

	var missing []string
	for _, id := range ids {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return records, missing, nil
}

// GetByID retrieves a single record.
func (r *RecordRepo) GetByID(ctx context.Context, id string) (*domain.LoanRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM loan_records WHERE id = $1`

	var row recordRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan record: %w", err)
	}
	return row.toDomain()
}

// Persist stores the proposed new state of a record.
func (r *RecordRepo) Persist(ctx context.Context, record *domain.LoanRecord) error {
	history, err := json.Marshal(record.History)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	query := `
		UPDATE loan_records
		SET status = $2, borrower_id = $3, return_date = $4, actual_return = $5,
		    extension_count = $6, recall_count = $7, history = $8, updated_at = NOW()
		WHERE id = $1
	`
	var actualReturn sql.NullTime
	if record.ActualReturn != nil {
		actualReturn = sql.NullTime{Time: *record.ActualReturn, Valid: true}
	}

	res, err := r.db.ExecContext(
		ctx,
		query,
		record.ID,
		string(record.Status),
		record.BorrowerID,
		record.ReturnDate,
		actualReturn,
		record.ExtensionCount,
		record.RecallCount,
		history,
	)
	if err != nil {
		return fmt.Errorf("failed to persist loan record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return storage.ErrRecordNotFound
	}
	return nil
}

func (row recordRow) toDomain() (*domain.LoanRecord, error) {
	var history []domain.HistoryEntry
	if len(row.History) > 0 {
		if err := json.Unmarshal(row.History, &history); err != nil {
			return nil, fmt.Errorf("failed to decode history for record %s: %w", row.ID, err)
		}
	}

	rec := &domain.LoanRecord{
		ID:             row.ID,
		DocumentID:     row.DocumentID,
		DocumentTitle:  row.DocumentTitle,
		BorrowerID:     row.BorrowerID,
		BorrowerName:   row.BorrowerName,
		BorrowerEmail:  row.BorrowerEmail,
		Status:         domain.LoanStatus(row.Status),
		LoanDate:       row.LoanDate,
		ReturnDate:     row.ReturnDate,
		ExtensionCount: row.ExtensionCount,
		RecallCount:    row.RecallCount,
		History:        history,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
	if row.ActualReturn.Valid {
		t := row.ActualReturn.Time
		rec.ActualReturn = &t
	}
	return rec, nil
}
