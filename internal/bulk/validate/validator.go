// Package validate decides per-record eligibility for bulk actions.
package validate

import (
	"context"
	"fmt"

	"github.com/kaizen2025/bulkops/internal/core/domain"
)

// ReservationChecker is the external collaborator consulted when an
// extension would collide with existing reservations. The engine calls
// out; it does not reimplement reservation logic.
type ReservationChecker interface {
	// ConflictsForExtension returns human-readable conflict reasons for
	// the recomputed return date, or none.
	ConflictsForExtension(ctx context.Context, record *domain.LoanRecord, days int) ([]string, error)
}

// Validator applies the per-kind eligibility rules. It is stateless
// apart from its collaborators; the same input always yields the same
// outcome.
type Validator struct {
	reservations ReservationChecker
}

// New creates a validator. The reservation checker may be nil, which
// disables conflict checking.
func New(reservations ReservationChecker) *Validator {
	return &Validator{reservations: reservations}
}

// ValidateRecord returns every eligibility error for one record. An
// empty slice means the record is eligible.
func (v *Validator) ValidateRecord(
	ctx context.Context,
	kind domain.ActionKind,
	record *domain.LoanRecord,
	params domain.ActionParameters,
) []string {
	var errs []string

	switch kind {
	case domain.ActionExtend:
		if record.Status == domain.LoanStatusReturned || record.Status == domain.LoanStatusCancelled {
			errs = append(errs, fmt.Sprintf("loan %s cannot be extended (status %s)", record.ID, record.Status))
		}
		p, ok := params.(domain.ExtendParams)
		if !ok {
			errs = append(errs, "extend requires extension parameters")
			break
		}
		if p.Days > domain.MaxExtendDays {
			errs = append(errs, fmt.Sprintf("extension period too long (max %d days)", domain.MaxExtendDays))
		}
		if v.reservations != nil {
			conflicts, err := v.reservations.ConflictsForExtension(ctx, record, p.Days)
			if err != nil {
				errs = append(errs, fmt.Sprintf("conflict check failed: %v", err))
			} else {
				errs = append(errs, conflicts...)
			}
		}

	case domain.ActionRecall:
		if record.Status != domain.LoanStatusActive && record.Status != domain.LoanStatusOverdue {
			errs = append(errs, fmt.Sprintf("loan %s cannot be recalled (status %s)", record.ID, record.Status))
		}

	case domain.ActionTransfer:
		if record.Status == domain.LoanStatusReturned || record.Status == domain.LoanStatusCancelled {
			errs = append(errs, fmt.Sprintf("loan %s cannot be transferred (status %s)", record.ID, record.Status))
		}
		if p, ok := params.(domain.TransferParams); ok && p.TargetUserID == record.BorrowerID {
			errs = append(errs, "cannot transfer a loan to its current borrower")
		}

	case domain.ActionStatusChange:
		if record.Status == domain.LoanStatusCancelled {
			errs = append(errs, fmt.Sprintf("status of loan %s cannot be changed (cancelled)", record.ID))
		}
		if p, ok := params.(domain.StatusChangeParams); ok && p.NewStatus == record.Status {
			errs = append(errs, "new status is identical to the current status")
		}

	case domain.ActionExport:
		// Always eligible.

	case domain.ActionDelete:
		if record.Status != domain.LoanStatusReturned && record.Status != domain.LoanStatusCancelled {
			errs = append(errs, fmt.Sprintf("loan %s is not eligible for deletion (status %s)", record.ID, record.Status))
		}

	default:
		errs = append(errs, fmt.Sprintf("unknown action kind %q", kind))
	}

	return errs
}

// ValidateAll evaluates every record, never stopping at the first
// failure, so the caller receives the complete failure set.
func (v *Validator) ValidateAll(
	ctx context.Context,
	kind domain.ActionKind,
	records []*domain.LoanRecord,
	params domain.ActionParameters,
) []domain.RecordFailure {
	var failures []domain.RecordFailure
	for _, record := range records {
		if errs := v.ValidateRecord(ctx, kind, record, params); len(errs) > 0 {
			failures = append(failures, domain.RecordFailure{
				RecordID: record.ID,
				Errors:   errs,
			})
		}
	}
	return failures
}
