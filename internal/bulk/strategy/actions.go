package strategy

import (
	"fmt"
	"strconv"

	"github.com/kaizen2025/bulkops/internal/core/domain"
)

// -----------------------------------------------------------------------------
// Extend
// -----------------------------------------------------------------------------

type extendStrategy struct{}

func (extendStrategy) Kind() domain.ActionKind { return domain.ActionExtend }

func (extendStrategy) Apply(record *domain.LoanRecord, ac ApplyContext) (*Outcome, error) {
	params, ok := ac.Params.(domain.ExtendParams)
	if !ok {
		return nil, fmt.Errorf("extend: unexpected parameter type %T", ac.Params)
	}

	updated := record.Clone()
	oldReturn := record.ReturnDate
	updated.ReturnDate = record.ReturnDate.AddDate(0, 0, params.Days)
	updated.Status = domain.LoanStatusActive
	updated.ExtensionCount = record.ExtensionCount + 1
	updated.UpdatedAt = ac.Now

	updated.History = append(updated.History, domain.HistoryEntry{
		OperationID: ac.OperationID,
		Action:      domain.ActionExtend,
		Timestamp:   ac.Now,
		ActorID:     ac.Actor.ID,
		OldValues: map[string]string{
			domain.FieldStatus:         string(record.Status),
			domain.FieldReturnDate:     oldReturn.Format(dateFormat),
			domain.FieldExtensionCount: strconv.Itoa(record.ExtensionCount),
		},
		NewValues: map[string]string{
			domain.FieldStatus:         string(updated.Status),
			domain.FieldReturnDate:     updated.ReturnDate.Format(dateFormat),
			domain.FieldExtensionCount: strconv.Itoa(updated.ExtensionCount),
		},
		Note: fmt.Sprintf("extended by %d days", params.Days),
	})

	return &Outcome{Updated: updated}, nil
}

// -----------------------------------------------------------------------------
// Recall
// -----------------------------------------------------------------------------

type recallStrategy struct{}

func (recallStrategy) Kind() domain.ActionKind { return domain.ActionRecall }

func (recallStrategy) Apply(record *domain.LoanRecord, ac ApplyContext) (*Outcome, error) {
	params, ok := ac.Params.(domain.RecallParams)
	if !ok {
		return nil, fmt.Errorf("recall: unexpected parameter type %T", ac.Params)
	}

	message := params.Message
	if message == "" {
		message = "Please return the borrowed document as soon as possible."
	}

	updated := record.Clone()
	updated.RecallCount = record.RecallCount + 1
	updated.UpdatedAt = ac.Now

	updated.History = append(updated.History, domain.HistoryEntry{
		OperationID: ac.OperationID,
		Action:      domain.ActionRecall,
		Timestamp:   ac.Now,
		ActorID:     ac.Actor.ID,
		OldValues: map[string]string{
			domain.FieldRecallCount: strconv.Itoa(record.RecallCount),
		},
		NewValues: map[string]string{
			domain.FieldRecallCount: strconv.Itoa(updated.RecallCount),
		},
		Note: message,
	})

	recipient := record.BorrowerEmail
	if recipient == "" {
		recipient = record.BorrowerID
	}

	return &Outcome{
		Updated: updated,
		Recall: &RecallNotice{
			Recipient: recipient,
			Subject:   fmt.Sprintf("Return reminder - %s", record.DocumentTitle),
			Body:      message,
		},
	}, nil
}

// -----------------------------------------------------------------------------
// Transfer
// -----------------------------------------------------------------------------

type transferStrategy struct{}

func (transferStrategy) Kind() domain.ActionKind { return domain.ActionTransfer }

func (transferStrategy) Apply(record *domain.LoanRecord, ac ApplyContext) (*Outcome, error) {
	params, ok := ac.Params.(domain.TransferParams)
	if !ok {
		return nil, fmt.Errorf("transfer: unexpected parameter type %T", ac.Params)
	}

	updated := record.Clone()
	updated.BorrowerID = params.TargetUserID
	updated.UpdatedAt = ac.Now

	updated.History = append(updated.History, domain.HistoryEntry{
		OperationID: ac.OperationID,
		Action:      domain.ActionTransfer,
		Timestamp:   ac.Now,
		ActorID:     ac.Actor.ID,
		OldValues: map[string]string{
			domain.FieldBorrowerID: record.BorrowerID,
		},
		NewValues: map[string]string{
			domain.FieldBorrowerID: params.TargetUserID,
		},
		Note: params.Reason,
	})

	return &Outcome{Updated: updated}, nil
}

// -----------------------------------------------------------------------------
// StatusChange
// -----------------------------------------------------------------------------

type statusChangeStrategy struct{}

func (statusChangeStrategy) Kind() domain.ActionKind { return domain.ActionStatusChange }

func (statusChangeStrategy) Apply(record *domain.LoanRecord, ac ApplyContext) (*Outcome, error) {
	params, ok := ac.Params.(domain.StatusChangeParams)
	if !ok {
		return nil, fmt.Errorf("status change: unexpected parameter type %T", ac.Params)
	}

	updated := record.Clone()
	updated.Status = params.NewStatus
	updated.UpdatedAt = ac.Now

	updated.History = append(updated.History, domain.HistoryEntry{
		OperationID: ac.OperationID,
		Action:      domain.ActionStatusChange,
		Timestamp:   ac.Now,
		ActorID:     ac.Actor.ID,
		OldValues: map[string]string{
			domain.FieldStatus: string(record.Status),
		},
		NewValues: map[string]string{
			domain.FieldStatus: string(params.NewStatus),
		},
		Note: params.Reason,
	})

	return &Outcome{Updated: updated}, nil
}

// -----------------------------------------------------------------------------
// Export
// -----------------------------------------------------------------------------

type exportStrategy struct{}

func (exportStrategy) Kind() domain.ActionKind { return domain.ActionExport }

// Apply stamps export provenance only; the record itself is unchanged
// and row generation happens in the export sink.
func (exportStrategy) Apply(record *domain.LoanRecord, ac ApplyContext) (*Outcome, error) {
	params, ok := ac.Params.(domain.ExportParams)
	if !ok {
		return nil, fmt.Errorf("export: unexpected parameter type %T", ac.Params)
	}

	updated := record.Clone()
	updated.History = append(updated.History, domain.HistoryEntry{
		OperationID: ac.OperationID,
		Action:      domain.ActionExport,
		Timestamp:   ac.Now,
		ActorID:     ac.Actor.ID,
		Note:        fmt.Sprintf("exported as %s", params.Format),
	})

	return &Outcome{Updated: updated}, nil
}

// -----------------------------------------------------------------------------
// Delete
// -----------------------------------------------------------------------------

type deleteStrategy struct{}

func (deleteStrategy) Kind() domain.ActionKind { return domain.ActionDelete }

// Apply marks the record deleted. Deletion is a status transition; the
// record is never physically erased.
func (deleteStrategy) Apply(record *domain.LoanRecord, ac ApplyContext) (*Outcome, error) {
	params, ok := ac.Params.(domain.DeleteParams)
	if !ok {
		return nil, fmt.Errorf("delete: unexpected parameter type %T", ac.Params)
	}

	reason := params.Reason
	if reason == "" {
		reason = "bulk deletion"
	}

	updated := record.Clone()
	updated.Status = domain.LoanStatusDeleted
	updated.UpdatedAt = ac.Now

	updated.History = append(updated.History, domain.HistoryEntry{
		OperationID: ac.OperationID,
		Action:      domain.ActionDelete,
		Timestamp:   ac.Now,
		ActorID:     ac.Actor.ID,
		OldValues: map[string]string{
			domain.FieldStatus: string(record.Status),
		},
		NewValues: map[string]string{
			domain.FieldStatus: string(domain.LoanStatusDeleted),
		},
		Note: reason,
	})

	return &Outcome{Updated: updated}, nil
}

const dateFormat = "2006-01-02"
