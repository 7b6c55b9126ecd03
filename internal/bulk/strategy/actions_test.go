package strategy

import (
	"testing"
	"time"

	"github.com/kaizen2025/bulkops/internal/core/domain"
)

func loan() *domain.LoanRecord {
	return &domain.LoanRecord{
		ID:            "l1",
		DocumentTitle: "Compressor manual",
		BorrowerID:    "user-1",
		BorrowerEmail: "user1@example.com",
		Status:        domain.LoanStatusOverdue,
		ReturnDate:    time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func applyCtx(params domain.ActionParameters) ApplyContext {
	return ApplyContext{
		OperationID: "op-1",
		Actor:       domain.Actor{ID: "admin-1", Role: domain.RoleAdmin},
		Params:      params,
		Now:         time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC),
	}
}

func TestExtend_Apply(t *testing.T) {
	s, _ := For(domain.ActionExtend)
	rec := loan()

	outcome, err := s.Apply(rec, applyCtx(domain.ExtendParams{Days: 14}))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	updated := outcome.Updated
	want := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
	if !updated.ReturnDate.Equal(want) {
		t.Errorf("expected return date %s, got %s", want, updated.ReturnDate)
	}
	if updated.Status != domain.LoanStatusActive {
		t.Errorf("extension must reactivate the loan, got %s", updated.Status)
	}
	if updated.ExtensionCount != 1 {
		t.Errorf("expected extension count 1, got %d", updated.ExtensionCount)
	}

	// The input record is never mutated.
	if rec.ExtensionCount != 0 || rec.Status != domain.LoanStatusOverdue {
		t.Error("Apply mutated the input record")
	}

	entry := updated.LastHistoryFor("op-1")
	if entry == nil {
		t.Fatal("expected a history entry for the operation")
	}
	if entry.OldValues[domain.FieldReturnDate] != "2026-08-01" {
		t.Errorf("history must capture the old return date, got %q", entry.OldValues[domain.FieldReturnDate])
	}
	if entry.NewValues[domain.FieldReturnDate] != "2026-08-15" {
		t.Errorf("history must capture the new return date, got %q", entry.NewValues[domain.FieldReturnDate])
	}
}

func TestRecall_Apply(t *testing.T) {
	s, _ := For(domain.ActionRecall)

	outcome, err := s.Apply(loan(), applyCtx(domain.RecallParams{}))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if outcome.Updated.RecallCount != 1 {
		t.Errorf("expected recall count 1, got %d", outcome.Updated.RecallCount)
	}
	if outcome.Recall == nil {
		t.Fatal("recall must request a notice")
	}
	if outcome.Recall.Recipient != "user1@example.com" {
		t.Errorf("unexpected recipient %q", outcome.Recall.Recipient)
	}
	if outcome.Recall.Body == "" {
		t.Error("empty message must fall back to the default reminder")
	}
}

func TestRecall_RecipientFallsBackToBorrowerID(t *testing.T) {
	s, _ := For(domain.ActionRecall)
	rec := loan()
	rec.BorrowerEmail = ""

	outcome, err := s.Apply(rec, applyCtx(domain.RecallParams{}))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if outcome.Recall.Recipient != "user-1" {
		t.Errorf("expected borrower id fallback, got %q", outcome.Recall.Recipient)
	}
}

func TestTransfer_Apply(t *testing.T) {
	s, _ := For(domain.ActionTransfer)

	outcome, err := s.Apply(loan(), applyCtx(domain.TransferParams{TargetUserID: "user-2", Reason: "team change"}))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if outcome.Updated.BorrowerID != "user-2" {
		t.Errorf("expected borrower user-2, got %s", outcome.Updated.BorrowerID)
	}
	entry := outcome.Updated.LastHistoryFor("op-1")
	if entry == nil || entry.OldValues[domain.FieldBorrowerID] != "user-1" {
		t.Error("history must capture the previous borrower")
	}
}

func TestDelete_Apply(t *testing.T) {
	s, _ := For(domain.ActionDelete)
	rec := loan()
	rec.Status = domain.LoanStatusReturned

	outcome, err := s.Apply(rec, applyCtx(domain.DeleteParams{Confirmation: "DELETE"}))
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if outcome.Updated.Status != domain.LoanStatusDeleted {
		t.Errorf("expected deleted status, got %s", outcome.Updated.Status)
	}
}

func TestApply_WrongParamsType(t *testing.T) {
	s, _ := For(domain.ActionExtend)
	if _, err := s.Apply(loan(), applyCtx(domain.RecallParams{})); err == nil {
		t.Error("expected parameter type error")
	}
}

func TestFor_CoversAllKinds(t *testing.T) {
	for _, kind := range domain.Kinds() {
		if _, ok := For(kind); !ok {
			t.Errorf("no strategy for %s", kind)
		}
	}
}
