package recovery

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kaizen2025/bulkops/internal/bulk/executor"
	"github.com/kaizen2025/bulkops/internal/core/domain"
	"github.com/kaizen2025/bulkops/internal/infra/storage/memory"
)

// =============================================================================
// Mocks
// =============================================================================

// scriptedRunner returns canned results and records the requests it saw.
type scriptedRunner struct {
	mu      sync.Mutex
	results []*domain.BulkActionResult
	calls   []*domain.BulkActionRequest
	options []executor.Options
}

func (r *scriptedRunner) Execute(ctx context.Context, req *domain.BulkActionRequest, opts executor.Options) (*domain.BulkActionResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, req)
	r.options = append(r.options, opts)
	result := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	return result, nil
}

func transferRequest(ids ...string) *domain.BulkActionRequest {
	return &domain.BulkActionRequest{
		Kind:      domain.ActionTransfer,
		RecordIDs: ids,
		Params:    domain.TransferParams{TargetUserID: "user-x"},
		Actor:     domain.Actor{ID: "mgr-1", Role: domain.RoleManager},
	}
}

func failedTransfer(opID string, successful int, failedIDs ...string) *domain.BulkActionResult {
	result := &domain.BulkActionResult{
		OperationID: opID,
		Kind:        domain.ActionTransfer,
		Successful:  successful,
	}
	for _, id := range failedIDs {
		result.Failed++
		result.Errors = append(result.Errors, domain.RecordError{
			RecordID: id,
			Error:    "connection timeout while saving",
		})
	}
	return result
}

// =============================================================================
// Offers
// =============================================================================

func TestRegister_OffersForHighErrorRate(t *testing.T) {
	c := NewCoordinator(&scriptedRunner{}, nil, 0)

	// 3 of 10 succeeded: retryable network errors at 70% error rate.
	result := failedTransfer("op-1", 3, "l1", "l2", "l3", "l4", "l5", "l6", "l7")
	session := c.Register(transferRequest("l1"), result)
	if session == nil {
		t.Fatal("expected a recovery session")
	}

	want := []domain.RecoveryAction{
		domain.RecoveryRetry,
		domain.RecoveryRetryReducedBatch,
		domain.RecoverySkipFailed,
		domain.RecoveryAcceptPartial,
		domain.RecoveryRollback,
	}
	if len(session.Offers) != len(want) {
		t.Fatalf("expected offers %v, got %v", want, session.Offers)
	}
	for i, action := range want {
		if session.Offers[i] != action {
			t.Errorf("offer %d: expected %s, got %s", i, action, session.Offers[i])
		}
	}
}

func TestRegister_ValidationFailuresOfferRetry(t *testing.T) {
	c := NewCoordinator(&scriptedRunner{}, nil, 0)

	// A corrected selection can be resubmitted, so retry stays on the table.
	result := &domain.BulkActionResult{
		OperationID: "op-v",
		Kind:        domain.ActionExtend,
		Failed:      2,
		Errors: []domain.RecordError{
			{RecordID: "l1", Error: "loan l1 cannot be extended (status returned)"},
			{RecordID: "l2", Error: "validation failed: invalid parameters"},
		},
	}
	session := c.Register(transferRequest("l1", "l2"), result)
	if session == nil {
		t.Fatal("expected a recovery session")
	}
	if session.Classification.Category != domain.CategoryValidation {
		t.Fatalf("expected validation category, got %s", session.Classification.Category)
	}

	hasRetry := false
	for _, offer := range session.Offers {
		if offer == domain.RecoveryRetry {
			hasRetry = true
		}
	}
	if !hasRetry {
		t.Errorf("validation failures must offer a retry, got %v", session.Offers)
	}
	if session.Classification.AutoRetry {
		t.Error("validation failures must not be retried automatically")
	}
}

func TestRegister_NoReducedBatchBelowThreshold(t *testing.T) {
	c := NewCoordinator(&scriptedRunner{}, nil, 0)

	// 1 of 10 failed: 10% error rate.
	result := failedTransfer("op-2", 9, "l1")
	session := c.Register(transferRequest("l1"), result)

	for _, offer := range session.Offers {
		if offer == domain.RecoveryRetryReducedBatch {
			t.Error("reduced batch must not be offered below 50% error rate")
		}
	}
}

func TestRegister_FullSuccessYieldsNoSession(t *testing.T) {
	c := NewCoordinator(&scriptedRunner{}, nil, 0)
	if s := c.Register(transferRequest("l1"), &domain.BulkActionResult{Successful: 5}); s != nil {
		t.Error("fully successful operations need no recovery")
	}
}

// =============================================================================
// Apply
// =============================================================================

func TestApply_RetryTargetsFailedRecordsOnly(t *testing.T) {
	runner := &scriptedRunner{results: []*domain.BulkActionResult{
		{OperationID: "op-retry", Kind: domain.ActionTransfer, Successful: 2},
	}}
	c := NewCoordinator(runner, nil, 0)

	result := failedTransfer("op-1", 0, "l3", "l5")
	c.Register(transferRequest("l1", "l2", "l3", "l4", "l5"), result)

	retried, err := c.Apply(context.Background(), "op-1", domain.RecoveryRetry)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if retried.Successful != 2 {
		t.Errorf("expected retry success, got %+v", retried)
	}

	if len(runner.calls) != 1 {
		t.Fatalf("expected 1 execution, got %d", len(runner.calls))
	}
	got := runner.calls[0].RecordIDs
	if len(got) != 2 || got[0] != "l3" || got[1] != "l5" {
		t.Errorf("retry must target the failed records, got %v", got)
	}

	// Session is consumed on a fully successful retry.
	if _, ok := c.Session("op-1"); ok {
		t.Error("session must be closed after retry")
	}
}

func TestApply_ReducedBatchHalvesBatchSize(t *testing.T) {
	runner := &scriptedRunner{results: []*domain.BulkActionResult{
		{OperationID: "op-retry", Kind: domain.ActionTransfer, Successful: 7},
	}}
	c := NewCoordinator(runner, nil, 0)

	result := failedTransfer("op-1", 3, "l1", "l2", "l3", "l4", "l5", "l6", "l7")
	c.Register(transferRequest("l1"), result)

	if _, err := c.Apply(context.Background(), "op-1", domain.RecoveryRetryReducedBatch); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	// Transfer batch size is 3; the reduced retry runs at 1.
	if runner.options[0].BatchSize != 1 {
		t.Errorf("expected batch size override 1, got %d", runner.options[0].BatchSize)
	}
}

func TestApply_UnofferedActionRejected(t *testing.T) {
	c := NewCoordinator(&scriptedRunner{}, nil, 0)

	// Zero successes: rollback is not offered.
	result := failedTransfer("op-1", 0, "l1")
	c.Register(transferRequest("l1"), result)

	if _, err := c.Apply(context.Background(), "op-1", domain.RecoveryRollback); err == nil {
		t.Error("expected rejection of unoffered action")
	}
}

func TestApply_AcceptPartialClosesSession(t *testing.T) {
	c := NewCoordinator(&scriptedRunner{}, nil, 0)

	result := failedTransfer("op-1", 2, "l1")
	c.Register(transferRequest("l1"), result)

	got, err := c.Apply(context.Background(), "op-1", domain.RecoveryAcceptPartial)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got != result {
		t.Error("accepting partial success must return the original result")
	}
	if _, ok := c.Session("op-1"); ok {
		t.Error("session must be closed")
	}
}

func TestApply_UnknownOperation(t *testing.T) {
	c := NewCoordinator(&scriptedRunner{}, nil, 0)
	if _, err := c.Apply(context.Background(), "nope", domain.RecoveryRetry); err == nil {
		t.Error("expected error for unknown operation")
	}
}

// =============================================================================
// Rollback
// =============================================================================

func TestApply_RollbackRestoresOldValues(t *testing.T) {
	store := memory.NewMemoryStorage()
	records := memory.NewRecordRepo(store)
	c := NewCoordinator(&scriptedRunner{}, records, 0)

	// A transferred record carrying the operation's history entry.
	transferred := &domain.LoanRecord{
		ID:         "l1",
		BorrowerID: "user-x",
		Status:     domain.LoanStatusActive,
		ReturnDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		History: []domain.HistoryEntry{{
			OperationID: "op-1",
			Action:      domain.ActionTransfer,
			OldValues:   map[string]string{domain.FieldBorrowerID: "user-1"},
			NewValues:   map[string]string{domain.FieldBorrowerID: "user-x"},
		}},
	}
	records.Seed(transferred)

	result := &domain.BulkActionResult{
		OperationID:    "op-1",
		Kind:           domain.ActionTransfer,
		Successful:     1,
		Failed:         1,
		UpdatedRecords: []*domain.LoanRecord{transferred},
		Errors:         []domain.RecordError{{RecordID: "l2", Error: "connection timeout"}},
	}
	c.Register(transferRequest("l1", "l2"), result)

	if _, err := c.Apply(context.Background(), "op-1", domain.RecoveryRollback); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	restored, err := records.GetByID(context.Background(), "l1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if restored.BorrowerID != "user-1" {
		t.Errorf("expected borrower restored to user-1, got %s", restored.BorrowerID)
	}

	// The compensation is a new history entry, not a rewrite.
	if len(restored.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(restored.History))
	}
	last := restored.History[len(restored.History)-1]
	if last.NewValues[domain.FieldBorrowerID] != "user-1" {
		t.Errorf("compensating entry must record the restored value, got %v", last.NewValues)
	}
}

// =============================================================================
// Auto retry
// =============================================================================

func TestAutoRetry_BudgetExhausts(t *testing.T) {
	// Every retry fails again with a retryable error.
	runner := &scriptedRunner{results: []*domain.BulkActionResult{
		failedTransfer("op-2", 0, "l1"),
		failedTransfer("op-3", 0, "l1"),
		failedTransfer("op-4", 0, "l1"),
		failedTransfer("op-5", 0, "l1"),
	}}
	c := NewCoordinator(runner, nil, 3)

	c.Register(transferRequest("l1"), failedTransfer("op-1", 0, "l1"))

	opID := "op-1"
	retries := 0
	for i := 0; i < 10; i++ {
		result, err := c.AutoRetry(context.Background(), opID)
		if err != nil {
			t.Fatalf("AutoRetry failed: %v", err)
		}
		if result == nil {
			break
		}
		retries++
		opID = result.OperationID
	}

	if retries != 3 {
		t.Errorf("expected 3 auto retries, got %d", retries)
	}
}

func TestAutoRetry_NotForNonRetryable(t *testing.T) {
	c := NewCoordinator(&scriptedRunner{}, nil, 0)

	result := &domain.BulkActionResult{
		OperationID: "op-1",
		Kind:        domain.ActionTransfer,
		Failed:      1,
		Errors:      []domain.RecordError{{RecordID: "l1", Error: "access denied"}},
	}
	c.Register(transferRequest("l1"), result)

	got, err := c.AutoRetry(context.Background(), "op-1")
	if err != nil {
		t.Fatalf("AutoRetry failed: %v", err)
	}
	if got != nil {
		t.Error("permission failures must not auto-retry")
	}
}
