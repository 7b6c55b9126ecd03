// Package recovery turns failed bulk operations into actionable
// follow-ups: targeted retries, reduced-batch retries, partial
// acceptance, or rollback of the records that did succeed.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/kaizen2025/bulkops/internal/bulk/classify"
	"github.com/kaizen2025/bulkops/internal/bulk/executor"
	"github.com/kaizen2025/bulkops/internal/bulk/registry"
	"github.com/kaizen2025/bulkops/internal/core/domain"
	"github.com/kaizen2025/bulkops/internal/infra/storage"
	"github.com/kaizen2025/bulkops/internal/metrics"
)

// DefaultMaxAutoRetries bounds unattended retries per operation chain.
const DefaultMaxAutoRetries = 3

// Runner executes bulk operations. Satisfied by the executor; narrowed
// to an interface so tests can substitute a scripted runner.
type Runner interface {
	Execute(ctx context.Context, req *domain.BulkActionRequest, opts executor.Options) (*domain.BulkActionResult, error)
}

// Session is the recovery state retained for one failed operation.
type Session struct {
	Request        *domain.BulkActionRequest
	Result         *domain.BulkActionResult
	Classification *domain.ErrorClassification
	Offers         []domain.RecoveryAction
	Retries        int
	CreatedAt      time.Time
}

// Coordinator classifies failed operations and applies the chosen
// recovery action. Sessions are held in memory and keyed by operation
// id; they do not survive a restart.
type Coordinator struct {
	runner         Runner
	records        storage.RecordRepository
	maxAutoRetries int

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewCoordinator creates a coordinator. maxAutoRetries <= 0 selects the
// default budget.
func NewCoordinator(runner Runner, records storage.RecordRepository, maxAutoRetries int) *Coordinator {
	if maxAutoRetries <= 0 {
		maxAutoRetries = DefaultMaxAutoRetries
	}
	return &Coordinator{
		runner:         runner,
		records:        records,
		maxAutoRetries: maxAutoRetries,
		sessions:       make(map[string]*Session),
	}
}

// Register classifies a finished operation with failures and stores a
// recovery session for it. Returns nil for fully-successful results.
func (c *Coordinator) Register(req *domain.BulkActionRequest, result *domain.BulkActionResult) *Session {
	cls := classify.Classify(result)
	if cls == nil {
		return nil
	}

	session := &Session{
		Request:        req,
		Result:         result,
		Classification: cls,
		Offers:         offersFor(result, cls),
		CreatedAt:      time.Now(),
	}

	c.mu.Lock()
	c.sessions[result.OperationID] = session
	c.mu.Unlock()

	slog.Warn("Operation registered for recovery",
		"operation", result.OperationID, "kind", req.Kind,
		"category", cls.Category, "failed", result.Failed,
		"offers", session.Offers)
	return session
}

// Session returns the stored session for an operation id.
func (c *Coordinator) Session(operationID string) (*Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[operationID]
	return s, ok
}

// Apply executes one recovery action for a registered operation. Retry
// variants re-run only the failed records; the resulting operation gets
// its own id and audit entry.
func (c *Coordinator) Apply(ctx context.Context, operationID string, action domain.RecoveryAction) (*domain.BulkActionResult, error) {
	c.mu.Lock()
	session, ok := c.sessions[operationID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no recovery session for operation %s", operationID)
	}
	if !offered(session.Offers, action) {
		return nil, fmt.Errorf("recovery action %q is not available for operation %s", action, operationID)
	}

	metrics.RecoveriesTotal.WithLabelValues(string(action)).Inc()

	switch action {
	case domain.RecoveryRetry:
		return c.retry(ctx, session, 0)

	case domain.RecoveryRetryReducedBatch:
		rules, _ := registry.RulesFor(session.Request.Kind)
		reduced := rules.BatchSize / 2
		if reduced < 1 {
			reduced = 1
		}
		return c.retry(ctx, session, reduced)

	case domain.RecoverySkipFailed, domain.RecoveryAcceptPartial:
		// The partial outcome stands; close the session.
		c.close(operationID)
		return session.Result, nil

	case domain.RecoveryRollback:
		if err := c.rollback(ctx, session); err != nil {
			return nil, err
		}
		c.close(operationID)
		return session.Result, nil

	default:
		return nil, fmt.Errorf("unknown recovery action %q", action)
	}
}

// AutoRetry re-runs the failed subset without operator involvement when
// the classification permits it and the retry budget is not exhausted.
// Returns the new result, or nil when no auto-retry applies.
func (c *Coordinator) AutoRetry(ctx context.Context, operationID string) (*domain.BulkActionResult, error) {
	c.mu.Lock()
	session, ok := c.sessions[operationID]
	c.mu.Unlock()
	if !ok || session.Classification == nil || !session.Classification.AutoRetry {
		return nil, nil
	}
	if session.Retries >= c.maxAutoRetries {
		slog.Warn("Auto-retry budget exhausted", "operation", operationID, "retries", session.Retries)
		return nil, nil
	}

	metrics.RecoveriesTotal.WithLabelValues("auto_retry").Inc()
	return c.retry(ctx, session, 0)
}

// retry re-executes the failed records. The session carries over to the
// new operation id so the retry budget spans the whole chain.
func (c *Coordinator) retry(ctx context.Context, session *Session, batchSize int) (*domain.BulkActionResult, error) {
	failedIDs := make([]string, 0, len(session.Result.Errors))
	for _, e := range session.Result.Errors {
		failedIDs = append(failedIDs, e.RecordID)
	}
	if len(failedIDs) == 0 {
		return session.Result, nil
	}

	req := &domain.BulkActionRequest{
		Kind:      session.Request.Kind,
		RecordIDs: failedIDs,
		Params:    session.Request.Params,
		Actor:     session.Request.Actor,
	}

	result, err := c.runner.Execute(ctx, req, executor.Options{BatchSize: batchSize})

	c.mu.Lock()
	delete(c.sessions, session.Result.OperationID)
	if result != nil && result.Failed > 0 {
		next := &Session{
			Request:        req,
			Result:         result,
			Classification: classify.Classify(result),
			Retries:        session.Retries + 1,
			CreatedAt:      time.Now(),
		}
		next.Offers = offersFor(result, next.Classification)
		c.sessions[result.OperationID] = next
	}
	c.mu.Unlock()

	return result, err
}

// rollback restores the pre-operation state of every record the
// operation changed, by replaying the old values captured in that
// record's history entry. History is append-only: the compensation is
// recorded as a new entry, never by rewriting the original.
func (c *Coordinator) rollback(ctx context.Context, session *Session) error {
	opID := session.Result.OperationID
	now := time.Now()

	for _, changed := range session.Result.UpdatedRecords {
		current, err := c.records.GetByID(ctx, changed.ID)
		if err != nil {
			return fmt.Errorf("rollback %s: %w", changed.ID, err)
		}

		entry := current.LastHistoryFor(opID)
		if entry == nil || len(entry.OldValues) == 0 {
			continue
		}

		restored := current.Clone()
		if err := applyValues(restored, entry.OldValues); err != nil {
			return fmt.Errorf("rollback %s: %w", changed.ID, err)
		}
		restored.UpdatedAt = now
		restored.History = append(restored.History, domain.HistoryEntry{
			OperationID: opID,
			Action:      entry.Action,
			Timestamp:   now,
			ActorID:     session.Request.Actor.ID,
			OldValues:   entry.NewValues,
			NewValues:   entry.OldValues,
			Note:        "rolled back",
		})

		if err := c.records.Persist(ctx, restored); err != nil {
			return fmt.Errorf("rollback %s: %w", changed.ID, err)
		}
	}

	slog.Info("Operation rolled back", "operation", opID, "records", len(session.Result.UpdatedRecords))
	return nil
}

func (c *Coordinator) close(operationID string) {
	c.mu.Lock()
	delete(c.sessions, operationID)
	c.mu.Unlock()
}

// offersFor derives the recovery actions available for a failed result.
func offersFor(result *domain.BulkActionResult, cls *domain.ErrorClassification) []domain.RecoveryAction {
	var offers []domain.RecoveryAction

	if cls != nil && cls.Retryable {
		offers = append(offers, domain.RecoveryRetry)
	}
	if result.ErrorRate() > 50 {
		offers = append(offers, domain.RecoveryRetryReducedBatch)
	}
	if result.Successful > 0 {
		offers = append(offers,
			domain.RecoverySkipFailed,
			domain.RecoveryAcceptPartial,
			domain.RecoveryRollback,
		)
	}
	return offers
}

func offered(offers []domain.RecoveryAction, action domain.RecoveryAction) bool {
	for _, o := range offers {
		if o == action {
			return true
		}
	}
	return false
}

const dateFormat = "2006-01-02"

// applyValues writes history field values back onto a record.
func applyValues(rec *domain.LoanRecord, values map[string]string) error {
	for field, value := range values {
		switch field {
		case domain.FieldStatus:
			rec.Status = domain.LoanStatus(value)
		case domain.FieldReturnDate:
			t, err := time.Parse(dateFormat, value)
			if err != nil {
				return fmt.Errorf("parse return date %q: %w", value, err)
			}
			rec.ReturnDate = t
		case domain.FieldBorrowerID:
			rec.BorrowerID = value
		case domain.FieldExtensionCount:
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("parse extension count %q: %w", value, err)
			}
			rec.ExtensionCount = n
		case domain.FieldRecallCount:
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("parse recall count %q: %w", value, err)
			}
			rec.RecallCount = n
		}
	}
	return nil
}
