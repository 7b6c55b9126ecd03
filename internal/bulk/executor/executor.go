// Package executor orchestrates bulk operations end to end: preflight,
// validation, batched execution, side effects, and the audit trail.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaizen2025/bulkops/internal/audit"
	"github.com/kaizen2025/bulkops/internal/bulk/registry"
	"github.com/kaizen2025/bulkops/internal/bulk/strategy"
	"github.com/kaizen2025/bulkops/internal/bulk/validate"
	"github.com/kaizen2025/bulkops/internal/core/domain"
	"github.com/kaizen2025/bulkops/internal/export"
	"github.com/kaizen2025/bulkops/internal/infra/storage"
	"github.com/kaizen2025/bulkops/internal/metrics"
	"github.com/kaizen2025/bulkops/internal/notify"
)

// Progress receives percentage milestones while an operation runs.
// Publishing is fire-and-forget; a slow or absent consumer never blocks
// execution.
type Progress interface {
	Publish(ctx context.Context, operationID string, percent int, label string)
}

type nopProgress struct{}

func (nopProgress) Publish(context.Context, string, int, string) {}

// Options tune a single invocation. The zero value runs with the rule
// table defaults.
type Options struct {
	// BatchSize overrides the per-kind batch size when positive.
	// Recovery uses it to retry with reduced concurrency.
	BatchSize int
}

// Executor runs bulk operations. It is safe for concurrent use; all
// per-operation state lives on the stack of Execute.
type Executor struct {
	records   storage.RecordRepository
	validator *validate.Validator
	audits    *audit.Service
	notifier  notify.Notifier
	exporter  export.Sink
	progress  Progress
}

// New assembles an executor. notifier, exporter and progress may be
// nil; missing collaborators degrade to no-ops where the rules permit.
func New(
	records storage.RecordRepository,
	validator *validate.Validator,
	audits *audit.Service,
	notifier notify.Notifier,
	exporter export.Sink,
	progress Progress,
) *Executor {
	if notifier == nil {
		notifier = notify.NopNotifier{}
	}
	if exporter == nil {
		exporter = export.NewBuilder()
	}
	if progress == nil {
		progress = nopProgress{}
	}
	return &Executor{
		records:   records,
		validator: validator,
		audits:    audits,
		notifier:  notifier,
		exporter:  exporter,
		progress:  progress,
	}
}

// Validate runs the preflight and per-record checks without executing
// anything. Used by the dry-run API endpoint.
func (e *Executor) Validate(ctx context.Context, req *domain.BulkActionRequest) (*domain.ValidationOutcome, error) {
	outcome := &domain.ValidationOutcome{Valid: true}

	if errs := preflight(req); len(errs) > 0 {
		outcome.Valid = false
		outcome.GlobalErrors = errs
		return outcome, nil
	}

	records, missing, err := e.records.FetchMany(ctx, req.RecordIDs)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	for _, id := range missing {
		outcome.RecordFailures = append(outcome.RecordFailures, domain.RecordFailure{
			RecordID: id,
			Errors:   []string{"record not found"},
		})
	}
	outcome.RecordFailures = append(outcome.RecordFailures,
		e.validator.ValidateAll(ctx, req.Kind, records, req.Params)...)

	outcome.Valid = len(outcome.RecordFailures) == 0
	return outcome, nil
}

// Execute runs one bulk operation to completion. Exactly one audit
// entry is written per invocation, whether the operation succeeds,
// partially succeeds, or is rejected in preflight.
func (e *Executor) Execute(ctx context.Context, req *domain.BulkActionRequest, opts Options) (*domain.BulkActionResult, error) {
	opID := uuid.NewString()
	start := time.Now()

	result := &domain.BulkActionResult{
		OperationID: opID,
		Kind:        req.Kind,
		Timestamp:   start,
	}

	e.progress.Publish(ctx, opID, 0, "starting")
	slog.Info("Bulk operation started",
		"operation", opID, "kind", req.Kind, "actor", req.Actor.ID, "records", len(req.RecordIDs))

	if errs := preflight(req); len(errs) > 0 {
		return e.reject(ctx, req, result, start, errs[0])
	}

	rules, _ := registry.RulesFor(req.Kind)
	batchSize := rules.BatchSize
	if opts.BatchSize > 0 && opts.BatchSize < batchSize {
		batchSize = opts.BatchSize
	}

	e.progress.Publish(ctx, opID, 5, "fetching records")
	records, missing, err := e.records.FetchMany(ctx, req.RecordIDs)
	if err != nil {
		return e.reject(ctx, req, result, start, fmt.Sprintf("failed to load records: %v", err))
	}

	e.progress.Publish(ctx, opID, 15, "validating")
	failures := e.validator.ValidateAll(ctx, req.Kind, records, req.Params)
	for _, id := range missing {
		failures = append(failures, domain.RecordFailure{
			RecordID: id,
			Errors:   []string{"record not found"},
		})
	}

	eligible := records
	if len(failures) > 0 {
		if !rules.SkipIneligible {
			reason := fmt.Sprintf("validation failed for %d of %d records", len(failures), len(req.RecordIDs))
			for _, f := range failures {
				result.Errors = append(result.Errors, domain.RecordError{
					RecordID: f.RecordID,
					Error:    joinErrors(f.Errors),
				})
			}
			return e.reject(ctx, req, result, start, reason)
		}

		// Destructive kinds sweep the eligible subset; everything else
		// in the selection is reported as failed.
		ineligible := make(map[string]bool, len(failures))
		for _, f := range failures {
			ineligible[f.RecordID] = true
			result.Failed++
			result.Errors = append(result.Errors, domain.RecordError{
				RecordID: f.RecordID,
				Error:    joinErrors(f.Errors),
			})
			metrics.RecordsProcessed.WithLabelValues(string(req.Kind), "failure").Inc()
		}
		eligible = eligible[:0:0]
		for _, rec := range records {
			if !ineligible[rec.ID] {
				eligible = append(eligible, rec)
			}
		}
	}

	ac := strategy.ApplyContext{
		OperationID: opID,
		Actor:       req.Actor,
		Params:      req.Params,
		Now:         start,
	}

	e.runBatches(ctx, req, rules, batchSize, eligible, ac, result)

	if req.Kind == domain.ActionExport && result.Successful > 0 {
		e.progress.Publish(ctx, opID, 90, "generating export file")
		params := req.Params.(domain.ExportParams)
		artifact, err := e.exporter.Write(ctx, result.UpdatedRecords, params.Format, params.Fields)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("export rendering failed: %v", err))
			return e.finish(ctx, req, result, start, fmt.Sprintf("export rendering failed: %v", err))
		}
		result.Export = artifact
	}

	e.progress.Publish(ctx, opID, 95, "recording audit entry")
	return e.finish(ctx, req, result, start, "")
}

// runBatches partitions the eligible records and processes each batch
// with one goroutine per record, pausing between batches.
func (e *Executor) runBatches(
	ctx context.Context,
	req *domain.BulkActionRequest,
	rules registry.Rules,
	batchSize int,
	eligible []*domain.LoanRecord,
	ac strategy.ApplyContext,
	result *domain.BulkActionResult,
) {
	strat, ok := strategy.For(req.Kind)
	if !ok {
		// preflight already rejected unknown kinds
		return
	}

	total := len(eligible)
	var mu sync.Mutex
	done := 0

	for offset := 0; offset < total; offset += batchSize {
		if ctx.Err() != nil {
			e.cancelRemaining(eligible[offset:], req.Kind, result)
			return
		}

		end := offset + batchSize
		if end > total {
			end = total
		}
		batch := eligible[offset:end]
		batchStart := time.Now()

		var wg sync.WaitGroup
		for _, rec := range batch {
			wg.Add(1)
			go func(rec *domain.LoanRecord) {
				defer wg.Done()
				updated, err := e.processRecord(ctx, strat, rec, rules, ac)

				mu.Lock()
				defer mu.Unlock()
				done++
				if err != nil {
					result.Failed++
					result.Errors = append(result.Errors, domain.RecordError{
						RecordID: rec.ID,
						Error:    err.Error(),
					})
					metrics.RecordsProcessed.WithLabelValues(string(req.Kind), "failure").Inc()
					return
				}
				result.Successful++
				result.UpdatedRecords = append(result.UpdatedRecords, updated)
				metrics.RecordsProcessed.WithLabelValues(string(req.Kind), "success").Inc()
			}(rec)
		}
		wg.Wait()

		metrics.BatchDuration.WithLabelValues(string(req.Kind)).Observe(time.Since(batchStart).Seconds())

		// 25-85 percent window spans batch execution.
		pct := 25
		if total > 0 {
			pct = 25 + done*60/total
		}
		e.progress.Publish(ctx, ac.OperationID, pct,
			fmt.Sprintf("processed %d of %d records", done, total))

		if end < total && rules.BatchDelay > 0 {
			select {
			case <-time.After(rules.BatchDelay):
			case <-ctx.Done():
				e.cancelRemaining(eligible[end:], req.Kind, result)
				return
			}
		}
	}
}

// processRecord applies the strategy to one record, dispatches any
// required side effect, and persists the new state. The record counts
// as successful only once every required step has completed.
func (e *Executor) processRecord(
	ctx context.Context,
	strat strategy.Strategy,
	rec *domain.LoanRecord,
	rules registry.Rules,
	ac strategy.ApplyContext,
) (*domain.LoanRecord, error) {
	outcome, err := strat.Apply(rec, ac)
	if err != nil {
		return nil, err
	}

	if outcome.Recall != nil && rules.RequiresDelivery {
		delivery, err := e.notifier.SendRecall(ctx, notify.Notice{
			Recipient: outcome.Recall.Recipient,
			Subject:   outcome.Recall.Subject,
			Body:      outcome.Recall.Body,
		})
		if err != nil {
			return nil, fmt.Errorf("notification delivery failed: %w", err)
		}
		if !delivery.Delivered {
			return nil, fmt.Errorf("notification to %s was not delivered", outcome.Recall.Recipient)
		}
	}

	if err := e.records.Persist(ctx, outcome.Updated); err != nil {
		return nil, fmt.Errorf("persist record: %w", err)
	}
	return outcome.Updated, nil
}

func (e *Executor) cancelRemaining(remaining []*domain.LoanRecord, kind domain.ActionKind, result *domain.BulkActionResult) {
	for _, rec := range remaining {
		result.Failed++
		result.Errors = append(result.Errors, domain.RecordError{
			RecordID: rec.ID,
			Error:    "operation cancelled",
		})
		metrics.RecordsProcessed.WithLabelValues(string(kind), "failure").Inc()
	}
	result.Warnings = append(result.Warnings, "operation cancelled before completion")
}

// reject closes out an operation that failed preflight or global
// validation: nothing was executed, but the attempt is still audited.
func (e *Executor) reject(
	ctx context.Context,
	req *domain.BulkActionRequest,
	result *domain.BulkActionResult,
	start time.Time,
	reason string,
) (*domain.BulkActionResult, error) {
	result.Failed = len(req.RecordIDs)
	res, _ := e.finish(ctx, req, result, start, reason)
	return res, fmt.Errorf("%s", reason)
}

// finish stamps the result, writes the single audit entry, and emits
// the terminal progress milestone and metrics.
func (e *Executor) finish(
	ctx context.Context,
	req *domain.BulkActionRequest,
	result *domain.BulkActionResult,
	start time.Time,
	failureReason string,
) (*domain.BulkActionResult, error) {
	result.Duration = time.Since(start)

	status := "completed"
	if failureReason != "" {
		status = "failed"
	} else if result.Failed > 0 {
		status = "partial"
	}

	entry := &domain.AuditEntry{
		OperationID:   result.OperationID,
		Timestamp:     start,
		ActorID:       req.Actor.ID,
		ActorRole:     req.Actor.Role,
		Kind:          req.Kind,
		Parameters:    encodeParams(req.Params),
		RecordIDs:     req.RecordIDs,
		Successful:    result.Successful,
		Failed:        result.Failed,
		Duration:      result.Duration,
		FailureReason: failureReason,
	}
	result.AuditID = e.audits.Record(ctx, entry)

	metrics.OperationsTotal.WithLabelValues(string(req.Kind), status).Inc()
	metrics.OperationDuration.WithLabelValues(string(req.Kind)).Observe(result.Duration.Seconds())

	e.progress.Publish(ctx, result.OperationID, 100, status)
	slog.Info("Bulk operation finished",
		"operation", result.OperationID, "kind", req.Kind, "status", status,
		"successful", result.Successful, "failed", result.Failed,
		"duration", result.Duration)

	if failureReason != "" {
		return result, fmt.Errorf("%s", failureReason)
	}
	return result, nil
}

// preflight checks the request shape before any record is touched.
// The first error is the operation's failure reason; the full list
// feeds the dry-run endpoint.
func preflight(req *domain.BulkActionRequest) []string {
	var errs []string

	rules, known := registry.RulesFor(req.Kind)
	if !known {
		return []string{fmt.Sprintf("unknown action kind %q", req.Kind)}
	}

	if !registry.RoleAllows(req.Actor.Role, req.Kind) {
		errs = append(errs, fmt.Sprintf("insufficient permissions: role %q may not perform %q", req.Actor.Role, req.Kind))
	}

	if len(req.RecordIDs) == 0 {
		errs = append(errs, "no records selected")
	}
	if len(req.RecordIDs) > rules.MaxRecords {
		errs = append(errs, fmt.Sprintf("too many records: %d selected, maximum %d for %s", len(req.RecordIDs), rules.MaxRecords, req.Kind))
	}

	if req.Params == nil {
		errs = append(errs, "missing action parameters")
		return errs
	}
	if req.Params.Kind() != req.Kind {
		errs = append(errs, fmt.Sprintf("parameter type %q does not match action %q", req.Params.Kind(), req.Kind))
		return errs
	}
	if err := req.Params.Validate(); err != nil {
		// Covers the delete confirmation phrase for kinds that require it.
		errs = append(errs, err.Error())
	}

	return errs
}

func encodeParams(params domain.ActionParameters) json.RawMessage {
	if params == nil {
		return nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	return raw
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return "validation failed"
	}
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}
