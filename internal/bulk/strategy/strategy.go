// Package strategy implements the per-kind business logic of bulk
// actions as pure transforms. A strategy never performs I/O; side
// effects are returned as descriptors for the executor to dispatch.
package strategy

import (
	"time"

	"github.com/kaizen2025/bulkops/internal/core/domain"
)

// ApplyContext carries the per-operation inputs shared by every record
// transform.
type ApplyContext struct {
	OperationID string
	Actor       domain.Actor
	Params      domain.ActionParameters
	Now         time.Time
}

// RecallNotice describes a recall email for the notifier collaborator.
type RecallNotice struct {
	Recipient string
	Subject   string
	Body      string
}

// Outcome is the proposed new record state plus any side effect request.
type Outcome struct {
	Updated *domain.LoanRecord
	Recall  *RecallNotice
}

// Strategy computes the new state of one record for one action kind.
type Strategy interface {
	Kind() domain.ActionKind
	Apply(record *domain.LoanRecord, ac ApplyContext) (*Outcome, error)
}

// The closed registry: one strategy per action kind, looked up at a
// single dispatch point.
var strategies = map[domain.ActionKind]Strategy{
	domain.ActionExtend:       extendStrategy{},
	domain.ActionRecall:       recallStrategy{},
	domain.ActionTransfer:     transferStrategy{},
	domain.ActionStatusChange: statusChangeStrategy{},
	domain.ActionExport:       exportStrategy{},
	domain.ActionDelete:       deleteStrategy{},
}

// For returns the strategy registered for a kind.
func For(kind domain.ActionKind) (Strategy, bool) {
	s, ok := strategies[kind]
	return s, ok
}
