package domain

import (
	"encoding/json"
	"time"
)

// AuditEntry is the immutable record of one completed or failed
// top-level bulk operation. Exactly one entry exists per invocation.
type AuditEntry struct {
	ID            string          `json:"id"`
	OperationID   string          `json:"operation_id"`
	Timestamp     time.Time       `json:"timestamp"`
	ActorID       string          `json:"actor_id"`
	ActorRole     Role            `json:"actor_role"`
	Kind          ActionKind      `json:"kind"`
	Parameters    json.RawMessage `json:"parameters,omitempty"`
	RecordIDs     []string        `json:"record_ids"`
	Successful    int             `json:"successful"`
	Failed        int             `json:"failed"`
	Duration      time.Duration   `json:"duration"`
	FailureReason string          `json:"failure_reason,omitempty"`
}

// AuditFilter narrows audit history queries. Zero values match all.
type AuditFilter struct {
	ActorID string
	Kind    ActionKind
	From    time.Time
	To      time.Time
	Limit   int
}

// Matches reports whether the entry satisfies the filter.
func (f AuditFilter) Matches(e *AuditEntry) bool {
	if f.ActorID != "" && e.ActorID != f.ActorID {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	return true
}
