package domain

import "time"

// LoanStatus is the lifecycle state of a loan record.
type LoanStatus string

const (
	LoanStatusActive    LoanStatus = "active"
	LoanStatusReserved  LoanStatus = "reserved"
	LoanStatusOverdue   LoanStatus = "overdue"
	LoanStatusReturned  LoanStatus = "returned"
	LoanStatusCancelled LoanStatus = "cancelled"
	LoanStatusDeleted   LoanStatus = "deleted"
)

// Valid reports whether s is one of the known loan statuses.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusActive, LoanStatusReserved, LoanStatusOverdue,
		LoanStatusReturned, LoanStatusCancelled, LoanStatusDeleted:
		return true
	}
	return false
}

// LoanRecord is a document loan. The canonical copy lives in the record
// store; the engine works on copies and proposes new ones, it never
// mutates a stored record in place.
type LoanRecord struct {
	ID             string         `json:"id"`
	DocumentID     string         `json:"document_id"`
	DocumentTitle  string         `json:"document_title"`
	BorrowerID     string         `json:"borrower_id"`
	BorrowerName   string         `json:"borrower_name"`
	BorrowerEmail  string         `json:"borrower_email"`
	Status         LoanStatus     `json:"status"`
	LoanDate       time.Time      `json:"loan_date"`
	ReturnDate     time.Time      `json:"return_date"`
	ActualReturn   *time.Time     `json:"actual_return,omitempty"`
	ExtensionCount int            `json:"extension_count"`
	RecallCount    int            `json:"recall_count"`
	History        []HistoryEntry `json:"history,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// HistoryEntry records one transition applied to a loan record. The
// history sequence is append-only and is the sole source of per-record
// provenance; rollback replays OldValues from the matching entry.
type HistoryEntry struct {
	OperationID string            `json:"operation_id"`
	Action      ActionKind        `json:"action"`
	Timestamp   time.Time         `json:"timestamp"`
	ActorID     string            `json:"actor_id"`
	OldValues   map[string]string `json:"old_values,omitempty"`
	NewValues   map[string]string `json:"new_values,omitempty"`
	Note        string            `json:"note,omitempty"`
}

// Field keys used in history old/new value maps.
const (
	FieldStatus         = "status"
	FieldReturnDate     = "return_date"
	FieldBorrowerID     = "borrower_id"
	FieldExtensionCount = "extension_count"
	FieldRecallCount    = "recall_count"
)

// Clone returns a deep copy of the record, including its history.
func (r *LoanRecord) Clone() *LoanRecord {
	cp := *r
	if r.ActualReturn != nil {
		t := *r.ActualReturn
		cp.ActualReturn = &t
	}
	if len(r.History) > 0 {
		cp.History = make([]HistoryEntry, len(r.History))
		for i, h := range r.History {
			cp.History[i] = h.clone()
		}
	}
	return &cp
}

func (h HistoryEntry) clone() HistoryEntry {
	cp := h
	cp.OldValues = cloneValues(h.OldValues)
	cp.NewValues = cloneValues(h.NewValues)
	return cp
}

func cloneValues(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// LastHistoryFor returns the most recent history entry written by the
// given operation, or nil if the operation never touched this record.
func (r *LoanRecord) LastHistoryFor(operationID string) *HistoryEntry {
	for i := len(r.History) - 1; i >= 0; i-- {
		if r.History[i].OperationID == operationID {
			return &r.History[i]
		}
	}
	return nil
}
