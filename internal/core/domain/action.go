package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ActionKind identifies one of the fixed set of bulk operations.
type ActionKind string

const (
	ActionExtend       ActionKind = "extend"
	ActionRecall       ActionKind = "recall"
	ActionTransfer     ActionKind = "transfer"
	ActionStatusChange ActionKind = "status_change"
	ActionExport       ActionKind = "export"
	ActionDelete       ActionKind = "delete"
)

// Kinds lists every action kind in a stable order.
func Kinds() []ActionKind {
	return []ActionKind{
		ActionExtend, ActionRecall, ActionTransfer,
		ActionStatusChange, ActionExport, ActionDelete,
	}
}

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionExtend, ActionRecall, ActionTransfer,
		ActionStatusChange, ActionExport, ActionDelete:
		return true
	}
	return false
}

// Role is the acting user's permission level.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

// Actor identifies the user requesting a bulk action.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// DeleteConfirmationPhrase must be supplied verbatim with delete requests.
// This is a core-level gate, not only a UI affordance.
const DeleteConfirmationPhrase = "DELETE"

// MaxExtendDays caps a single extension.
const MaxExtendDays = 365

// ActionParameters is the closed, kind-indexed parameter variant. Each
// variant validates its own required fields.
type ActionParameters interface {
	Kind() ActionKind
	Validate() error
}

// ExtendParams extends the return date by a number of days.
type ExtendParams struct {
	Days int `json:"days"`
}

func (ExtendParams) Kind() ActionKind { return ActionExtend }

func (p ExtendParams) Validate() error {
	if p.Days <= 0 {
		return errors.New("extension days must be positive")
	}
	if p.Days > MaxExtendDays {
		return fmt.Errorf("extension period too long (max %d days)", MaxExtendDays)
	}
	return nil
}

// RecallParams sends a recall notice to each borrower.
type RecallParams struct {
	Message string `json:"message"`
}

func (RecallParams) Kind() ActionKind { return ActionRecall }

func (RecallParams) Validate() error { return nil }

// TransferParams moves loans to another borrower.
type TransferParams struct {
	TargetUserID string `json:"target_user_id"`
	Reason       string `json:"reason"`
}

func (TransferParams) Kind() ActionKind { return ActionTransfer }

func (p TransferParams) Validate() error {
	if p.TargetUserID == "" {
		return errors.New("transfer target user is required")
	}
	return nil
}

// StatusChangeParams overwrites the loan status.
type StatusChangeParams struct {
	NewStatus LoanStatus `json:"new_status"`
	Reason    string     `json:"reason"`
}

func (StatusChangeParams) Kind() ActionKind { return ActionStatusChange }

func (p StatusChangeParams) Validate() error {
	if !p.NewStatus.Valid() {
		return fmt.Errorf("unknown status %q", p.NewStatus)
	}
	return nil
}

// ExportParams selects the output format and the record fields to emit.
type ExportParams struct {
	Format string   `json:"format"`
	Fields []string `json:"fields"`
}

func (ExportParams) Kind() ActionKind { return ActionExport }

func (p ExportParams) Validate() error {
	switch p.Format {
	case "csv", "json", "excel", "pdf":
		return nil
	}
	return fmt.Errorf("unsupported export format %q", p.Format)
}

// DeleteParams soft-deletes loans. The confirmation phrase is required.
type DeleteParams struct {
	Confirmation string `json:"confirmation"`
	Reason       string `json:"reason"`
}

func (DeleteParams) Kind() ActionKind { return ActionDelete }

func (p DeleteParams) Validate() error {
	if p.Confirmation != DeleteConfirmationPhrase {
		return fmt.Errorf("delete requires confirmation phrase %q", DeleteConfirmationPhrase)
	}
	return nil
}

// DecodeParameters unmarshals the kind-specific parameter payload.
func DecodeParameters(kind ActionKind, raw json.RawMessage) (ActionParameters, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	var (
		params ActionParameters
		err    error
	)
	switch kind {
	case ActionExtend:
		var p ExtendParams
		err = json.Unmarshal(raw, &p)
		params = p
	case ActionRecall:
		var p RecallParams
		err = json.Unmarshal(raw, &p)
		params = p
	case ActionTransfer:
		var p TransferParams
		err = json.Unmarshal(raw, &p)
		params = p
	case ActionStatusChange:
		var p StatusChangeParams
		err = json.Unmarshal(raw, &p)
		params = p
	case ActionExport:
		var p ExportParams
		err = json.Unmarshal(raw, &p)
		params = p
	case ActionDelete:
		var p DeleteParams
		err = json.Unmarshal(raw, &p)
		params = p
	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s parameters: %w", kind, err)
	}
	return params, nil
}

// BulkActionRequest is a single bulk operation submitted by a caller.
// It is consumed once.
type BulkActionRequest struct {
	Kind      ActionKind       `json:"kind"`
	RecordIDs []string         `json:"record_ids"`
	Params    ActionParameters `json:"params"`
	Actor     Actor            `json:"actor"`
}
