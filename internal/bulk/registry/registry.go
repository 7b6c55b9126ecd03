// Package registry holds the static permission matrix and the per-kind
// rule table. Both are data, not code: recovery and validation policy
// can be tuned here without touching the executor.
package registry

import (
	"time"

	"github.com/kaizen2025/bulkops/internal/core/domain"
)

// Rules are the structural constraints for one action kind.
type Rules struct {
	// MaxRecords caps the target set size per request.
	MaxRecords int

	// BatchSize bounds in-batch concurrency against the record store.
	BatchSize int

	// BatchDelay is the courtesy pause between batches.
	BatchDelay time.Duration

	// RequiresConfirmation gates the request on a typed phrase.
	RequiresConfirmation bool

	// RequiresDelivery makes the side effect part of the success
	// contract (recall: the email must go out to count as success).
	RequiresDelivery bool

	// SkipIneligible runs the eligible subset and reports ineligible
	// records as failures instead of aborting the whole request.
	// Destructive kinds use it so an operator can sweep a mixed
	// selection and delete what is legally deletable.
	SkipIneligible bool
}

var ruleTable = map[domain.ActionKind]Rules{
	domain.ActionExtend: {
		MaxRecords: 50,
		BatchSize:  5,
		BatchDelay: 200 * time.Millisecond,
	},
	domain.ActionRecall: {
		MaxRecords:       100,
		BatchSize:        10,
		BatchDelay:       500 * time.Millisecond,
		RequiresDelivery: true,
	},
	domain.ActionTransfer: {
		MaxRecords: 20,
		BatchSize:  3,
		BatchDelay: 300 * time.Millisecond,
	},
	domain.ActionStatusChange: {
		MaxRecords: 100,
		BatchSize:  15,
		BatchDelay: 100 * time.Millisecond,
	},
	domain.ActionExport: {
		MaxRecords: 1000,
		BatchSize:  50,
		BatchDelay: 50 * time.Millisecond,
	},
	domain.ActionDelete: {
		MaxRecords:           10,
		BatchSize:            2,
		BatchDelay:           time.Second,
		RequiresConfirmation: true,
		SkipIneligible:       true,
	},
}

var rolePermissions = map[domain.Role][]domain.ActionKind{
	domain.RoleAdmin: {
		domain.ActionExtend, domain.ActionRecall, domain.ActionTransfer,
		domain.ActionStatusChange, domain.ActionExport, domain.ActionDelete,
	},
	domain.RoleManager: {
		domain.ActionExtend, domain.ActionRecall, domain.ActionTransfer,
		domain.ActionStatusChange, domain.ActionExport,
	},
	domain.RoleUser: {
		domain.ActionRecall, domain.ActionExport,
	},
}

// RulesFor returns the rule set for a kind. Unknown kinds report false;
// callers treat that as a validation error, never a panic.
func RulesFor(kind domain.ActionKind) (Rules, bool) {
	rules, ok := ruleTable[kind]
	return rules, ok
}

// AllowedActions returns the action kinds a role may perform.
func AllowedActions(role domain.Role) []domain.ActionKind {
	kinds := rolePermissions[role]
	out := make([]domain.ActionKind, len(kinds))
	copy(out, kinds)
	return out
}

// RoleAllows reports whether the role may perform the action kind.
func RoleAllows(role domain.Role, kind domain.ActionKind) bool {
	for _, k := range rolePermissions[role] {
		if k == kind {
			return true
		}
	}
	return false
}
