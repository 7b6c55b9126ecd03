package domain

// ErrorCategory buckets the dominant failure mode of an operation.
type ErrorCategory string

const (
	CategoryNetwork    ErrorCategory = "network"
	CategoryPermission ErrorCategory = "permission"
	CategoryValidation ErrorCategory = "validation"
	CategoryConflict   ErrorCategory = "conflict"
	CategoryOverload   ErrorCategory = "overload"
	CategoryCorruption ErrorCategory = "corruption"
)

// Severity is the fixed severity attached to an error category.
type Severity string

const (
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorClassification is the derived diagnosis of a failed or partially
// failed operation. It is never persisted.
type ErrorClassification struct {
	Category       ErrorCategory `json:"category"`
	Severity       Severity      `json:"severity"`
	Confidence     float64       `json:"confidence"`
	Retryable      bool          `json:"retryable"`
	AutoRetry      bool          `json:"auto_retry"`
	Suggestions    []string      `json:"suggestions"`
	ErrorRate      float64       `json:"error_rate"`
	RetryableCount int           `json:"retryable_count"`
}

// RecoveryAction is one of the strategies offered after a failure.
type RecoveryAction string

const (
	RecoveryRetry             RecoveryAction = "retry"
	RecoveryRetryReducedBatch RecoveryAction = "retry_with_reduced_batch"
	RecoverySkipFailed        RecoveryAction = "skip_failed_items"
	RecoveryAcceptPartial     RecoveryAction = "accept_partial_success"
	RecoveryRollback          RecoveryAction = "rollback"
)
