package classify

import (
	"testing"

	"github.com/kaizen2025/bulkops/internal/core/domain"
)

func failedResult(messages ...string) *domain.BulkActionResult {
	result := &domain.BulkActionResult{OperationID: "op-1", Kind: domain.ActionExtend}
	for i, msg := range messages {
		result.Failed++
		result.Errors = append(result.Errors, domain.RecordError{
			RecordID: string(rune('a' + i)),
			Error:    msg,
		})
	}
	return result
}

func TestClassify_Network(t *testing.T) {
	cls := Classify(failedResult("connection timeout while saving", "network unreachable"))

	if cls.Category != domain.CategoryNetwork {
		t.Fatalf("expected network, got %s", cls.Category)
	}
	if cls.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", cls.Confidence)
	}
	if !cls.Retryable || !cls.AutoRetry {
		t.Error("network failures must be retryable and auto-retryable")
	}
	if cls.RetryableCount != 2 {
		t.Errorf("expected 2 retryable errors, got %d", cls.RetryableCount)
	}
}

func TestClassify_Permission(t *testing.T) {
	cls := Classify(failedResult("access denied for role user"))

	if cls.Category != domain.CategoryPermission {
		t.Fatalf("expected permission, got %s", cls.Category)
	}
	if cls.Severity != domain.SeverityHigh {
		t.Errorf("expected high severity, got %s", cls.Severity)
	}
	if cls.Retryable {
		t.Error("permission failures are not retryable")
	}
}

func TestClassify_ValidationIsRetryableButNotAutoRetried(t *testing.T) {
	cls := Classify(failedResult(
		"loan x cannot be extended (status returned)",
		"validation failed: invalid parameters",
	))

	if cls.Category != domain.CategoryValidation {
		t.Fatalf("expected validation, got %s", cls.Category)
	}
	if !cls.Retryable {
		t.Error("validation failures must be retryable once the selection is corrected")
	}
	if cls.AutoRetry {
		t.Error("validation failures must never be retried automatically")
	}
	if cls.RetryableCount != 2 {
		t.Errorf("expected 2 retryable errors, got %d", cls.RetryableCount)
	}
}

func TestClassify_SeverityConstants(t *testing.T) {
	cases := []struct {
		message string
		want    domain.Severity
	}{
		{"network unreachable", domain.SeverityHigh},
		{"server capacity exceeded", domain.SeverityHigh},
		{"loan y is not eligible", domain.SeverityMedium},
		{"record locked by concurrent update", domain.SeverityMedium},
	}
	for _, tc := range cases {
		cls := Classify(failedResult(tc.message))
		if cls.Severity != tc.want {
			t.Errorf("%q: expected severity %s, got %s", tc.message, tc.want, cls.Severity)
		}
	}
}

func TestClassify_Corruption(t *testing.T) {
	cls := Classify(failedResult("history checksum mismatch, data corrupt"))

	if cls.Category != domain.CategoryCorruption {
		t.Fatalf("expected corruption, got %s", cls.Category)
	}
	if cls.Severity != domain.SeverityCritical {
		t.Errorf("expected critical severity, got %s", cls.Severity)
	}
}

func TestClassify_DominantCategoryWins(t *testing.T) {
	cls := Classify(failedResult(
		"connection timeout",
		"connection timeout",
		"connection timeout",
		"loan x cannot be extended (status returned)",
	))

	if cls.Category != domain.CategoryNetwork {
		t.Fatalf("expected dominant network category, got %s", cls.Category)
	}
}

func TestClassify_DefaultForUnknownMessages(t *testing.T) {
	cls := Classify(failedResult("zorp gleebed the frobnicator"))

	if cls.Category != domain.CategoryValidation {
		t.Fatalf("expected fallback validation category, got %s", cls.Category)
	}
	if cls.Confidence != 0.5 {
		t.Errorf("expected fallback confidence 0.5, got %v", cls.Confidence)
	}
	if !cls.Retryable {
		t.Error("fallback classification must stay retryable")
	}
	if cls.AutoRetry {
		t.Error("fallback classification must not auto-retry")
	}
}

func TestClassify_ErrorRate(t *testing.T) {
	result := failedResult("timeout", "timeout", "timeout")
	result.Successful = 1

	cls := Classify(result)
	if cls.ErrorRate != 75 {
		t.Errorf("expected error rate 75, got %v", cls.ErrorRate)
	}
}

func TestClassify_NoErrors(t *testing.T) {
	if cls := Classify(&domain.BulkActionResult{Successful: 3}); cls != nil {
		t.Errorf("expected nil classification, got %+v", cls)
	}
	if cls := Classify(nil); cls != nil {
		t.Error("nil result must classify to nil")
	}
}
