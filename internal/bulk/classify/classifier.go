// Package classify maps raw failure messages onto error categories so
// recovery can pick a strategy without parsing strings itself.
package classify

import (
	"strings"

	"github.com/kaizen2025/bulkops/internal/core/domain"
)

// rule matches a category by message substrings. Rules are evaluated in
// order; the first match wins for a given message.
type rule struct {
	category    domain.ErrorCategory
	severity    domain.Severity
	confidence  float64
	retryable   bool
	autoRetry   bool
	patterns    []string
	suggestions []string
}

var rules = []rule{
	{
		category:    domain.CategoryNetwork,
		severity:    domain.SeverityHigh,
		confidence:  0.9,
		retryable:   true,
		autoRetry:   true,
		patterns:    []string{"network", "timeout", "connection", "unreachable", "deadline exceeded"},
		suggestions: []string{
			"Check the network connection",
			"Retry in a few moments",
			"Contact an administrator if the problem persists",
		},
	},
	{
		category:    domain.CategoryPermission,
		severity:    domain.SeverityHigh,
		confidence:  0.9,
		retryable:   false,
		patterns:    []string{"permission", "unauthorized", "forbidden", "access denied"},
		suggestions: []string{
			"Verify the actor's permissions",
			"Contact an administrator",
			"Request the role required for this action",
		},
	},
	{
		category:    domain.CategoryValidation,
		severity:    domain.SeverityMedium,
		confidence:  0.8,
		retryable:   true,
		patterns:    []string{"validation", "invalid", "not eligible", "cannot be", "too long", "too many", "not found"},
		suggestions: []string{
			"Check the action parameters",
			"Remove the ineligible records from the selection",
			"Reconfigure the action with valid values",
		},
	},
	{
		category:    domain.CategoryConflict,
		severity:    domain.SeverityMedium,
		confidence:  0.8,
		retryable:   true,
		patterns:    []string{"conflict", "reserved", "already", "locked", "concurrent"},
		suggestions: []string{
			"Check for records being modified elsewhere",
			"Wait for in-flight operations to finish",
			"Select records that are available",
		},
	},
	{
		category:    domain.CategoryOverload,
		severity:    domain.SeverityHigh,
		confidence:  0.7,
		retryable:   true,
		autoRetry:   true,
		patterns:    []string{"overload", "too many requests", "rate limit", "busy", "capacity"},
		suggestions: []string{
			"Wait a few minutes",
			"Retry with a smaller batch size",
			"Contact an administrator if the problem persists",
		},
	},
	{
		category:    domain.CategoryCorruption,
		severity:    domain.SeverityCritical,
		confidence:  0.9,
		retryable:   false,
		patterns:    []string{"corrupt", "checksum", "integrity", "malformed"},
		suggestions: []string{
			"Check the integrity of the affected records",
			"Reload the record list",
			"Report the problem to an administrator",
		},
	},
}

// defaultClassification is used when no rule matches anything.
var defaultClassification = domain.ErrorClassification{
	Category:   domain.CategoryValidation,
	Severity:   domain.SeverityMedium,
	Confidence: 0.5,
	Retryable:  true,
	Suggestions: []string{
		"Review the individual record errors and adjust the selection",
	},
}

// Classify inspects the failed result and returns the dominant error
// category. One classification covers the whole operation: recovery is
// chosen per operation, not per record.
func Classify(result *domain.BulkActionResult) *domain.ErrorClassification {
	if result == nil || len(result.Errors) == 0 {
		return nil
	}

	tally := make(map[int]int)
	retryableCount := 0
	for _, recErr := range result.Errors {
		msg := strings.ToLower(recErr.Error)
		for i, r := range rules {
			if matches(msg, r.patterns) {
				tally[i]++
				if r.retryable {
					retryableCount++
				}
				break
			}
		}
	}

	best, bestCount := -1, 0
	for i, count := range tally {
		if count > bestCount || (count == bestCount && best >= 0 && i < best) {
			best, bestCount = i, count
		}
	}

	cls := defaultClassification
	if best >= 0 {
		r := rules[best]
		cls = domain.ErrorClassification{
			Category:    r.category,
			Severity:    r.severity,
			Confidence:  r.confidence,
			Retryable:   r.retryable,
			AutoRetry:   r.autoRetry,
			Suggestions: r.suggestions,
		}
	}

	cls.ErrorRate = result.ErrorRate()
	cls.RetryableCount = retryableCount
	return &cls
}

func matches(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
