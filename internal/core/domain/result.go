package domain

import "time"

// RecordFailure carries the validation errors for one record.
type RecordFailure struct {
	RecordID string   `json:"record_id"`
	Errors   []string `json:"errors"`
}

// ValidationOutcome is the complete pre-execution verdict for a request.
// Validation is total: every record is evaluated even after the first
// failure, so the caller always sees the full failure set.
type ValidationOutcome struct {
	Valid          bool            `json:"valid"`
	GlobalErrors   []string        `json:"global_errors,omitempty"`
	RecordFailures []RecordFailure `json:"record_failures,omitempty"`
}

// RecordError is one record's execution failure.
type RecordError struct {
	RecordID string `json:"record_id"`
	Error    string `json:"error"`
}

// ExportArtifact is the downloadable output of an export operation.
type ExportArtifact struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// BulkActionResult aggregates per-record outcomes of one operation.
type BulkActionResult struct {
	OperationID    string          `json:"operation_id"`
	Kind           ActionKind      `json:"kind"`
	Successful     int             `json:"successful"`
	Failed         int             `json:"failed"`
	UpdatedRecords []*LoanRecord   `json:"updated_records,omitempty"`
	Errors         []RecordError   `json:"errors,omitempty"`
	Warnings       []string        `json:"warnings,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
	Duration       time.Duration   `json:"duration"`
	AuditID        string          `json:"audit_id,omitempty"`
	Export         *ExportArtifact `json:"export,omitempty"`
}

// TotalProcessed is the number of records attempted post-validation.
func (r *BulkActionResult) TotalProcessed() int {
	return r.Successful + r.Failed
}

// SuccessRate is the share of successful records in percent, 0 when
// nothing was processed.
func (r *BulkActionResult) SuccessRate() float64 {
	total := r.TotalProcessed()
	if total == 0 {
		return 0
	}
	return float64(r.Successful) / float64(total) * 100
}

// ErrorRate is the share of failed records in percent.
func (r *BulkActionResult) ErrorRate() float64 {
	total := r.TotalProcessed()
	if total == 0 {
		return 0
	}
	return float64(r.Failed) / float64(total) * 100
}

// ErrorFor returns the recorded failure reason for a record id.
func (r *BulkActionResult) ErrorFor(recordID string) (string, bool) {
	for _, e := range r.Errors {
		if e.RecordID == recordID {
			return e.Error, true
		}
	}
	return "", false
}
