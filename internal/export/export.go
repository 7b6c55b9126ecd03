// Package export renders loan records into downloadable artifacts.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kaizen2025/bulkops/internal/core/domain"
)

// DefaultFields is the column set used when the caller selects none.
var DefaultFields = []string{
	"id", "document_title", "borrower_name", "loan_date", "return_date", "status",
}

// Sink turns records into a byte stream plus a MIME type.
type Sink interface {
	Write(ctx context.Context, records []*domain.LoanRecord, format string, fields []string) (*domain.ExportArtifact, error)
}

// Builder is the in-process Sink. Excel and PDF output are simulated as
// structured JSON carrying the proper MIME type; real spreadsheet/PDF
// rendering stays outside the engine.
type Builder struct{}

// NewBuilder creates an export builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Write renders the records in the requested format.
func (b *Builder) Write(
	ctx context.Context,
	records []*domain.LoanRecord,
	format string,
	fields []string,
) (*domain.ExportArtifact, error) {
	if len(fields) == 0 {
		fields = DefaultFields
	}

	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, projectRecord(rec, fields))
	}

	stamp := time.Now().Format("20060102_150405")

	switch format {
	case "csv":
		data, err := renderCSV(rows, fields)
		if err != nil {
			return nil, err
		}
		return &domain.ExportArtifact{
			Filename: fmt.Sprintf("loans_%s.csv", stamp),
			MIMEType: "text/csv",
			Data:     data,
		}, nil

	case "json":
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode export: %w", err)
		}
		return &domain.ExportArtifact{
			Filename: fmt.Sprintf("loans_%s.json", stamp),
			MIMEType: "application/json",
			Data:     data,
		}, nil

	case "excel":
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode export: %w", err)
		}
		return &domain.ExportArtifact{
			Filename: fmt.Sprintf("loans_%s.xlsx", stamp),
			MIMEType: "application/vnd.ms-excel",
			Data:     data,
		}, nil

	case "pdf":
		data, err := json.MarshalIndent(rows, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode export: %w", err)
		}
		return &domain.ExportArtifact{
			Filename: fmt.Sprintf("loans_%s.pdf", stamp),
			MIMEType: "application/pdf",
			Data:     data,
		}, nil
	}

	return nil, fmt.Errorf("unsupported export format %q", format)
}

func renderCSV(rows []map[string]string, fields []string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(fields); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range rows {
		record := make([]string, len(fields))
		for i, f := range fields {
			record[i] = row[f]
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func projectRecord(rec *domain.LoanRecord, fields []string) map[string]string {
	const dateFormat = "02/01/2006 15:04"

	out := make(map[string]string, len(fields))
	for _, f := range fields {
		switch f {
		case "id":
			out[f] = rec.ID
		case "document_id":
			out[f] = rec.DocumentID
		case "document_title":
			out[f] = rec.DocumentTitle
		case "borrower_id":
			out[f] = rec.BorrowerID
		case "borrower_name":
			out[f] = rec.BorrowerName
		case "borrower_email":
			out[f] = rec.BorrowerEmail
		case "status":
			out[f] = string(rec.Status)
		case "loan_date":
			out[f] = rec.LoanDate.Format(dateFormat)
		case "return_date":
			out[f] = rec.ReturnDate.Format(dateFormat)
		case "extension_count":
			out[f] = fmt.Sprintf("%d", rec.ExtensionCount)
		case "recall_count":
			out[f] = fmt.Sprintf("%d", rec.RecallCount)
		default:
			out[f] = ""
		}
	}
	return out
}
