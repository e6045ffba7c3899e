// Package dataset validates customer transaction CSVs before upload.
//
// Validation happens entirely client-side: a file that fails here is
// rejected without any network call.
package dataset

import (
	"bufio"
	"churnpipe/internal/apperrors"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"
)

// Required CSV columns. Optional columns are amount, event_type and
// churn_label; the backend auto-generates labels when churn_label is absent.
var requiredColumns = []string{"customer_id", "event_date"}

const labelColumn = "churn_label"

// Summary describes a validated CSV.
type Summary struct {
	RowCount       int  // data rows, header excluded
	HasLabelColumn bool // churn_label present in the header
}

// ValidateCSV checks the filename extension and the header row, then counts
// data rows. Returns a validation error for a non-CSV filename, an
// unreadable file, or a header missing a required column.
func ValidateCSV(filename string, r io.Reader) (*Summary, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return nil, apperrors.Validation("file", "file must be a CSV")
	}

	reader := csv.NewReader(bufio.NewReader(r))
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, apperrors.Validation("file", "CSV is empty")
	}
	if err != nil {
		return nil, apperrors.Validation("file", fmt.Sprintf("unreadable CSV header: %v", err))
	}

	columns := make([]string, len(header))
	for i, col := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(col))
	}

	for _, required := range requiredColumns {
		if !slices.Contains(columns, required) {
			return nil, apperrors.Validation("file", fmt.Sprintf("CSV must contain %q column", required))
		}
	}

	summary := &Summary{
		HasLabelColumn: slices.Contains(columns, labelColumn),
	}

	// Column count per row is not enforced beyond what encoding/csv already
	// checks; the backend owns cell-level validation.
	reader.FieldsPerRecord = -1
	for {
		_, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.Validation("file", fmt.Sprintf("unreadable CSV row %d: %v", summary.RowCount+2, err))
		}
		summary.RowCount++
	}

	if summary.RowCount == 0 {
		return nil, apperrors.Validation("file", "CSV has no data rows")
	}

	return summary, nil
}
