package dataset

import (
	"churnpipe/internal/apperrors"
	"errors"
	"strings"
	"testing"
)

func TestValidateCSV(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		filename  string
		content   string
		wantErr   string
		wantRows  int
		wantLabel bool
	}{
		{
			name:     "valid minimal",
			filename: "customers.csv",
			content:  "customer_id,event_date\nC1,2024-01-15\nC2,2024-01-16\n",
			wantRows: 2,
		},
		{
			name:      "valid with optional columns",
			filename:  "labeled.csv",
			content:   "customer_id,event_date,amount,event_type,churn_label\nC1,2024-01-15,150.50,purchase,0\n",
			wantRows:  1,
			wantLabel: true,
		},
		{
			name:     "header case and whitespace tolerated",
			filename: "odd.csv",
			content:  "Customer_ID , Event_Date\nC1,2024-01-15\n",
			wantRows: 1,
		},
		{
			name:     "not a csv file",
			filename: "customers.xlsx",
			content:  "customer_id,event_date\nC1,2024-01-15\n",
			wantErr:  "file must be a CSV",
		},
		{
			name:     "missing event_date",
			filename: "customers.csv",
			content:  "customer_id,amount\nC1,150.50\n",
			wantErr:  `CSV must contain "event_date" column`,
		},
		{
			name:     "missing customer_id",
			filename: "customers.csv",
			content:  "event_date,amount\n2024-01-15,150.50\n",
			wantErr:  `CSV must contain "customer_id" column`,
		},
		{
			name:     "empty file",
			filename: "empty.csv",
			content:  "",
			wantErr:  "CSV is empty",
		},
		{
			name:     "header only",
			filename: "header.csv",
			content:  "customer_id,event_date\n",
			wantErr:  "CSV has no data rows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			summary, err := ValidateCSV(tt.filename, strings.NewReader(tt.content))

			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q", tt.wantErr)
				}
				if !errors.Is(err, apperrors.ErrValidation) {
					t.Errorf("error is not a validation error: %v", err)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want substring %q", err.Error(), tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if summary.RowCount != tt.wantRows {
				t.Errorf("rows = %d, want %d", summary.RowCount, tt.wantRows)
			}
			if summary.HasLabelColumn != tt.wantLabel {
				t.Errorf("hasLabel = %v, want %v", summary.HasLabelColumn, tt.wantLabel)
			}
		})
	}
}

func TestValidateCSV_RaggedRowsAllowed(t *testing.T) {
	t.Parallel()

	// Rows with differing column counts are left to the backend.
	content := "customer_id,event_date,amount\nC1,2024-01-15\nC2,2024-01-16,75.00\n"
	summary, err := ValidateCSV("ragged.csv", strings.NewReader(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.RowCount != 2 {
		t.Errorf("rows = %d, want 2", summary.RowCount)
	}
}
