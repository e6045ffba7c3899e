package pipeline

import (
	"context"
	"fmt"
	"testing"

	"churnpipe/internal/churn"
)

func fakeRows(n int) []churn.PredictionRow {
	rows := make([]churn.PredictionRow, n)
	for i := range rows {
		rows[i] = churn.PredictionRow{CustomerID: fmt.Sprintf("c%03d", i)}
	}
	return rows
}

func TestFetcherPredictionWindows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		total      int
		limit      int
		offset     int
		wantLen    int
		wantOffset int
		wantNext   bool
		wantPrev   bool
	}{
		{name: "first page", total: 27, limit: 10, offset: 0, wantLen: 10, wantOffset: 0, wantNext: true, wantPrev: false},
		{name: "middle page", total: 27, limit: 10, offset: 10, wantLen: 10, wantOffset: 10, wantNext: true, wantPrev: true},
		{name: "short last page", total: 27, limit: 10, offset: 25, wantLen: 2, wantOffset: 25, wantNext: false, wantPrev: true},
		{name: "offset past end clamps to last page", total: 27, limit: 10, offset: 40, wantLen: 7, wantOffset: 20, wantNext: false, wantPrev: true},
		{name: "negative offset clamps to zero", total: 5, limit: 10, offset: -3, wantLen: 5, wantOffset: 0, wantNext: false, wantPrev: false},
		{name: "zero limit uses default", total: 50, limit: 0, offset: 0, wantLen: defaultPageLimit, wantOffset: 0, wantNext: true, wantPrev: false},
		{name: "oversized limit is capped", total: 500, limit: 1000, offset: 0, wantLen: maxPageLimit, wantOffset: 0, wantNext: true, wantPrev: false},
		{name: "empty collection", total: 0, limit: 10, offset: 0, wantLen: 0, wantOffset: 0, wantNext: false, wantPrev: false},
		{name: "empty collection with offset", total: 0, limit: 10, offset: 30, wantLen: 0, wantOffset: 0, wantNext: false, wantPrev: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fb := &fakeBackend{rows: fakeRows(tt.total)}
			f := NewPaginatedFetcher(fb, "org-1")

			w, err := f.Predictions(context.Background(), "batch-1", tt.limit, tt.offset)
			if err != nil {
				t.Fatalf("Predictions: %v", err)
			}
			if len(w.Items) != tt.wantLen {
				t.Errorf("len(Items) = %d, want %d", len(w.Items), tt.wantLen)
			}
			if w.Offset != tt.wantOffset {
				t.Errorf("Offset = %d, want %d", w.Offset, tt.wantOffset)
			}
			if w.Total != tt.total {
				t.Errorf("Total = %d, want %d", w.Total, tt.total)
			}
			if w.HasNext != tt.wantNext {
				t.Errorf("HasNext = %v, want %v", w.HasNext, tt.wantNext)
			}
			if w.HasPrev != tt.wantPrev {
				t.Errorf("HasPrev = %v, want %v", w.HasPrev, tt.wantPrev)
			}
			if tt.wantLen > 0 {
				want := fmt.Sprintf("c%03d", tt.wantOffset)
				if got := w.Items[0].CustomerID; got != want {
					t.Errorf("first item = %s, want %s", got, want)
				}
			}
		})
	}
}

func TestFetcherBatchWindow(t *testing.T) {
	t.Parallel()

	batches := make([]churn.PredictionBatch, 7)
	for i := range batches {
		batches[i] = churn.PredictionBatch{BatchID: fmt.Sprintf("b%d", i), Status: churn.BatchCompleted}
	}
	fb := &fakeBackend{batches: batches}
	f := NewPaginatedFetcher(fb, "org-1")

	w, err := f.Batches(context.Background(), 5, 5)
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	if len(w.Items) != 2 || w.Items[0].BatchID != "b5" {
		t.Fatalf("unexpected window: %+v", w.Items)
	}
	if w.HasNext || !w.HasPrev {
		t.Fatalf("HasNext=%v HasPrev=%v, want false/true", w.HasNext, w.HasPrev)
	}
}
