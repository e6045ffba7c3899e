package pipeline

import (
	"context"

	"churnpipe/internal/churn"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// BatchWindow is one clamped page of prediction batches.
type BatchWindow struct {
	Items   []churn.PredictionBatch `json:"items"`
	Total   int                     `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
	HasNext bool                    `json:"has_next"`
	HasPrev bool                    `json:"has_prev"`
}

// PredictionWindow is one clamped page of prediction rows.
type PredictionWindow struct {
	Items   []churn.PredictionRow `json:"items"`
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
	HasNext bool                  `json:"has_next"`
	HasPrev bool                  `json:"has_prev"`
}

// PaginatedFetcher reads windows of backend result collections. Limits
// are bounded, offsets are clamped into the collection, and each window
// reports whether neighbors exist.
type PaginatedFetcher struct {
	backend Backend
	orgID   string
}

// NewPaginatedFetcher creates a fetcher scoped to one organization.
func NewPaginatedFetcher(backend Backend, orgID string) *PaginatedFetcher {
	return &PaginatedFetcher{backend: backend, orgID: orgID}
}

// Batches fetches one window of the organization's prediction batches.
func (f *PaginatedFetcher) Batches(ctx context.Context, limit, offset int) (*BatchWindow, error) {
	limit, offset = boundPage(limit, offset)
	page, err := f.backend.ListBatches(ctx, f.orgID, limit, offset)
	if err != nil {
		return nil, err
	}
	if clamped, ok := clampOffset(offset, limit, page.Total); ok {
		offset = clamped
		if page, err = f.backend.ListBatches(ctx, f.orgID, limit, offset); err != nil {
			return nil, err
		}
	}
	return &BatchWindow{
		Items:   page.Batches,
		Total:   page.Total,
		Limit:   limit,
		Offset:  offset,
		HasNext: offset+len(page.Batches) < page.Total,
		HasPrev: offset > 0,
	}, nil
}

// Predictions fetches one window of a batch's prediction rows.
func (f *PaginatedFetcher) Predictions(ctx context.Context, batchID string, limit, offset int) (*PredictionWindow, error) {
	limit, offset = boundPage(limit, offset)
	page, err := f.backend.ListPredictions(ctx, f.orgID, batchID, limit, offset)
	if err != nil {
		return nil, err
	}
	if clamped, ok := clampOffset(offset, limit, page.Total); ok {
		offset = clamped
		if page, err = f.backend.ListPredictions(ctx, f.orgID, batchID, limit, offset); err != nil {
			return nil, err
		}
	}
	return &PredictionWindow{
		Items:   page.Predictions,
		Total:   page.Total,
		Limit:   limit,
		Offset:  offset,
		HasNext: offset+len(page.Predictions) < page.Total,
		HasPrev: offset > 0,
	}, nil
}

func boundPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// clampOffset pulls an offset that ran past the collection back to the
// start of the last page. The bool reports whether a refetch is needed.
func clampOffset(offset, limit, total int) (int, bool) {
	if offset < total {
		return offset, false
	}
	if total == 0 {
		return 0, offset != 0
	}
	last := ((total - 1) / limit) * limit
	return last, last != offset
}
