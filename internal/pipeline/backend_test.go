package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"churnpipe/internal/churn"
)

// step is one scripted status-check outcome. The last step repeats once
// the script is exhausted.
type step struct {
	status string
	msg    string
	err    error
}

// fakeBackend scripts backend behavior per stage. Zero value plays the
// happy path: every asynchronous job reports terminal success on the
// first status check.
type fakeBackend struct {
	mu sync.Mutex

	uploadErr error
	uploads   atomic.Int64

	featureStartErr error
	datasetSteps    []step
	datasetChecks   atomic.Int64

	trainStartErr  error
	trainingSteps  []churn.TrainingStatus
	trainingChecks atomic.Int64

	predictStartErr error
	batchSteps      []churn.PredictionBatch
	batchChecks     atomic.Int64

	segmentErr error
	segments   atomic.Int64

	behaviorErr error
	analyses    atomic.Int64

	rows      []churn.PredictionRow
	batches   []churn.PredictionBatch
	listCalls atomic.Int64
}

func next[T any](mu *sync.Mutex, script *[]T, def T) T {
	mu.Lock()
	defer mu.Unlock()
	if len(*script) == 0 {
		return def
	}
	s := (*script)[0]
	if len(*script) > 1 {
		*script = (*script)[1:]
	}
	return s
}

func (f *fakeBackend) UploadDataset(_ context.Context, _, _ string, _ []byte, hasLabel bool) (*churn.Dataset, error) {
	f.uploads.Add(1)
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &churn.Dataset{ID: "ds-1", RowCount: 100, HasLabelColumn: hasLabel, Status: churn.DatasetUploaded}, nil
}

func (f *fakeBackend) StartFeatureProcessing(context.Context, string, string) error {
	return f.featureStartErr
}

func (f *fakeBackend) DatasetStatus(_ context.Context, _, datasetID string) (*churn.Dataset, error) {
	f.datasetChecks.Add(1)
	s := next(&f.mu, &f.datasetSteps, step{status: churn.DatasetFeaturesReady})
	if s.err != nil {
		return nil, s.err
	}
	return &churn.Dataset{ID: datasetID, RowCount: 100, Status: s.status, ErrorMessage: s.msg}, nil
}

func (f *fakeBackend) StartTraining(context.Context, string, string) error {
	return f.trainStartErr
}

func (f *fakeBackend) TrainingStatus(context.Context, string) (*churn.TrainingStatus, error) {
	f.trainingChecks.Add(1)
	ts := next(&f.mu, &f.trainingSteps, churn.TrainingStatus{
		Status: churn.TrainingCompleted, ModelType: "random_forest", Accuracy: 0.91,
	})
	return &ts, nil
}

func (f *fakeBackend) StartPrediction(context.Context, string, string, []byte, string) (*churn.PredictionBatch, error) {
	if f.predictStartErr != nil {
		return nil, f.predictStartErr
	}
	return &churn.PredictionBatch{BatchID: "batch-1", Status: churn.BatchProcessing}, nil
}

func (f *fakeBackend) BatchStatus(_ context.Context, _, batchID string) (*churn.PredictionBatch, error) {
	f.batchChecks.Add(1)
	b := next(&f.mu, &f.batchSteps, churn.PredictionBatch{
		BatchID: batchID, Status: churn.BatchCompleted, TotalCustomers: 3,
	})
	return &b, nil
}

func (f *fakeBackend) SegmentCustomers(context.Context, string, string) (*churn.SegmentationResult, error) {
	f.segments.Add(1)
	if f.segmentErr != nil {
		return nil, f.segmentErr
	}
	return &churn.SegmentationResult{TotalCustomers: 3, Segmented: 3}, nil
}

func (f *fakeBackend) AnalyzeBehaviors(_ context.Context, _ string, limit int) (*churn.BehaviorResult, error) {
	f.analyses.Add(1)
	if f.behaviorErr != nil {
		return nil, f.behaviorErr
	}
	n := 3
	if limit > 0 && limit < n {
		n = limit
	}
	return &churn.BehaviorResult{TotalCustomers: 3, Analyzed: n}, nil
}

func (f *fakeBackend) ListBatches(_ context.Context, _ string, limit, offset int) (*churn.BatchPage, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return &churn.BatchPage{Batches: window(f.batches, limit, offset), Total: len(f.batches)}, nil
}

func (f *fakeBackend) ListPredictions(_ context.Context, _, _ string, limit, offset int) (*churn.PredictionPage, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return &churn.PredictionPage{Predictions: window(f.rows, limit, offset), Total: len(f.rows)}, nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

var _ Backend = (*fakeBackend)(nil)
