package pipeline

import (
	"context"

	"churnpipe/internal/churn"
)

// Backend is the churn prediction service surface the pipeline drives.
// *churn.Client is the production implementation; tests substitute fakes.
type Backend interface {
	UploadDataset(ctx context.Context, orgID, filename string, content []byte, hasLabel bool) (*churn.Dataset, error)
	StartFeatureProcessing(ctx context.Context, orgID, datasetID string) error
	DatasetStatus(ctx context.Context, orgID, datasetID string) (*churn.Dataset, error)
	StartTraining(ctx context.Context, orgID, modelType string) error
	TrainingStatus(ctx context.Context, orgID string) (*churn.TrainingStatus, error)
	StartPrediction(ctx context.Context, orgID, filename string, content []byte, batchName string) (*churn.PredictionBatch, error)
	BatchStatus(ctx context.Context, orgID, batchID string) (*churn.PredictionBatch, error)
	SegmentCustomers(ctx context.Context, orgID, batchID string) (*churn.SegmentationResult, error)
	AnalyzeBehaviors(ctx context.Context, orgID string, limit int) (*churn.BehaviorResult, error)
	ListBatches(ctx context.Context, orgID string, limit, offset int) (*churn.BatchPage, error)
	ListPredictions(ctx context.Context, orgID, batchID string, limit, offset int) (*churn.PredictionPage, error)
}

var _ Backend = (*churn.Client)(nil)
