package pipeline

import (
	"context"

	"churnpipe/internal/churn"
	"churnpipe/internal/config"
)

// Stage is one of the six pipeline stages, in fixed order.
type Stage int

const (
	StageUpload Stage = iota + 1
	StageFeatureProcessing
	StageTraining
	StagePrediction
	StageSegmentation
	StageBehaviorAnalysis
)

const stageCount = 6

func (s Stage) String() string {
	switch s {
	case StageUpload:
		return "upload"
	case StageFeatureProcessing:
		return "feature_processing"
	case StageTraining:
		return "training"
	case StagePrediction:
		return "prediction"
	case StageSegmentation:
		return "segmentation"
	case StageBehaviorAnalysis:
		return "behavior_analysis"
	default:
		return "unknown"
	}
}

// StageStatus is the orchestrator's view of the current stage.
type StageStatus string

const (
	StageIdle      StageStatus = "idle"
	StageStarting  StageStatus = "starting"
	StagePolling   StageStatus = "polling"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// CSVUpload is a customer CSV submitted by the caller. The orchestrator
// retains it so the prediction stage can reuse the same file.
type CSVUpload struct {
	Filename string
	Content  []byte
	HasLabel bool
}

// StartInput carries the caller-supplied inputs a stage start may need.
type StartInput struct {
	CSV   *CSVUpload
	Limit int
}

// StageDefinition describes how one stage starts, polls and records
// results. Stages with a zero Poll interval complete synchronously
// inside Start.
type StageDefinition struct {
	Stage Stage
	Poll  config.PollSpec

	// StartOnEntry begins the stage as soon as the orchestrator enters
	// it; otherwise the stage waits for a caller action.
	StartOnEntry bool
	// AutoAdvance moves to the next stage immediately on completion.
	AutoAdvance bool

	// Start kicks off the stage. Polled stages return the handle to
	// watch; synchronous stages return a nil handle and their result.
	Start func(ctx context.Context, in StartInput) (*JobHandle, any, error)
	// Check performs one status poll. Terminal handles carry the decoded
	// backend payload in Result. Nil for synchronous stages.
	Check CheckFunc
	// Finish post-processes a completed handle outside the state lock,
	// returning the result to record. Optional; defaults to h.Result.
	Finish func(ctx context.Context, h JobHandle) (any, error)
	// Store records the stage result. Invoked under the state lock.
	Store func(result any)
	// StoreStart records the initial payload of a polled stage before
	// polling begins. Invoked under the state lock. Optional.
	StoreStart func(h JobHandle)
}

// predictionResult bundles a completed batch with its first page of rows.
type predictionResult struct {
	batch *churn.PredictionBatch
	rows  []churn.PredictionRow
}

// behaviorResult bundles the analysis summary with the refreshed rows.
type behaviorResult struct {
	analysis *churn.BehaviorResult
	rows     []churn.PredictionRow
}

const predictionPageSize = 100

func (o *Orchestrator) stageTable() []StageDefinition {
	return []StageDefinition{
		{
			Stage: StageUpload,
			Start: func(ctx context.Context, in StartInput) (*JobHandle, any, error) {
				ds, err := o.backend.UploadDataset(ctx, o.orgID, in.CSV.Filename, in.CSV.Content, in.CSV.HasLabel)
				if err != nil {
					return nil, nil, err
				}
				return nil, ds, nil
			},
			Store: func(result any) { o.dataset = result.(*churn.Dataset) },
		},
		{
			Stage:        StageFeatureProcessing,
			Poll:         o.pollCfg.FeatureProcessing,
			StartOnEntry: true,
			AutoAdvance:  true,
			Start: func(ctx context.Context, _ StartInput) (*JobHandle, any, error) {
				id := o.currentDatasetID()
				if err := o.backend.StartFeatureProcessing(ctx, o.orgID, id); err != nil {
					return nil, nil, err
				}
				return &JobHandle{ID: id, Status: JobRunning}, nil, nil
			},
			Check: func(ctx context.Context) (JobHandle, error) {
				ds, err := o.backend.DatasetStatus(ctx, o.orgID, o.currentDatasetID())
				if err != nil {
					return JobHandle{}, err
				}
				h := JobHandle{ID: ds.ID, Status: JobRunning, Result: ds}
				switch ds.Status {
				case churn.DatasetFeaturesReady:
					h.Status = JobCompleted
				case churn.DatasetError:
					h.Status = JobFailed
					h.Message = ds.ErrorMessage
				}
				return h, nil
			},
			Store: func(result any) { o.dataset = result.(*churn.Dataset) },
		},
		{
			Stage:        StageTraining,
			Poll:         o.pollCfg.Training,
			StartOnEntry: true,
			AutoAdvance:  true,
			Start: func(ctx context.Context, _ StartInput) (*JobHandle, any, error) {
				if err := o.backend.StartTraining(ctx, o.orgID, o.modelType); err != nil {
					return nil, nil, err
				}
				return &JobHandle{ID: o.orgID, Status: JobRunning}, nil, nil
			},
			Check: func(ctx context.Context) (JobHandle, error) {
				ts, err := o.backend.TrainingStatus(ctx, o.orgID)
				if err != nil {
					return JobHandle{}, err
				}
				h := JobHandle{ID: o.orgID, Status: JobRunning, Result: ts}
				switch ts.Status {
				case churn.TrainingCompleted:
					h.Status = JobCompleted
				case churn.TrainingFailed:
					h.Status = JobFailed
					h.Message = ts.ErrorMessage
				}
				return h, nil
			},
			Store: func(result any) { o.model = result.(*churn.TrainingStatus) },
		},
		{
			Stage:        StagePrediction,
			Poll:         o.pollCfg.Prediction,
			StartOnEntry: true,
			AutoAdvance:  true,
			Start: func(ctx context.Context, _ StartInput) (*JobHandle, any, error) {
				csv := o.currentCSV()
				b, err := o.backend.StartPrediction(ctx, o.orgID, csv.Filename, csv.Content, "run-"+o.runID)
				if err != nil {
					return nil, nil, err
				}
				return &JobHandle{ID: b.BatchID, Status: JobRunning, Result: b}, nil, nil
			},
			StoreStart: func(h JobHandle) { o.batch = h.Result.(*churn.PredictionBatch) },
			Check: func(ctx context.Context) (JobHandle, error) {
				b, err := o.backend.BatchStatus(ctx, o.orgID, o.currentBatchID())
				if err != nil {
					return JobHandle{}, err
				}
				h := JobHandle{ID: b.BatchID, Status: JobRunning, Result: b}
				switch b.Status {
				case churn.BatchCompleted:
					h.Status = JobCompleted
				case churn.BatchFailed:
					h.Status = JobFailed
					h.Message = b.ErrorMessage
				}
				return h, nil
			},
			Finish: func(ctx context.Context, h JobHandle) (any, error) {
				b := h.Result.(*churn.PredictionBatch)
				res := &predictionResult{batch: b}
				page, err := o.backend.ListPredictions(ctx, o.orgID, b.BatchID, predictionPageSize, 0)
				if err != nil {
					// Rows stay fetchable on demand; the batch itself completed.
					o.logger.Warn("loading predictions after batch completion failed",
						"batch_id", b.BatchID, "error", err)
					return res, nil
				}
				res.rows = page.Predictions
				return res, nil
			},
			Store: func(result any) {
				r := result.(*predictionResult)
				o.batch = r.batch
				if r.rows != nil {
					o.rows = r.rows
				}
			},
		},
		{
			Stage:        StageSegmentation,
			StartOnEntry: true,
			AutoAdvance:  true,
			Start: func(ctx context.Context, _ StartInput) (*JobHandle, any, error) {
				res, err := o.backend.SegmentCustomers(ctx, o.orgID, o.currentBatchID())
				if err != nil {
					return nil, nil, err
				}
				return nil, res, nil
			},
			Store: func(result any) { o.segmentation = result.(*churn.SegmentationResult) },
		},
		{
			Stage: StageBehaviorAnalysis,
			Start: func(ctx context.Context, in StartInput) (*JobHandle, any, error) {
				analysis, err := o.backend.AnalyzeBehaviors(ctx, o.orgID, in.Limit)
				if err != nil {
					return nil, nil, err
				}
				res := &behaviorResult{analysis: analysis}
				page, err := o.backend.ListPredictions(ctx, o.orgID, o.currentBatchID(), predictionPageSize, 0)
				if err != nil {
					o.logger.Warn("refreshing predictions after behavior analysis failed", "error", err)
					return nil, res, nil
				}
				res.rows = page.Predictions
				return nil, res, nil
			},
			Store: func(result any) {
				r := result.(*behaviorResult)
				o.behavior = r.analysis
				if r.rows != nil {
					o.rows = r.rows
				}
			},
		},
	}
}
