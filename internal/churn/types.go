// Package churn is the HTTP client for the remote churn prediction backend.
//
// All requests are scoped to an organization; all responses carry a
// success envelope with either result fields or an error message.
package churn

import "time"

// Dataset statuses reported by the backend.
const (
	DatasetUploaded      = "uploaded"
	DatasetProcessing    = "processing"
	DatasetFeaturesReady = "features_ready"
	DatasetError         = "error"
)

// Training statuses reported by the backend.
const (
	TrainingNotStarted = "not_started"
	TrainingRunning    = "training"
	TrainingCompleted  = "completed"
	TrainingFailed     = "failed"
)

// Prediction batch statuses reported by the backend.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
)

// Dataset is a raw customer transaction CSV registered with the backend.
// Immutable once created; later stages reference it by ID.
type Dataset struct {
	ID             string `json:"dataset_id"`
	RowCount       int    `json:"row_count"`
	HasLabelColumn bool   `json:"has_churn_label"`
	Status         string `json:"status"`
	ErrorMessage   string `json:"error_message"`
}

// TrainingStatus is the state of the organization's latest training run.
// Metric values are carried exactly as the backend reports them; rounding
// is a presentation concern.
type TrainingStatus struct {
	Status          string    `json:"status"`
	ModelType       string    `json:"model_type"`
	Accuracy        float64   `json:"accuracy"`
	Precision       float64   `json:"precision"`
	Recall          float64   `json:"recall"`
	F1Score         float64   `json:"f1_score"`
	ROCAUC          float64   `json:"roc_auc"`
	TrainingSamples int       `json:"training_samples"`
	ChurnRate       float64   `json:"churn_rate"`
	TrainedAt       time.Time `json:"trained_at"`
	ErrorMessage    string    `json:"error_message"`
}

// PredictionBatch is one bulk inference run. Only the current status is
// observed; the backend keeps no status history.
type PredictionBatch struct {
	BatchID             string         `json:"batch_id"`
	BatchName           string         `json:"batch_name"`
	Status              string         `json:"status"`
	TotalCustomers      int            `json:"total_customers"`
	AvgChurnProbability float64        `json:"avg_churn_probability"`
	RiskDistribution    map[string]int `json:"risk_distribution"`
	OutputFileURL       string         `json:"output_file_url"`
	ErrorMessage        string         `json:"error_message"`
}

// PredictionRow is one customer's churn prediction. Segment and
// Recommendations are filled once segmentation and behavior analysis
// have run for the batch.
type PredictionRow struct {
	CustomerID       string    `json:"customer_id"`
	ChurnProbability float64   `json:"churn_probability"`
	RiskSegment      string    `json:"risk_segment"` // Low, Medium, High, Critical
	PredictedAt      time.Time `json:"predicted_at"`
	Segment          string    `json:"segment,omitempty"`
	Recommendations  []string  `json:"recommendations,omitempty"`
}

// SegmentationResult summarizes a segmentation pass over a batch.
type SegmentationResult struct {
	TotalCustomers int `json:"total_customers"`
	Segmented      int `json:"segmented"`
}

// BehaviorResult summarizes a behavior analysis pass.
type BehaviorResult struct {
	TotalCustomers int `json:"total_customers"`
	Analyzed       int `json:"analyzed"`
}

// BatchPage is one window of prediction batches.
type BatchPage struct {
	Batches []PredictionBatch `json:"batches"`
	Total   int               `json:"total"`
}

// PredictionPage is one window of prediction rows.
type PredictionPage struct {
	Predictions []PredictionRow `json:"predictions"`
	Total       int             `json:"total"`
}
