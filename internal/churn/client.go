package churn

import (
	"bytes"
	"churnpipe/internal/apperrors"
	"churnpipe/internal/config"
	"churnpipe/pkg/backoff"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client talks to the churn backend. Transient failures (network errors,
// 5xx responses) are retried with exponential backoff; 4xx responses are
// returned immediately.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	logger     *slog.Logger
}

// New creates a backend client.
func New(cfg config.BackendConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		maxRetries: cfg.MaxRetries,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: slog.With("component", "churn-client"),
	}
}

// Ping checks backend reachability for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("churn backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("churn backend unhealthy: HTTP %d", resp.StatusCode)
	}
	return nil
}

// UploadDataset registers a customer transaction CSV. Synchronous: the
// backend answers with the created dataset or rejects the file outright.
func (c *Client) UploadDataset(ctx context.Context, orgID, filename string, content []byte, hasLabel bool) (*Dataset, error) {
	body, contentType, err := csvForm(filename, content, nil)
	if err != nil {
		return nil, apperrors.Internal("churn.uploadDataset", err)
	}

	path := fmt.Sprintf("/organizations/%s/upload-dataset", orgID)
	query := url.Values{"has_churn_label": {strconv.FormatBool(hasLabel)}}

	var out Dataset
	if err := c.do(ctx, "churn.uploadDataset", http.MethodPost, path, query, contentType, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartFeatureProcessing kicks off feature engineering for a dataset.
// The work completes out-of-band; observe it via DatasetStatus.
func (c *Client) StartFeatureProcessing(ctx context.Context, orgID, datasetID string) error {
	path := fmt.Sprintf("/organizations/%s/datasets/%s/process-features", orgID, datasetID)
	return c.do(ctx, "churn.processFeatures", http.MethodPost, path, nil, "", nil, nil)
}

// DatasetStatus returns the current status of a dataset.
func (c *Client) DatasetStatus(ctx context.Context, orgID, datasetID string) (*Dataset, error) {
	path := fmt.Sprintf("/organizations/%s/datasets/%s", orgID, datasetID)
	var out Dataset
	if err := c.do(ctx, "churn.datasetStatus", http.MethodGet, path, nil, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartTraining kicks off model training for the organization's latest
// feature set.
func (c *Client) StartTraining(ctx context.Context, orgID, modelType string) error {
	path := fmt.Sprintf("/organizations/%s/train", orgID)
	query := url.Values{"model_type": {modelType}}
	return c.do(ctx, "churn.train", http.MethodPost, path, query, "", nil, nil)
}

// TrainingStatus returns the latest training run's status and metrics.
func (c *Client) TrainingStatus(ctx context.Context, orgID string) (*TrainingStatus, error) {
	path := fmt.Sprintf("/organizations/%s/training-status", orgID)
	var out TrainingStatus
	if err := c.do(ctx, "churn.trainingStatus", http.MethodGet, path, nil, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartPrediction uploads a CSV for bulk inference and creates a batch.
func (c *Client) StartPrediction(ctx context.Context, orgID, filename string, content []byte, batchName string) (*PredictionBatch, error) {
	body, contentType, err := csvForm(filename, content, nil)
	if err != nil {
		return nil, apperrors.Internal("churn.predictBulk", err)
	}

	path := fmt.Sprintf("/organizations/%s/predict-bulk", orgID)
	var query url.Values
	if batchName != "" {
		query = url.Values{"batch_name": {batchName}}
	}

	var out PredictionBatch
	if err := c.do(ctx, "churn.predictBulk", http.MethodPost, path, query, contentType, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchStatus returns the current state of a prediction batch.
func (c *Client) BatchStatus(ctx context.Context, orgID, batchID string) (*PredictionBatch, error) {
	path := fmt.Sprintf("/organizations/%s/prediction-batches/%s", orgID, batchID)
	var out PredictionBatch
	if err := c.do(ctx, "churn.batchStatus", http.MethodGet, path, nil, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SegmentCustomers runs segmentation over a batch. Single request/response.
func (c *Client) SegmentCustomers(ctx context.Context, orgID, batchID string) (*SegmentationResult, error) {
	path := fmt.Sprintf("/organizations/%s/segment", orgID)
	query := url.Values{"batch_id": {batchID}}
	var out SegmentationResult
	if err := c.do(ctx, "churn.segment", http.MethodPost, path, query, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AnalyzeBehaviors runs behavior analysis for the organization's customers.
// limit 0 analyzes everyone.
func (c *Client) AnalyzeBehaviors(ctx context.Context, orgID string, limit int) (*BehaviorResult, error) {
	path := fmt.Sprintf("/organizations/%s/analyze-behaviors", orgID)
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out BehaviorResult
	if err := c.do(ctx, "churn.analyzeBehaviors", http.MethodPost, path, query, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBatches returns one page of the organization's prediction batches.
func (c *Client) ListBatches(ctx context.Context, orgID string, limit, offset int) (*BatchPage, error) {
	path := fmt.Sprintf("/organizations/%s/prediction-batches", orgID)
	query := pageQuery(limit, offset)
	var out BatchPage
	if err := c.do(ctx, "churn.listBatches", http.MethodGet, path, query, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListPredictions returns one page of a batch's prediction rows.
func (c *Client) ListPredictions(ctx context.Context, orgID, batchID string, limit, offset int) (*PredictionPage, error) {
	path := fmt.Sprintf("/organizations/%s/prediction-batches/%s/predictions", orgID, batchID)
	query := pageQuery(limit, offset)
	var out PredictionPage
	if err := c.do(ctx, "churn.listPredictions", http.MethodGet, path, query, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pageQuery(limit, offset int) url.Values {
	return url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
}

// envelope is the backend's response wrapper.
type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// do issues one backend request with transient retry and decodes the
// result fields into out (may be nil when only the envelope matters).
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, contentType string, body []byte, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return apperrors.Internal(op, ctx.Err())
			case <-time.After(backoff.Exponential(attempt, &backoff.Config{Jitter: true})):
			}
			c.logger.Debug("Retrying backend request", "op", op, "attempt", attempt)
		}

		var reqBody io.Reader
		if body != nil {
			reqBody = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
		if err != nil {
			return apperrors.Internal(op, err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue // network error, retry
		}

		done, err := c.decode(op, resp, out)
		if done {
			return err
		}
		lastErr = err
	}
	return apperrors.Internal(op, lastErr)
}

// decode reads one response. Returns done=false when the request should be
// retried (5xx).
func (c *Client) decode(op string, resp *http.Response, out any) (done bool, err error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return false, err
	}

	if resp.StatusCode >= 500 {
		return false, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiMessage(data))
	}

	if resp.StatusCode >= 400 {
		msg := apiMessage(data)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return true, &apperrors.Error{Sentinel: apperrors.ErrNotFound, Message: msg, Op: op}
		case http.StatusBadRequest:
			return true, apperrors.Validation("request", msg)
		default:
			return true, apperrors.Internal(op, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg))
		}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return true, apperrors.Internal(op, fmt.Errorf("malformed response: %w", err))
	}
	if !env.Success {
		return true, apperrors.Internal(op, fmt.Errorf("backend error: %s", env.Error))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return true, apperrors.Internal(op, fmt.Errorf("malformed response: %w", err))
		}
	}
	return true, nil
}

// apiMessage extracts the error message from a response body, falling back
// to the raw body.
func apiMessage(data []byte) string {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Error != "" {
		return env.Error
	}
	if len(data) > 200 {
		data = data[:200]
	}
	return string(data)
}

// csvForm builds a multipart form with a single CSV file part.
func csvForm(filename string, content []byte, fields map[string]string) (body []byte, contentType string, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
