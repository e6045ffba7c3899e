// Package api provides the HTTP API handlers and routing for the pipeline service.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"churnpipe/internal/apperrors"
	"churnpipe/internal/churn"
	"churnpipe/internal/health"
	"churnpipe/internal/pipeline"
)

// maxUploadSize limits CSV uploads to 32MB to prevent memory exhaustion
const maxUploadSize = 32 << 20 // 32 MB

// maxRequestBodySize limits JSON request bodies to 1MB
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler contains HTTP handlers for the pipeline API
type Handler struct {
	manager *pipeline.Manager
	health  *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(manager *pipeline.Manager, healthChecker *health.Checker) *Handler {
	return &Handler{
		manager: manager,
		health:  healthChecker,
	}
}

// createRunRequest is the body of POST /v1/runs.
type createRunRequest struct {
	OrgID       string `json:"org_id"`
	ModelType   string `json:"model_type"`
	CallbackURL string `json:"callback_url"`
}

// analyzeRequest is the body of POST /v1/runs/{runId}/analyze.
type analyzeRequest struct {
	Limit int `json:"limit"`
}

// runResponse is the aggregate run state returned by most endpoints.
type runResponse struct {
	RunID       string                    `json:"run_id"`
	OrgID       string                    `json:"org_id"`
	ModelType   string                    `json:"model_type"`
	Stage       string                    `json:"stage"`
	StageNumber int                       `json:"stage_number"`
	Status      string                    `json:"status"`
	Completed   bool                      `json:"completed"`
	Error       string                    `json:"error,omitempty"`
	ErrorKind   string                    `json:"error_kind,omitempty"`
	Dataset     *churn.Dataset            `json:"dataset,omitempty"`
	Model       *churn.TrainingStatus     `json:"model,omitempty"`
	Batch       *churn.PredictionBatch    `json:"batch,omitempty"`
	Segment     *churn.SegmentationResult `json:"segmentation,omitempty"`
	Behavior    *churn.BehaviorResult     `json:"behavior_analysis,omitempty"`
	Predictions []churn.PredictionRow     `json:"predictions,omitempty"`
}

func toRunResponse(s pipeline.State) runResponse {
	return runResponse{
		RunID:       s.RunID,
		OrgID:       s.OrgID,
		ModelType:   s.ModelType,
		Stage:       s.Stage.String(),
		StageNumber: int(s.Stage),
		Status:      string(s.Status),
		Completed:   s.Completed(),
		Error:       s.Error,
		ErrorKind:   s.ErrorKind,
		Dataset:     s.Dataset,
		Model:       s.Model,
		Batch:       s.Batch,
		Segment:     s.Segmentation,
		Behavior:    s.Behavior,
		Predictions: s.Rows,
	}
}

// CreateRun handles POST /v1/runs
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	run, err := h.manager.Create(req.OrgID, req.ModelType, req.CallbackURL)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toRunResponse(run.Snapshot()))
}

// ListRuns handles GET /v1/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	states := h.manager.Snapshots()
	runs := make([]runResponse, 0, len(states))
	for _, s := range states {
		runs = append(runs, toRunResponse(s))
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// GetRun handles GET /v1/runs/{runId}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, toRunResponse(run.Snapshot()))
}

// Upload handles POST /v1/runs/{runId}/upload. The CSV arrives as a
// multipart file field named "file"; a successful upload advances the
// run into feature processing.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read file: "+err.Error())
		return
	}
	hasLabel, _ := strconv.ParseBool(r.FormValue("has_churn_label"))

	if err := run.Upload(r.Context(), header.Filename, content, hasLabel); err != nil {
		h.handleError(w, r, err)
		return
	}
	// The pipeline takes over from here.
	if err := run.Advance(); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, toRunResponse(run.Snapshot()))
}

// Retry handles POST /v1/runs/{runId}/retry
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}

	if err := run.Retry(r.Context()); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, toRunResponse(run.Snapshot()))
}

// Analyze handles POST /v1/runs/{runId}/analyze
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if err := run.AnalyzeBehaviors(r.Context(), req.Limit); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRunResponse(run.Snapshot()))
}

// DeleteRun handles DELETE /v1/runs/{runId}
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runId")
	if runID == "" {
		h.writeError(w, http.StatusBadRequest, "Run ID is required")
		return
	}

	if err := h.manager.Delete(runID); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Batches handles GET /v1/runs/{runId}/batches
func (h *Handler) Batches(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}

	limit, offset := pageParams(r)
	window, err := run.Fetcher().Batches(r.Context(), limit, offset)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, window)
}

// Predictions handles GET /v1/runs/{runId}/predictions
func (h *Handler) Predictions(w http.ResponseWriter, r *http.Request) {
	run, ok := h.run(w, r)
	if !ok {
		return
	}

	st := run.Snapshot()
	if st.Batch == nil {
		h.handleError(w, r, apperrors.Conflict("run", st.RunID, "run has no prediction batch yet"))
		return
	}

	limit, offset := pageParams(r)
	window, err := run.Fetcher().Predictions(r.Context(), st.Batch.BatchID, limit, offset)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, window)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if the churn backend is unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// run resolves the {runId} path value; writes the error response itself.
func (h *Handler) run(w http.ResponseWriter, r *http.Request) (*pipeline.Orchestrator, bool) {
	runID := r.PathValue("runId")
	if runID == "" {
		h.writeError(w, http.StatusBadRequest, "Run ID is required")
		return nil, false
	}
	run, err := h.manager.Get(runID)
	if err != nil {
		h.handleError(w, r, err)
		return nil, false
	}
	return run, true
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from the pipeline with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
