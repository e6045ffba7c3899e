//go:build e2e

// Package e2e exercises the full service over HTTP: the API router, the
// run manager, the real churn client against a fake backend server, and
// callback delivery through the memory dispatcher.
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"churnpipe/internal/api"
	"churnpipe/internal/churn"
	"churnpipe/internal/config"
	"churnpipe/internal/dispatcher"
	"churnpipe/internal/health"
	"churnpipe/internal/pipeline"
	"churnpipe/internal/testutil"
)

const sampleCSV = "customer_id,event_date,amount\nc1,2025-01-01,12.50\nc2,2025-01-02,3.20\nc3,2025-01-03,7.00\n"

// churnBackend is a fake churn prediction service speaking the backend's
// success-envelope wire format. Polled stages report one in-flight status
// before turning terminal.
type churnBackend struct {
	datasetChecks  atomic.Int64
	trainingChecks atomic.Int64
	batchChecks    atomic.Int64
}

func (b *churnBackend) handler() http.Handler {
	mux := http.NewServeMux()
	ok := func(w http.ResponseWriter, fields map[string]any) {
		fields["success"] = true
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(fields)
	}

	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{})
	})
	mux.HandleFunc("POST /api/v1/organizations/{org}/upload-dataset", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{"dataset_id": "ds-1", "row_count": 3, "status": churn.DatasetUploaded})
	})
	mux.HandleFunc("POST /api/v1/organizations/{org}/datasets/{id}/process-features", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{})
	})
	mux.HandleFunc("GET /api/v1/organizations/{org}/datasets/{id}", func(w http.ResponseWriter, r *http.Request) {
		status := churn.DatasetProcessing
		if b.datasetChecks.Add(1) > 1 {
			status = churn.DatasetFeaturesReady
		}
		ok(w, map[string]any{"dataset_id": r.PathValue("id"), "row_count": 3, "status": status})
	})
	mux.HandleFunc("POST /api/v1/organizations/{org}/train", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{})
	})
	mux.HandleFunc("GET /api/v1/organizations/{org}/training-status", func(w http.ResponseWriter, r *http.Request) {
		status := churn.TrainingRunning
		if b.trainingChecks.Add(1) > 1 {
			status = churn.TrainingCompleted
		}
		ok(w, map[string]any{"status": status, "model_type": "random_forest", "accuracy": 0.91})
	})
	mux.HandleFunc("POST /api/v1/organizations/{org}/predict-bulk", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{
			"batch_id":   "batch-1",
			"batch_name": r.URL.Query().Get("batch_name"),
			"status":     churn.BatchProcessing,
		})
	})
	mux.HandleFunc("GET /api/v1/organizations/{org}/prediction-batches/{id}", func(w http.ResponseWriter, r *http.Request) {
		status := churn.BatchProcessing
		if b.batchChecks.Add(1) > 1 {
			status = churn.BatchCompleted
		}
		ok(w, map[string]any{"batch_id": r.PathValue("id"), "status": status, "total_customers": 3})
	})
	mux.HandleFunc("GET /api/v1/organizations/{org}/prediction-batches", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{
			"batches": []map[string]any{{"batch_id": "batch-1", "status": churn.BatchCompleted}},
			"total":   1,
		})
	})
	mux.HandleFunc("GET /api/v1/organizations/{org}/prediction-batches/{id}/predictions", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{
			"predictions": []map[string]any{
				{"customer_id": "c1", "churn_probability": 0.82, "risk_segment": "High"},
				{"customer_id": "c2", "churn_probability": 0.21, "risk_segment": "Low"},
				{"customer_id": "c3", "churn_probability": 0.55, "risk_segment": "Medium"},
			},
			"total": 3,
		})
	})
	mux.HandleFunc("POST /api/v1/organizations/{org}/segment", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{"total_customers": 3, "segmented": 3})
	})
	mux.HandleFunc("POST /api/v1/organizations/{org}/analyze-behaviors", func(w http.ResponseWriter, r *http.Request) {
		ok(w, map[string]any{"total_customers": 3, "analyzed": 3})
	})
	return mux
}

// callbackReceiver collects CloudEvents delivered to the run's callback URL.
type callbackReceiver struct {
	mu     sync.Mutex
	types  []string
	counts atomic.Int64
}

func (c *callbackReceiver) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.types = append(c.types, r.Header.Get("Ce-Type"))
		c.mu.Unlock()
		c.counts.Add(1)
		w.WriteHeader(http.StatusOK)
	})
}

func (c *callbackReceiver) received(eventType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range c.types {
		if t == eventType {
			return true
		}
	}
	return false
}

func TestPipelineEndToEnd(t *testing.T) {
	backend := &churnBackend{}
	backendSrv := httptest.NewServer(backend.handler())
	defer backendSrv.Close()

	receiver := &callbackReceiver{}
	callbackSrv := httptest.NewServer(receiver.handler())
	defer callbackSrv.Close()

	client := churn.New(config.BackendConfig{
		BaseURL: backendSrv.URL + "/api/v1",
		Timeout: 5 * time.Second,
	})

	memory := dispatcher.NewMemory(dispatcher.MemoryConfig{}, nil, slog.New(slog.DiscardHandler))
	sink := dispatcher.NewSink(memory, "e2e-signing-key", true)

	manager := pipeline.NewManager(pipeline.ManagerConfig{
		Backend: client,
		Poll: config.PollConfig{
			FeatureProcessing: config.PollSpec{Interval: 5 * time.Millisecond, MaxAttempts: 100},
			Training:          config.PollSpec{Interval: 5 * time.Millisecond},
			Prediction:        config.PollSpec{Interval: 5 * time.Millisecond},
		},
		Sink:   sink,
		Source: "/e2e/pipeline-service",
		Logger: slog.New(slog.DiscardHandler),
	})
	defer manager.Close()

	router := api.NewRouter(api.RouterConfig{
		Manager:       manager,
		HealthChecker: health.NewChecker(client),
	})
	apiSrv := httptest.NewServer(router)
	defer apiSrv.Close()

	// Create a run with a callback URL.
	createBody, _ := json.Marshal(map[string]string{
		"org_id":       "acme",
		"model_type":   "gradient_boosting",
		"callback_url": callbackSrv.URL,
	})
	resp, err := http.Post(apiSrv.URL+"/v1/runs", "application/json", bytes.NewReader(createBody))
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create run: status = %d", resp.StatusCode)
	}
	var created struct {
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	resp.Body.Close()

	// Upload the CSV; the pipeline runs through segmentation on its own.
	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, _ := mw.CreateFormFile("file", "customers.csv")
	_, _ = fw.Write([]byte(sampleCSV))
	_ = mw.WriteField("has_churn_label", "true")
	_ = mw.Close()

	resp, err = http.Post(apiSrv.URL+"/v1/runs/"+created.RunID+"/upload", mw.FormDataContentType(), &form)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("upload: status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	getRun := func() map[string]any {
		r, err := http.Get(apiSrv.URL + "/v1/runs/" + created.RunID)
		if err != nil {
			t.Fatalf("get run: %v", err)
		}
		defer r.Body.Close()
		var state map[string]any
		if err := json.NewDecoder(r.Body).Decode(&state); err != nil {
			t.Fatalf("decode run: %v", err)
		}
		return state
	}

	testutil.MustWaitFor(t, func() bool {
		st := getRun()
		return st["stage"] == "behavior_analysis" && st["status"] == "idle"
	}, testutil.WithTimeout(10*time.Second))

	st := getRun()
	if st["error"] != nil && st["error"] != "" {
		t.Fatalf("pipeline failed: %v", st["error"])
	}

	// Final stage is manual.
	resp, err = http.Post(apiSrv.URL+"/v1/runs/"+created.RunID+"/analyze", "application/json", bytes.NewReader([]byte(`{"limit":100}`)))
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("analyze: status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	st = getRun()
	if st["completed"] != true {
		t.Fatalf("run not completed: %v", st)
	}
	if preds, ok := st["predictions"].([]any); !ok || len(preds) != 3 {
		t.Errorf("predictions = %v, want 3 rows", st["predictions"])
	}

	// Prediction windows come straight from the backend.
	r, err := http.Get(fmt.Sprintf("%s/v1/runs/%s/predictions?limit=2&offset=0", apiSrv.URL, created.RunID))
	if err != nil {
		t.Fatalf("predictions: %v", err)
	}
	if r.StatusCode != http.StatusOK {
		t.Fatalf("predictions: status = %d", r.StatusCode)
	}
	r.Body.Close()

	// Lifecycle events reach the callback URL, eventually including the
	// run-completed event.
	testutil.MustWaitFor(t, func() bool {
		return receiver.received("churnpipe.run.completed")
	}, testutil.WithTimeout(10*time.Second))
	if !receiver.received("churnpipe.stage.completed") {
		t.Error("no stage.completed event delivered")
	}
}
