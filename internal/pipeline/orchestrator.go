package pipeline

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"churnpipe/internal/apperrors"
	"churnpipe/internal/churn"
	"churnpipe/internal/config"
	"churnpipe/internal/dataset"
	"churnpipe/internal/observability"
	"churnpipe/pkg/cloudevent"
)

// State is a point-in-time snapshot of one run.
type State struct {
	RunID     string
	OrgID     string
	ModelType string
	Stage     Stage
	Status    StageStatus
	Error     string
	ErrorKind string

	Dataset      *churn.Dataset
	Model        *churn.TrainingStatus
	Batch        *churn.PredictionBatch
	Segmentation *churn.SegmentationResult
	Behavior     *churn.BehaviorResult
	Rows         []churn.PredictionRow
}

// Completed reports whether the run has finished all six stages.
func (s State) Completed() bool {
	return s.Stage == StageBehaviorAnalysis && s.Status == StageCompleted
}

// OrchestratorConfig assembles an orchestrator's collaborators.
type OrchestratorConfig struct {
	Backend   Backend
	RunID     string
	OrgID     string
	ModelType string
	Poll      config.PollConfig
	Metrics   *observability.Metrics
	Events    *EventBuilder
	Sink      EventSink
	// CallbackURL is where lifecycle events for this run are delivered.
	CallbackURL string
	Logger      *slog.Logger
}

// Orchestrator drives one run through the six pipeline stages. It is the
// single writer of run state: stage starts and poller callbacks apply
// their outcomes under the orchestrator's lock, and a generation counter
// discards callbacks from stages that have since been retried or closed.
type Orchestrator struct {
	backend     Backend
	pollCfg     config.PollConfig
	metrics     *observability.Metrics
	events      *EventBuilder
	sink        EventSink
	callbackURL string
	logger      *slog.Logger
	runID       string
	orgID       string
	modelType   string
	stages      []StageDefinition

	mu         sync.Mutex
	stage      Stage
	status     StageStatus
	generation uint64
	poller     *Poller
	closed     bool
	stageBegan time.Time
	lastErr    error
	lastInput  StartInput

	csv          *CSVUpload
	dataset      *churn.Dataset
	model        *churn.TrainingStatus
	batch        *churn.PredictionBatch
	segmentation *churn.SegmentationResult
	behavior     *churn.BehaviorResult
	rows         []churn.PredictionRow
}

// NewOrchestrator creates an orchestrator at (upload, idle).
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Events == nil {
		cfg.Events = NewEventBuilder(cfg.RunID, cfg.OrgID, "churnpipe")
	}
	o := &Orchestrator{
		backend:     cfg.Backend,
		pollCfg:     cfg.Poll,
		metrics:     cfg.Metrics,
		events:      cfg.Events,
		sink:        cfg.Sink,
		callbackURL: cfg.CallbackURL,
		logger:      logger.With("run_id", cfg.RunID, "org_id", cfg.OrgID),
		runID:       cfg.RunID,
		orgID:       cfg.OrgID,
		modelType:   cfg.ModelType,
		stage:       StageUpload,
		status:      StageIdle,
	}
	o.stages = o.stageTable()
	return o
}

// RunID returns the run's identifier.
func (o *Orchestrator) RunID() string { return o.runID }

// OrgID returns the organization the run belongs to.
func (o *Orchestrator) OrgID() string { return o.orgID }

// Fetcher returns a paginated reader over the run's backend collections.
func (o *Orchestrator) Fetcher() *PaginatedFetcher {
	return NewPaginatedFetcher(o.backend, o.orgID)
}

// Snapshot returns the current run state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := State{
		RunID:        o.runID,
		OrgID:        o.orgID,
		ModelType:    o.modelType,
		Stage:        o.stage,
		Status:       o.status,
		Dataset:      o.dataset,
		Model:        o.model,
		Batch:        o.batch,
		Segmentation: o.segmentation,
		Behavior:     o.behavior,
		Rows:         slices.Clone(o.rows),
	}
	if o.lastErr != nil {
		s.Error = o.lastErr.Error()
		s.ErrorKind = apperrors.Kind(o.lastErr)
	}
	return s
}

// Upload validates the CSV and submits it to the backend, completing the
// upload stage. Invalid files are rejected before any backend call and
// leave the run state untouched. Allowed from (upload, idle) and, after
// a failed attempt, (upload, failed).
func (o *Orchestrator) Upload(ctx context.Context, filename string, content []byte, hasLabel bool) error {
	if _, err := dataset.ValidateCSV(filename, bytes.NewReader(content)); err != nil {
		return err
	}
	in := StartInput{CSV: &CSVUpload{Filename: filename, Content: content, HasLabel: hasLabel}}

	o.mu.Lock()
	if err := o.ensureOpenLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	if o.stage != StageUpload || (o.status != StageIdle && o.status != StageFailed) {
		o.mu.Unlock()
		return apperrors.Conflict("run", o.runID, "upload is only allowed before the pipeline starts")
	}
	o.csv = in.CSV
	def, gen := o.beginLocked(in)
	o.mu.Unlock()

	return o.runStart(ctx, def, gen, in)
}

// Advance moves a completed stage to the next one, starting it if the
// stage begins on entry. Only callable from a completed, non-final stage.
func (o *Orchestrator) Advance() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.ensureOpenLocked(); err != nil {
		return err
	}
	if o.status != StageCompleted || o.stage >= stageCount {
		return apperrors.Conflict("run", o.runID, "advance requires a completed, non-final stage")
	}
	o.advanceLocked()
	return nil
}

// AnalyzeBehaviors starts the final stage. limit caps how many customers
// are analyzed; zero means the backend default. Allowed from
// (behavior_analysis, idle) and (behavior_analysis, failed).
func (o *Orchestrator) AnalyzeBehaviors(ctx context.Context, limit int) error {
	in := StartInput{Limit: limit}

	o.mu.Lock()
	if err := o.ensureOpenLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	if o.stage != StageBehaviorAnalysis || (o.status != StageIdle && o.status != StageFailed) {
		o.mu.Unlock()
		return apperrors.Conflict("run", o.runID, "behavior analysis requires the pipeline to reach its final stage")
	}
	def, gen := o.beginLocked(in)
	o.mu.Unlock()

	return o.runStart(ctx, def, gen, in)
}

// Retry re-invokes the current stage with the inputs of the failed
// attempt. Only callable from a failed stage.
func (o *Orchestrator) Retry(ctx context.Context) error {
	o.mu.Lock()
	if err := o.ensureOpenLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	if o.status != StageFailed {
		o.mu.Unlock()
		return apperrors.Conflict("run", o.runID, "retry requires a failed stage")
	}
	in := o.lastInput
	def, gen := o.beginLocked(in)
	o.mu.Unlock()

	return o.runStart(ctx, def, gen, in)
}

// Close stops any outstanding poller and permanently retires the run.
// Idempotent; blocks until no status check is in flight.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.generation++
	p := o.poller
	o.poller = nil
	o.mu.Unlock()

	if p != nil {
		// Outside the lock: Cancel waits for the polling goroutine, which
		// may itself be blocked acquiring the lock to deliver a terminal.
		p.Cancel()
		if o.metrics != nil {
			o.metrics.AddActivePollers(context.Background(), -1)
		}
	}
}

func (o *Orchestrator) ensureOpenLocked() error {
	if o.closed {
		return apperrors.NotFound("run", o.runID)
	}
	return nil
}

// beginLocked transitions the current stage to starting and invalidates
// any outstanding callbacks. Caller holds the lock and has verified the
// transition is legal.
func (o *Orchestrator) beginLocked(in StartInput) (StageDefinition, uint64) {
	o.generation++
	o.status = StageStarting
	o.lastErr = nil
	o.lastInput = in
	o.stageBegan = time.Now()
	def := o.stages[o.stage-1]
	o.logger.Info("stage starting", "stage", def.Stage.String())
	if o.metrics != nil {
		o.metrics.RecordStageStarted(context.Background(), def.Stage.String())
	}
	o.emit(o.events.BuildStageStarted(def.Stage))
	return def, o.generation
}

// runStart performs the stage's backend call outside the lock, then
// applies the outcome. Returns the start error so callers driving a
// stage synchronously can surface it.
func (o *Orchestrator) runStart(ctx context.Context, def StageDefinition, gen uint64, in StartInput) error {
	handle, result, err := def.Start(ctx, in)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || gen != o.generation {
		return nil
	}
	if err != nil {
		o.failLocked(def, err)
		return err
	}
	if handle == nil {
		def.Store(result)
		o.completeLocked(def)
		return nil
	}

	if def.StoreStart != nil {
		def.StoreStart(*handle)
	}
	o.status = StagePolling
	o.poller = NewPoller(o.wrapCheck(def), def.Poll.Interval, def.Poll.MaxAttempts,
		o.logger.With("stage", def.Stage.String()))
	if o.metrics != nil {
		o.metrics.AddActivePollers(context.Background(), 1)
	}
	o.poller.Start(func(h JobHandle) { o.handleTerminal(def, gen, h) })
	return nil
}

func (o *Orchestrator) wrapCheck(def StageDefinition) CheckFunc {
	return func(ctx context.Context) (JobHandle, error) {
		if o.metrics != nil {
			o.metrics.RecordPollAttempt(ctx, def.Stage.String())
		}
		return def.Check(ctx)
	}
}

// handleTerminal runs in the poller's goroutine once per stage at most.
func (o *Orchestrator) handleTerminal(def StageDefinition, gen uint64, h JobHandle) {
	result := h.Result
	if h.Status == JobCompleted && def.Finish != nil {
		r, err := def.Finish(context.Background(), h)
		if err != nil {
			h.Status = JobFailed
			h.Message = err.Error()
		} else {
			result = r
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || gen != o.generation {
		return
	}
	o.poller = nil
	if o.metrics != nil {
		o.metrics.AddActivePollers(context.Background(), -1)
	}
	switch h.Status {
	case JobCompleted:
		def.Store(result)
		o.completeLocked(def)
	case JobFailed:
		o.failLocked(def, apperrors.Terminal(def.Stage.String(), h.Message))
	case JobTimeout:
		o.failLocked(def, apperrors.Timeout(def.Stage.String(), "no terminal status within the attempt budget"))
	}
}

func (o *Orchestrator) completeLocked(def StageDefinition) {
	o.status = StageCompleted
	elapsed := time.Since(o.stageBegan)
	o.logger.Info("stage completed", "stage", def.Stage.String(), "duration", elapsed)
	if o.metrics != nil {
		o.metrics.RecordStageCompleted(context.Background(), def.Stage.String(), true, elapsed.Seconds())
	}
	o.emit(o.events.BuildStageCompleted(def.Stage, elapsed))

	if def.Stage == StageBehaviorAnalysis {
		o.logger.Info("run completed")
		if o.metrics != nil {
			o.metrics.RecordRunCompleted(context.Background())
		}
		o.emit(o.events.BuildRunCompleted())
		return
	}
	if def.AutoAdvance {
		o.advanceLocked()
	}
}

// advanceLocked enters the next stage. If the stage starts on entry it
// transitions straight to starting, so idle is never observable between
// auto-advancing stages.
func (o *Orchestrator) advanceLocked() {
	o.stage++
	o.status = StageIdle
	next := o.stages[o.stage-1]
	if !next.StartOnEntry {
		return
	}
	def, gen := o.beginLocked(StartInput{})
	go func() {
		// Ignore the returned error: nothing is driving this start
		// synchronously and failLocked has already recorded it.
		_ = o.runStart(context.Background(), def, gen, StartInput{})
	}()
}

func (o *Orchestrator) failLocked(def StageDefinition, err error) {
	o.status = StageFailed
	o.lastErr = err
	elapsed := time.Since(o.stageBegan)
	o.logger.Error("stage failed", "stage", def.Stage.String(), "kind", apperrors.Kind(err), "error", err)
	if o.metrics != nil {
		o.metrics.RecordStageCompleted(context.Background(), def.Stage.String(), false, elapsed.Seconds())
	}
	o.emit(o.events.BuildStageFailed(def.Stage, apperrors.Kind(err), err.Error()))
}

func (o *Orchestrator) emit(ev *cloudevent.CloudEvent) {
	if o.sink == nil || ev == nil {
		return
	}
	o.sink.Deliver(ev, o.callbackURL)
}

func (o *Orchestrator) currentDatasetID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dataset == nil {
		return ""
	}
	return o.dataset.ID
}

func (o *Orchestrator) currentBatchID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.batch == nil {
		return ""
	}
	return o.batch.BatchID
}

func (o *Orchestrator) currentCSV() *CSVUpload {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.csv
}
