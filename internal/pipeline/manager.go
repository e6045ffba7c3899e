package pipeline

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"churnpipe/internal/apperrors"
	"churnpipe/internal/config"
	"churnpipe/internal/observability"
)

// DefaultModelType is used when a run is created without one.
const DefaultModelType = "random_forest"

var modelTypes = map[string]bool{
	"random_forest":       true,
	"gradient_boosting":   true,
	"logistic_regression": true,
}

// ManagerConfig assembles the manager's collaborators, shared by every
// run it creates.
type ManagerConfig struct {
	Backend Backend
	Poll    config.PollConfig
	Metrics *observability.Metrics
	Sink    EventSink
	// Source is the CloudEvents source URI stamped on lifecycle events.
	Source string
	Logger *slog.Logger
}

// Manager owns the set of live runs. Each organization may have at most
// one run in flight; finished runs stay retrievable until deleted.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	mu    sync.Mutex
	runs  map[string]*Orchestrator
	byOrg map[string]string
}

// NewManager creates an empty run manager.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.With("component", "pipeline-manager"),
		runs:   make(map[string]*Orchestrator),
		byOrg:  make(map[string]string),
	}
}

// Create registers a new run for an organization. modelType defaults to
// DefaultModelType; callbackURL is optional and must be an http(s) URL.
// Fails with a conflict while the organization has an unfinished run.
func (m *Manager) Create(orgID, modelType, callbackURL string) (*Orchestrator, error) {
	if orgID == "" {
		return nil, apperrors.Validation("org_id", "org_id is required")
	}
	if modelType == "" {
		modelType = DefaultModelType
	}
	if !modelTypes[modelType] {
		return nil, apperrors.Validation("model_type", fmt.Sprintf("unknown model type %q", modelType))
	}
	if callbackURL != "" {
		u, err := url.Parse(callbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, apperrors.Validation("callback_url", "callback_url must be an http(s) URL")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existingID, ok := m.byOrg[orgID]; ok {
		if !m.runs[existingID].Snapshot().Completed() {
			return nil, apperrors.Conflict("run", existingID, "organization already has a run in flight")
		}
	}

	runID := uuid.NewString()
	o := NewOrchestrator(OrchestratorConfig{
		Backend:     m.cfg.Backend,
		RunID:       runID,
		OrgID:       orgID,
		ModelType:   modelType,
		Poll:        m.cfg.Poll,
		Metrics:     m.cfg.Metrics,
		Events:      NewEventBuilder(runID, orgID, m.cfg.Source),
		Sink:        m.cfg.Sink,
		CallbackURL: callbackURL,
		Logger:      m.logger,
	})
	m.runs[runID] = o
	m.byOrg[orgID] = runID
	m.logger.Info("run created", "run_id", runID, "org_id", orgID, "model_type", modelType)
	return o, nil
}

// Get returns a live run by ID.
func (m *Manager) Get(runID string) (*Orchestrator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.runs[runID]
	if !ok {
		return nil, apperrors.NotFound("run", runID)
	}
	return o, nil
}

// Delete disposes a run, cancelling any active poller.
func (m *Manager) Delete(runID string) error {
	m.mu.Lock()
	o, ok := m.runs[runID]
	if !ok {
		m.mu.Unlock()
		return apperrors.NotFound("run", runID)
	}
	delete(m.runs, runID)
	if m.byOrg[o.OrgID()] == runID {
		delete(m.byOrg, o.OrgID())
	}
	m.mu.Unlock()

	o.Close()
	m.logger.Info("run deleted", "run_id", runID)
	return nil
}

// Snapshots returns the state of every live run.
func (m *Manager) Snapshots() []State {
	m.mu.Lock()
	runs := make([]*Orchestrator, 0, len(m.runs))
	for _, o := range m.runs {
		runs = append(runs, o)
	}
	m.mu.Unlock()

	states := make([]State, 0, len(runs))
	for _, o := range runs {
		states = append(states, o.Snapshot())
	}
	return states
}

// Close disposes every run. Called on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	runs := make([]*Orchestrator, 0, len(m.runs))
	for _, o := range m.runs {
		runs = append(runs, o)
	}
	m.runs = make(map[string]*Orchestrator)
	m.byOrg = make(map[string]string)
	m.mu.Unlock()

	for _, o := range runs {
		o.Close()
	}
}
