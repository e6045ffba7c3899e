package pipeline

import (
	"fmt"
	"time"

	"churnpipe/pkg/cloudevent"
)

// Event types for run lifecycle callbacks.
const (
	EventTypeStageStarted   = "churnpipe.stage.started"
	EventTypeStageCompleted = "churnpipe.stage.completed"
	EventTypeStageFailed    = "churnpipe.stage.failed"
	EventTypeRunCompleted   = "churnpipe.run.completed"
)

// EventSink delivers lifecycle events to subscribers. destination is the
// run's callback URL; sinks with a fixed target may ignore it.
// Implementations must not block; the orchestrator emits while holding
// its state lock.
type EventSink interface {
	Deliver(event *cloudevent.CloudEvent, destination string)
}

// EventBuilder builds CloudEvents for run lifecycle events.
type EventBuilder struct {
	source  string
	subject string
	orgID   string
}

// NewEventBuilder creates an EventBuilder for one run.
func NewEventBuilder(runID, orgID, source string) *EventBuilder {
	return &EventBuilder{
		source:  source,
		subject: runID,
		orgID:   orgID,
	}
}

// Build creates a new CloudEvent with the given type and data.
func (b *EventBuilder) Build(eventType string, data map[string]any) *cloudevent.CloudEvent {
	eventID := fmt.Sprintf("%s-%d", b.subject, time.Now().UnixNano())
	data["runId"] = b.subject
	data["orgId"] = b.orgID
	return cloudevent.New(eventType, b.source, b.subject, eventID, data)
}

// BuildStageStarted creates a stage start event.
func (b *EventBuilder) BuildStageStarted(stage Stage) *cloudevent.CloudEvent {
	return b.Build(EventTypeStageStarted, map[string]any{
		"stage": stage.String(),
	})
}

// BuildStageCompleted creates a stage completion event.
func (b *EventBuilder) BuildStageCompleted(stage Stage, duration time.Duration) *cloudevent.CloudEvent {
	return b.Build(EventTypeStageCompleted, map[string]any{
		"stage":           stage.String(),
		"durationSeconds": duration.Seconds(),
	})
}

// BuildStageFailed creates a stage failure event.
func (b *EventBuilder) BuildStageFailed(stage Stage, kind, message string) *cloudevent.CloudEvent {
	return b.Build(EventTypeStageFailed, map[string]any{
		"stage": stage.String(),
		"kind":  kind,
		"error": message,
	})
}

// BuildRunCompleted creates a run completion event.
func (b *EventBuilder) BuildRunCompleted() *cloudevent.CloudEvent {
	return b.Build(EventTypeRunCompleted, map[string]any{})
}
