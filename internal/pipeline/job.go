// Package pipeline drives a customer dataset through the six-stage churn
// prediction workflow: upload, feature processing, training, prediction,
// segmentation and behavior analysis.
//
// # State Management
//
// The Orchestrator is the single writer of pipeline state. Pollers and
// stage callbacks never mutate state directly; they return terminal values
// that the orchestrator interprets under its own lock. A generation
// counter invalidates callbacks that outlive the stage that created them.
package pipeline

// JobStatus is the observed status of one outstanding backend operation.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobTimeout   JobStatus = "timeout"
)

// Terminal reports whether no further progress will occur without
// external intervention.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobTimeout
}

// JobHandle identifies one remote asynchronous operation and its current
// observed status. Message carries the backend's failure text verbatim;
// Result carries the stage-specific payload for terminal interpretation.
type JobHandle struct {
	ID      string
	Status  JobStatus
	Message string
	Result  any
}
