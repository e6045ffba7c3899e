package dispatcher

import (
	"churnpipe/pkg/cloudevent"
)

// Sink adapts a Dispatcher to the pipeline's event sink. Events for runs
// without a callback URL are skipped when the dispatcher needs one.
type Sink struct {
	dispatcher       Dispatcher
	signingKey       string
	needsDestination bool
}

// NewSink wraps a dispatcher. needsDestination should be true for
// dispatchers that deliver to per-run callback URLs and false for
// fixed-topic brokers.
func NewSink(d Dispatcher, signingKey string, needsDestination bool) *Sink {
	return &Sink{dispatcher: d, signingKey: signingKey, needsDestination: needsDestination}
}

// Deliver queues one lifecycle event. Best effort: queue-full errors are
// already counted and logged by the dispatcher.
func (s *Sink) Deliver(event *cloudevent.CloudEvent, destination string) {
	if s.needsDestination && destination == "" {
		return
	}
	_ = s.dispatcher.Dispatch(&Event{
		Payload:     event,
		Destination: destination,
		SigningKey:  s.signingKey,
	})
}
