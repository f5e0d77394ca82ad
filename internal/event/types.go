package event

// Event is implemented by payloads that carry a type label used for
// filtering and metrics.
type Event interface {
	EventType() string
}
