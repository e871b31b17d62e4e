// Package wirelog captures the client's wire traffic as structured events
// for debugging mobile deployments: one event per one-shot call, result,
// subscription update and auth token change. Events encode to CBOR for
// compact on-device journals that tooling can read back.
package wirelog

// Logger is the interface applications implement to receive wire events.
// Pass nil or NoopLogger to disable journaling.
type Logger interface {
	// Log records a wire event. Implementations must be thread-safe and
	// must not block: events are emitted from the client's hot paths.
	Log(event Event)
}

// NoopLogger discards all events. Safe for concurrent use as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// MultiLogger fans events out to several loggers.
type MultiLogger []Logger

// Log forwards the event to every logger in order.
func (m MultiLogger) Log(event Event) {
	for _, l := range m {
		if l != nil {
			l.Log(event)
		}
	}
}

// Compile-time interface satisfaction checks.
var (
	_ Logger = NoopLogger{}
	_ Logger = MultiLogger{}
)
