package wirelog

import "time"

// Event is one captured wire occurrence.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// Direction indicates message flow relative to the client.
	Direction Direction `cbor:"2,keyasint"`

	// Kind classifies the event.
	Kind Kind `cbor:"3,keyasint"`

	// Function is the platform function name, when the event concerns one.
	Function string `cbor:"4,keyasint,omitempty"`

	// CallKey is the subscription Call Key in "name?args" form.
	CallKey string `cbor:"5,keyasint,omitempty"`

	// Payload is the wire text carried by the event, when capture is
	// enabled. Results and updates can be large; producers may truncate.
	Payload string `cbor:"6,keyasint,omitempty"`

	// ErrorClass names the failure taxonomy member for error events.
	ErrorClass string `cbor:"7,keyasint,omitempty"`

	// Message is the error or lifecycle detail text.
	Message string `cbor:"8,keyasint,omitempty"`
}

// Direction indicates message flow relative to the client.
type Direction uint8

const (
	// DirectionIn indicates data arriving from the deployment.
	DirectionIn Direction = 0
	// DirectionOut indicates data sent to the deployment.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Kind classifies a wire event.
type Kind uint8

const (
	// KindCall is an outgoing one-shot query/mutation/action request.
	KindCall Kind = 0
	// KindResult is the outcome of a one-shot call.
	KindResult Kind = 1
	// KindSubscribe is a subscription registration.
	KindSubscribe Kind = 2
	// KindUnsubscribe is a subscription cancellation.
	KindUnsubscribe Kind = 3
	// KindUpdate is a pushed subscription update.
	KindUpdate Kind = 4
	// KindAuth is a bearer token install or clear.
	KindAuth Kind = 5
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCall:
		return "CALL"
	case KindResult:
		return "RESULT"
	case KindSubscribe:
		return "SUBSCRIBE"
	case KindUnsubscribe:
		return "UNSUBSCRIBE"
	case KindUpdate:
		return "UPDATE"
	case KindAuth:
		return "AUTH"
	default:
		return "UNKNOWN"
	}
}
