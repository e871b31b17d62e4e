package transport

// frameType discriminates sync-protocol frames.
type frameType string

const (
	// Client → server.
	frameConnect     frameType = "connect"
	frameAuth        frameType = "auth"
	frameQuery       frameType = "query"
	frameMutation    frameType = "mutation"
	frameAction      frameType = "action"
	frameSubscribe   frameType = "subscribe"
	frameUnsubscribe frameType = "unsubscribe"

	// Server → client.
	frameResult frameType = "result"
	frameUpdate frameType = "update"
)

// Error kinds carried on result frames.
const (
	errorKindApplication = "application"
	errorKindServer      = "server"
	errorKindInternal    = "internal"
)

// frame is one JSON message on the sync connection. Fields are populated
// per type:
//
//   - connect: Session
//   - auth: ID, Token (absent token clears the active one)
//   - query/mutation/action: ID, Name, Args
//   - subscribe: ID, SubscriptionID, Name, Args
//   - unsubscribe: SubscriptionID
//   - result: ID, then Value or ErrorKind/ErrorMessage/ErrorData
//   - update: SubscriptionID, then Value or ErrorMessage/ErrorData
type frame struct {
	Type           frameType         `json:"type"`
	ID             string            `json:"id,omitempty"`
	Session        string            `json:"session,omitempty"`
	Name           string            `json:"name,omitempty"`
	Args           map[string]string `json:"args,omitempty"`
	SubscriptionID string            `json:"subscriptionId,omitempty"`
	Token          *string           `json:"token,omitempty"`
	Value          string            `json:"value,omitempty"`
	ErrorKind      string            `json:"errorKind,omitempty"`
	ErrorMessage   string            `json:"errorMessage,omitempty"`
	ErrorData      *string           `json:"errorData,omitempty"`
}

// resultError converts a failed result frame into the boundary error set.
func resultError(f frame) error {
	switch f.ErrorKind {
	case errorKindApplication:
		e := &AppError{Message: f.ErrorMessage}
		if f.ErrorData != nil {
			e.Data = *f.ErrorData
			e.HasData = true
		}
		return e
	case errorKindServer:
		return &ServerError{Message: f.ErrorMessage}
	case errorKindInternal:
		return &InternalError{Message: f.ErrorMessage}
	default:
		return &ServerError{Message: f.ErrorMessage}
	}
}
