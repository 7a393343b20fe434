package broker

// Message kinds accepted by the broker. These mirror the wire protocol
// spoken over the agent's message channel.
const (
	KindClassifyContent    = "classifyContent"
	KindUpdateRegistration = "updateRegistration"
)

// ErrUnknownMessage is the error string returned for unrecognized kinds.
const ErrUnknownMessage = "Unknown message type"

// Request is a message addressed to the broker.
type Request struct {
	Type string `json:"type"`

	// classifyContent fields
	URL  string `json:"url,omitempty"`
	Text string `json:"text,omitempty"`

	// updateRegistration fields
	Registered bool   `json:"registered,omitempty"`
	DeviceID   string `json:"deviceId,omitempty"`
}

// Response is the single reply every request receives. Exactly one of the
// field groups is populated depending on the request kind.
type Response struct {
	Block   *bool  `json:"block,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Success *bool  `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Verdict is the remote service's block/allow decision for a page load.
type Verdict struct {
	Block  bool   `json:"block"`
	Reason string `json:"reason,omitempty"`
}

// verdictResponse wraps a verdict as a message response.
func verdictResponse(v Verdict) Response {
	block := v.Block
	return Response{Block: &block, Reason: v.Reason}
}

// ackResponse is the synchronous acknowledgment for registration updates.
func ackResponse() Response {
	ok := true
	return Response{Success: &ok}
}

// errorResponse wraps a protocol failure as a structured response.
func errorResponse(msg string) Response {
	return Response{Error: msg}
}
