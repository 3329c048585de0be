package protocol

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Outbound request type discriminators.
const (
	TypeSubscribeRequest = "event_subscription"
	TypeStatusRequest    = "server_status_request"
	TypeMetaInfoRequest  = "meta_info_request"
)

// Request is an outbound frame sent to the authority. Every request carries a
// correlation token so responses can be tied back to their origin.
type Request struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// NewSubscribeRequest asks the authority to push live fleet events on this connection.
func NewSubscribeRequest() Request {
	return Request{Type: TypeSubscribeRequest, Token: uuid.NewString()}
}

// NewStatusRequest asks for a full authoritative state snapshot.
func NewStatusRequest() Request {
	return Request{Type: TypeStatusRequest, Token: uuid.NewString()}
}

// NewMetaInfoRequest asks for runtime meta information such as uptime counters.
func NewMetaInfoRequest() Request {
	return Request{Type: TypeMetaInfoRequest, Token: uuid.NewString()}
}

// Encode renders the request as a JSON text frame.
func (r Request) Encode() ([]byte, error) {
	return json.Marshal(r)
}
