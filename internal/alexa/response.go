package alexa

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Response is the envelope returned for every directive.
type Response struct {
	Context *Context `json:"context,omitempty"`
	Event   Event    `json:"event"`
}

// Context carries reported properties.
type Context struct {
	Properties []json.RawMessage `json:"properties"`
}

// Event is the body of a response or proactive report.
type Event struct {
	Header   Header    `json:"header"`
	Endpoint *Endpoint `json:"endpoint,omitempty"`
	Payload  any       `json:"payload"`
}

// NewMessageID returns a fresh message id.
func NewMessageID() string {
	return uuid.NewString()
}

// NewHeader builds a v3 header, echoing correlationToken when set.
func NewHeader(namespace, name, correlationToken string) Header {
	return Header{
		Namespace:        namespace,
		Name:             name,
		PayloadVersion:   PayloadVersion,
		MessageID:        NewMessageID(),
		CorrelationToken: correlationToken,
	}
}

// NewErrorResponse builds an Alexa.ErrorResponse.
func NewErrorResponse(errType, message, correlationToken string) *Response {
	return &Response{
		Event: Event{
			Header: NewHeader(NamespaceAlexa, NameErrorResponse, correlationToken),
			Payload: map[string]string{
				"type":    errType,
				"message": message,
			},
		},
	}
}

// NewEndpointResponse builds a response addressed to endpointID with an
// empty payload. properties may be nil.
func NewEndpointResponse(name, endpointID, correlationToken string, properties []json.RawMessage) *Response {
	r := &Response{
		Event: Event{
			Header:   NewHeader(NamespaceAlexa, name, correlationToken),
			Endpoint: &Endpoint{EndpointID: endpointID},
			Payload:  struct{}{},
		},
	}
	if len(properties) > 0 {
		r.Context = &Context{Properties: properties}
	}
	return r
}

// NewDiscoverResponse lists endpoints. A nil slice is sent as [].
func NewDiscoverResponse(endpoints []json.RawMessage) *Response {
	if endpoints == nil {
		endpoints = []json.RawMessage{}
	}
	return &Response{
		Event: Event{
			Header:  NewHeader(NamespaceDiscovery, NameDiscoverResp, ""),
			Payload: map[string]any{"endpoints": endpoints},
		},
	}
}

// NewAcceptGrantResponse acknowledges an AcceptGrant.
func NewAcceptGrantResponse() *Response {
	return &Response{
		Event: Event{
			Header:  NewHeader(NamespaceAuthorization, NameAcceptGrantRsp, ""),
			Payload: struct{}{},
		},
	}
}

// NewProperty encodes a property sampled now.
func NewProperty(namespace, name string, value any, uncertainty int, now time.Time) json.RawMessage {
	b, _ := json.Marshal(Property{
		Namespace:                 namespace,
		Name:                      name,
		Value:                     value,
		TimeOfSample:              now.UTC().Format(time.RFC3339Nano),
		UncertaintyInMilliseconds: uncertainty,
	})
	return b
}

// ErrorType returns the payload type of an ErrorResponse, or "".
func (r *Response) ErrorType() string {
	if r.Event.Header.Name != NameErrorResponse {
		return ""
	}
	if p, ok := r.Event.Payload.(map[string]string); ok {
		return p["type"]
	}
	return ""
}
