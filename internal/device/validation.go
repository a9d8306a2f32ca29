package device

import (
	"bytes"
	"encoding/json"
)

// maxEndpointIDLength bounds endpoint ids accepted from hubs.
const maxEndpointIDLength = 256

// EndpointID extracts endpointId from an endpoint descriptor.
func EndpointID(endpoint json.RawMessage) (string, error) {
	if len(endpoint) == 0 || !isObject(endpoint) {
		return "", ErrInvalidEndpoint
	}
	var ep struct {
		EndpointID string `json:"endpointId"`
	}
	if err := json.Unmarshal(endpoint, &ep); err != nil || ep.EndpointID == "" || len(ep.EndpointID) > maxEndpointIDLength {
		return "", ErrInvalidEndpoint
	}
	return ep.EndpointID, nil
}

// CompactState validates a state document and returns its compact form.
// Key order and values are preserved, so equal input yields equal bytes.
func CompactState(state json.RawMessage) (json.RawMessage, error) {
	if !isObject(state) {
		return nil, ErrInvalidState
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, state); err != nil {
		return nil, ErrInvalidState
	}
	return buf.Bytes(), nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{' && json.Valid(trimmed)
}
