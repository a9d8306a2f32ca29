package device

import (
	"encoding/json"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database"
)

// Status is a device's position in the two-phase delete lifecycle.
type Status string

const (
	StatusNew     Status = "new"
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusActive, StatusDeleted:
		return true
	}
	return false
}

// CanTransition reports whether a device in status s may move to next.
// Staying in the same status is always allowed.
//
//	new     → active, deleted
//	active  → deleted
//	deleted → active (re-discovery)
func (s Status) CanTransition(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case StatusNew:
		return next == StatusActive || next == StatusDeleted
	case StatusActive:
		return next == StatusDeleted
	case StatusDeleted:
		return next == StatusActive
	}
	return false
}

// Device is one endpoint behind a hub.
type Device struct {
	HubID      string
	EndpointID string

	// Endpoint is the Alexa endpoint descriptor as the hub sent it.
	// Nil until the first upsert (a state update can create the row).
	Endpoint json.RawMessage

	// State is {"properties":[...]} as compact JSON, or nil.
	State json.RawMessage

	Status    Status
	FirstSeen time.Time
	UpdatedAt time.Time
}

// Properties returns the raw property records of the device state. Each
// record is returned byte-for-byte, including fields the relay does not
// know about.
func (d *Device) Properties() []json.RawMessage {
	return StateProperties(d.State)
}

// StateProperties extracts state.properties. Missing or malformed state
// yields nil.
func StateProperties(state json.RawMessage) []json.RawMessage {
	if len(state) == 0 {
		return nil
	}
	var doc struct {
		Properties []json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(state, &doc); err != nil {
		return nil
	}
	return doc.Properties
}

// DescriptorWithID returns the endpoint descriptor with endpointId forced
// to the row key. It is what Discovery reports to Alexa.
func (d *Device) DescriptorWithID() json.RawMessage {
	fields := d.descriptorFields()
	fields["endpointId"] = mustMarshal(d.EndpointID)
	return mustMarshal(fields)
}

// ListEntry renders the hub-facing listing: endpointId, the descriptor
// fields, then state, status and updatedAt.
func (d *Device) ListEntry() json.RawMessage {
	fields := d.descriptorFields()
	fields["endpointId"] = mustMarshal(d.EndpointID)
	if len(d.State) > 0 {
		fields["state"] = d.State
	} else {
		delete(fields, "state")
	}
	fields["status"] = mustMarshal(string(d.Status))
	fields["updatedAt"] = mustMarshal(database.FormatTime(d.UpdatedAt))
	return mustMarshal(fields)
}

func (d *Device) descriptorFields() map[string]json.RawMessage {
	fields := make(map[string]json.RawMessage)
	if len(d.Endpoint) > 0 {
		_ = json.Unmarshal(d.Endpoint, &fields) //nolint:errcheck // non-object descriptors are rejected on write
	}
	return fields
}

// MarkResult is the per-id outcome of MarkDeleted.
type MarkResult struct {
	ID    string `json:"id"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func mustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}
