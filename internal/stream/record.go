package stream

import (
	"encoding/json"
	"time"
)

// Op is the mutation kind of a Record.
type Op string

const (
	OpInsert Op = "INSERT"
	OpModify Op = "MODIFY"
	OpRemove Op = "REMOVE"
)

// KindDevice marks records produced by device rows.
const KindDevice = "device"

// Record is one device mutation with its before and after images.
type Record struct {
	Seq        int64           `json:"seq"`
	Kind       string          `json:"kind"`
	Op         Op              `json:"op"`
	HubID      string          `json:"hubId"`
	EndpointID string          `json:"endpointId"`
	OldStatus  string          `json:"oldStatus,omitempty"`
	NewStatus  string          `json:"newStatus,omitempty"`
	OldState   json.RawMessage `json:"oldState,omitempty"`
	NewState   json.RawMessage `json:"newState,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// Validate checks the fields every consumer relies on.
func (r *Record) Validate() error {
	if r.HubID == "" || r.EndpointID == "" {
		return ErrInvalidRecord
	}
	switch r.Op {
	case OpInsert, OpModify, OpRemove:
		return nil
	}
	return ErrInvalidRecord
}
