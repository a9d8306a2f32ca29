package influxdb

import (
	"encoding/json"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by the relay.
const (
	measurementDeviceState = "device_state"
	measurementRelayEvent  = "relay_events"
)

// stateProperty is the subset of an Alexa property record needed for
// telemetry.
type stateProperty struct {
	Namespace    string          `json:"namespace"`
	Name         string          `json:"name"`
	Value        json.RawMessage `json:"value"`
	TimeOfSample string          `json:"timeOfSample"`
}

// WriteDeviceState records every property of a device state write as a
// device_state point. Numbers go to the value field, booleans to
// value_bool, strings to value_str, and numeric members of object values
// (e.g. color) to value_<member>. The write is non-blocking.
func (c *Client) WriteDeviceState(hubID, endpointID string, state json.RawMessage) {
	if !c.IsConnected() {
		return
	}
	for _, p := range statePoints(hubID, endpointID, state, time.Now()) {
		c.writeAPI.WritePoint(p)
	}
}

// WriteRelayEvent counts one hub action or directive outcome.
func (c *Client) WriteRelayEvent(kind, action, result string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(
		measurementRelayEvent,
		map[string]string{"kind": kind, "action": action, "result": result},
		map[string]any{"count": 1},
		time.Now(),
	))
}

// statePoints converts a state document into points. Unparseable state
// and properties without a usable value produce nothing.
func statePoints(hubID, endpointID string, state json.RawMessage, now time.Time) []*write.Point {
	var doc struct {
		Properties []stateProperty `json:"properties"`
	}
	if len(state) == 0 || json.Unmarshal(state, &doc) != nil {
		return nil
	}

	points := make([]*write.Point, 0, len(doc.Properties))
	for _, prop := range doc.Properties {
		if prop.Name == "" {
			continue
		}
		fields := propertyFields(prop.Value)
		if len(fields) == 0 {
			continue
		}
		at := now
		if t, err := time.Parse(time.RFC3339Nano, prop.TimeOfSample); err == nil {
			at = t
		}
		points = append(points, write.NewPoint(
			measurementDeviceState,
			map[string]string{
				"hub_id":      hubID,
				"endpoint_id": endpointID,
				"namespace":   prop.Namespace,
				"name":        prop.Name,
			},
			fields,
			at,
		))
	}
	return points
}

func propertyFields(raw json.RawMessage) map[string]any {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return nil
	}

	switch val := v.(type) {
	case float64:
		return map[string]any{"value": val}
	case bool:
		return map[string]any{"value_bool": val}
	case string:
		return map[string]any{"value_str": val}
	case map[string]any:
		fields := make(map[string]any)
		for k, member := range val {
			if n, ok := member.(float64); ok {
				fields["value_"+k] = n
			}
		}
		return fields
	default:
		return nil
	}
}
