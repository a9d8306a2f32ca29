// Package influxdb writes SlideBolt device telemetry to InfluxDB v2.
//
// Every state a hub reports is split into one device_state point per
// Alexa property, tagged by hub_id, endpoint_id, namespace and name.
// Relay action and directive outcomes are counted in relay_events.
// Telemetry is optional: when disabled, Connect returns ErrDisabled and
// the relay runs without a sink.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // no telemetry
//	}
//	defer client.Close()
//
//	client.WriteDeviceState("hub-1", "lamp-1", stateJSON)
package influxdb
