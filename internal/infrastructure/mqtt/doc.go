// Package mqtt provides the MQTT client behind the relay's optional
// device-change fan-out (stream.transport: mqtt).
//
// When enabled, the stream poller publishes every device changelog record
// to slidebolt/stream/devices/{hub}/{endpoint} at QoS 1, and the change
// propagator consumes them from a wildcard subscription. The relay also
// keeps a retained online/offline message on slidebolt/system/status,
// backed by a Last Will for crashes.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(mqtt.Topics{}.DeviceChange(hubID, endpointID), record)
//
// # Security
//
// Use TLS (broker.tls) and broker credentials outside local development.
// Records carry device state but never tokens or secrets.
package mqtt
