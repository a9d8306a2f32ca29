package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes used by the relay.
const (
	// TopicPrefix is the root of every relay topic.
	TopicPrefix = "slidebolt"

	// TopicPrefixStream carries device-change records.
	TopicPrefixStream = "slidebolt/stream"

	// TopicPrefixSystem carries relay liveness.
	TopicPrefixSystem = "slidebolt/system"
)

// Topics builds relay topic names.
//
//	topic := mqtt.Topics{}.DeviceChange("hub-1", "lamp-1")
//	// slidebolt/stream/devices/hub-1/lamp-1
type Topics struct{}

// DeviceChange returns the topic a device's change records are published on.
func (Topics) DeviceChange(hubID, endpointID string) string {
	return fmt.Sprintf("%s/devices/%s/%s", TopicPrefixStream, escapeLevel(hubID), escapeLevel(endpointID))
}

// AllDeviceChanges matches every device-change topic.
//
// Pattern: slidebolt/stream/devices/+/+
func (Topics) AllDeviceChanges() string {
	return TopicPrefixStream + "/devices/+/+"
}

// HubDeviceChanges matches the change topics of a single hub.
//
// Pattern: slidebolt/stream/devices/{hub}/+
func (Topics) HubDeviceChanges(hubID string) string {
	return fmt.Sprintf("%s/devices/%s/+", TopicPrefixStream, escapeLevel(hubID))
}

// SystemStatus returns the retained relay status topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// ParseDeviceChange splits a device-change topic back into hub and
// endpoint ids. ok is false for any other topic.
func (Topics) ParseDeviceChange(topic string) (hubID, endpointID string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixStream+"/devices/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// escapeLevel keeps ids from introducing extra levels or wildcards.
func escapeLevel(s string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(s)
}
