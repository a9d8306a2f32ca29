package relay

import "encoding/json"

// Actions understood by the dispatcher.
const (
	ActionRegister     = "register"
	ActionStateUpdate  = "state_update"
	ActionDeviceUpsert = "device_upsert"
	ActionListDevices  = "list_devices"
	ActionDeleteDevice = "delete_device"
	ActionMarkDeleted  = "mark_deleted"
	ActionHardPurge    = "hard_purge"
	ActionRetryDeleted = "retry_deleted"
)

// aliases maps the action names older hubs send.
var aliases = map[string]string{
	"device_delete":       ActionDeleteDevice,
	"device_mark_deleted": ActionMarkDeleted,
	"device_hard_purge":   ActionHardPurge,
	"alexa_retry_deleted": ActionRetryDeleted,
}

// CanonicalAction resolves an alias to its action name.
func CanonicalAction(action string) string {
	if a, ok := aliases[action]; ok {
		return a
	}
	return action
}

// Message is one inbound hub frame. Fields are populated per action.
type Message struct {
	Action string `json:"action"`

	// HubID identifies the hub on register. ClientID is its older name.
	HubID    string `json:"hubId,omitempty"`
	ClientID string `json:"clientId,omitempty"`
	Secret   string `json:"secret,omitempty"`

	DeviceID  string          `json:"deviceId,omitempty"`
	DeviceIDs json.RawMessage `json:"deviceIds,omitempty"`
	Endpoint  json.RawMessage `json:"endpoint,omitempty"`
	State     json.RawMessage `json:"state,omitempty"`
}

// Hub returns the hub id the frame names, if any.
func (m *Message) Hub() string {
	if m.HubID != "" {
		return m.HubID
	}
	return m.ClientID
}

// Result mirrors the status code of a handled frame.
type Result struct {
	StatusCode int
}

// reply is the JSON object pushed back to the hub.
type reply map[string]any

func errorReply(msg string) reply {
	return reply{"error": msg}
}

func okReply() reply {
	return reply{"ok": true}
}

// Reply messages.
const (
	msgInvalidJSON     = "Invalid JSON"
	msgUnauthorized    = "Unauthorized"
	msgRateLimited     = "Rate limit exceeded"
	msgInternal        = "Internal Server Error"
	msgMissingSecret   = "Missing secret"
	msgInvalidClient   = "Invalid client"
	msgClientInactive  = "Client inactive"
	msgInvalidSecret   = "Invalid secret"
	msgMissingState    = "Missing deviceId or state"
	msgInvalidState    = "Invalid state"
	msgMissingEndpoint = "Missing endpoint.endpointId"
	msgMissingDeviceID = "Missing deviceId"
	msgMissingIDList   = "Missing or invalid deviceIds list"
	msgNoOwner         = "No owner associated with this hub. Cannot send Alexa reports."
	msgNoToken         = "Could not obtain valid Alexa token"
	msgNothingToPurge  = "No deleted devices to purge"
	msgNothingToRetry  = "No deleted devices found to retry"
)
