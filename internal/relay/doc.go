// Package relay implements the hub wire protocol.
//
// Hubs hold a WebSocket open to the relay and send action-tagged JSON
// frames over it:
//
//	{"action":"register","hubId":"...","secret":"..."}
//	{"action":"state_update","deviceId":"lamp","state":{"properties":[...]}}
//
// Every frame gets exactly one JSON object back on the same connection,
// except register, which also pushes the device inventory. All actions
// but register require a live session and pass the per-hub rate limit.
package relay
