// Package alexa speaks the Alexa Smart Home v3 wire format and the
// Login-with-Amazon endpoints the relay depends on.
//
// It provides:
//   - Directive and response envelopes, plus ErrorResponse construction
//   - ProfileClient, which resolves a bearer token to an identity
//   - LWAClient, for authorization_code and refresh_token grants
//   - TokenManager, which caches, refreshes and persists identity tokens
//   - EventGateway, which posts ChangeReport and DeleteReport events
//
// Every outbound call uses a bounded http.Client timeout.
package alexa
