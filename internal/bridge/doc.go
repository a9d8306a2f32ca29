// Package bridge answers Alexa Smart Home directives on behalf of hubs.
//
// Every directive is authenticated by its bearer token, resolved to an
// identity, then to the hub that identity owns, and dispatched:
//
//	Alexa.Discovery/Discover      stored endpoints of the hub
//	Alexa/ReportState             stored properties of one endpoint
//	Alexa.*Controller/*           forwarded to the hub, answered optimistically
//	Alexa.Authorization/AcceptGrant  LWA code exchange
//
// Handle never returns an error: every failure becomes an ErrorResponse.
package bridge
