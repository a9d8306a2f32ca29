package alexa

import (
	"encoding/json"
	"strings"
)

// PayloadVersion is the only Smart Home version the relay speaks.
const PayloadVersion = "3"

// Namespaces and names the relay dispatches on.
const (
	NamespaceAlexa         = "Alexa"
	NamespaceDiscovery     = "Alexa.Discovery"
	NamespaceAuthorization = "Alexa.Authorization"

	NameDiscover       = "Discover"
	NameReportState    = "ReportState"
	NameAcceptGrant    = "AcceptGrant"
	NameChangeReport   = "ChangeReport"
	NameDeleteReport   = "DeleteReport"
	NameErrorResponse  = "ErrorResponse"
	NameResponse       = "Response"
	NameStateReport    = "StateReport"
	NameDiscoverResp   = "Discover.Response"
	NameAcceptGrantRsp = "AcceptGrant.Response"
)

// ErrorResponse payload types.
const (
	ErrTypeInvalidDirective     = "INVALID_DIRECTIVE"
	ErrTypeInvalidAuthorization = "INVALID_AUTHORIZATION_CREDENTIAL"
	ErrTypeAcceptGrantFailed    = "ACCEPT_GRANT_FAILED"
	ErrTypeNoSuchEndpoint       = "NO_SUCH_ENDPOINT"
	ErrTypeInternal             = "INTERNAL_ERROR"
)

const (
	ScopeTypeBearerToken     = "BearerToken"
	CausePhysicalInteraction = "PHYSICAL_INTERACTION"

	// Uncertainty of properties the relay asserts rather than reads.
	UncertaintyOptimistic = 200
	UncertaintyDefault    = 1000
)

// Envelope is the request body Alexa posts.
type Envelope struct {
	Directive *Directive `json:"directive"`
}

// Directive is a single Smart Home directive.
type Directive struct {
	Header   Header          `json:"header"`
	Endpoint *Endpoint       `json:"endpoint,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Header identifies a directive or event.
type Header struct {
	Namespace        string `json:"namespace"`
	Name             string `json:"name"`
	PayloadVersion   string `json:"payloadVersion"`
	MessageID        string `json:"messageId"`
	CorrelationToken string `json:"correlationToken,omitempty"`
}

// Endpoint addresses a device.
type Endpoint struct {
	EndpointID string          `json:"endpointId"`
	Scope      *Scope          `json:"scope,omitempty"`
	Cookie     json.RawMessage `json:"cookie,omitempty"`
}

// Scope carries the bearer token.
type Scope struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// Property is one entry of a context or change properties list.
type Property struct {
	Namespace                 string `json:"namespace"`
	Name                      string `json:"name"`
	Value                     any    `json:"value"`
	TimeOfSample              string `json:"timeOfSample"`
	UncertaintyInMilliseconds int    `json:"uncertaintyInMilliseconds"`
}

// Kind returns "namespace.name" for logs and errors.
func (d *Directive) Kind() string {
	return d.Header.Namespace + "." + d.Header.Name
}

// IsControl reports whether the directive targets an Alexa.*Controller.
func (d *Directive) IsControl() bool {
	ns := d.Header.Namespace
	return strings.HasPrefix(ns, "Alexa.") && strings.HasSuffix(ns, "Controller")
}

// EndpointID returns the target endpoint, or "".
func (d *Directive) EndpointID() string {
	if d.Endpoint == nil {
		return ""
	}
	return d.Endpoint.EndpointID
}

// BearerToken extracts the token from where the directive kind keeps it:
// payload.scope for Discovery, payload.grantee for AcceptGrant and
// endpoint.scope for everything else.
func (d *Directive) BearerToken() string {
	var p struct {
		Scope   *Scope `json:"scope"`
		Grantee *Scope `json:"grantee"`
	}
	switch d.Header.Namespace {
	case NamespaceDiscovery:
		if json.Unmarshal(d.Payload, &p) == nil && p.Scope != nil {
			return p.Scope.Token
		}
		return ""
	case NamespaceAuthorization:
		if json.Unmarshal(d.Payload, &p) == nil && p.Grantee != nil {
			return p.Grantee.Token
		}
		return ""
	}
	if d.Endpoint != nil && d.Endpoint.Scope != nil {
		return d.Endpoint.Scope.Token
	}
	return ""
}

// GrantCode returns payload.grant.code of an AcceptGrant directive.
func (d *Directive) GrantCode() string {
	var p struct {
		Grant struct {
			Code string `json:"code"`
		} `json:"grant"`
	}
	if json.Unmarshal(d.Payload, &p) != nil {
		return ""
	}
	return p.Grant.Code
}

// PayloadField returns the raw value of a top-level payload member.
func (d *Directive) PayloadField(name string) json.RawMessage {
	var m map[string]json.RawMessage
	if json.Unmarshal(d.Payload, &m) != nil {
		return nil
	}
	return m[name]
}
