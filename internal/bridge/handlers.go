package bridge

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/lms-io/alexa-slidebolt/internal/alexa"
	"github.com/lms-io/alexa-slidebolt/internal/device"
	"github.com/lms-io/alexa-slidebolt/internal/identity"
)

// MessageTypeDirective tags directives forwarded to a hub.
const MessageTypeDirective = "alexaDirective"

// ForwardedDirective is what a hub receives for a control directive.
type ForwardedDirective struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"ts"`
	Directive json.RawMessage `json:"directive"`
}

func (b *Bridge) discover(ctx context.Context, hubID string) *alexa.Response {
	devices, err := b.deps.Devices.List(ctx, hubID)
	if err != nil {
		b.logger.Error("discovery failed", "hub_id", hubID, "error", err)
		return alexa.NewDiscoverResponse(nil)
	}

	endpoints := make([]json.RawMessage, 0, len(devices))
	for i := range devices {
		d := &devices[i]
		if len(d.Endpoint) == 0 {
			b.logger.Warn("device has no endpoint descriptor", "hub_id", hubID, "endpoint_id", d.EndpointID)
			continue
		}
		endpoints = append(endpoints, d.DescriptorWithID())
		b.deps.Devices.MarkActive(ctx, hubID, d.EndpointID)
	}

	b.logger.Info("discovery", "hub_id", hubID, "endpoints", len(endpoints))
	return alexa.NewDiscoverResponse(endpoints)
}

func (b *Bridge) reportState(ctx context.Context, hubID string, d *alexa.Directive, token string) *alexa.Response {
	corr := d.Header.CorrelationToken
	endpointID := d.EndpointID()
	if endpointID == "" {
		return alexa.NewErrorResponse(alexa.ErrTypeInvalidDirective, "Missing endpointId", corr)
	}

	dev, err := b.deps.Devices.Get(ctx, hubID, endpointID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			b.async(ctx, func(ctx context.Context) {
				if err := b.deps.Reports.SendDeleteReport(ctx, token, []string{endpointID}); err != nil {
					b.logger.Warn("stale endpoint delete report failed", "hub_id", hubID, "endpoint_id", endpointID, "error", err)
					return
				}
				b.logger.Info("stale endpoint reported deleted", "hub_id", hubID, "endpoint_id", endpointID)
			})
			return alexa.NewErrorResponse(alexa.ErrTypeNoSuchEndpoint, "Device not found", corr)
		}
		b.logger.Error("report state failed", "hub_id", hubID, "endpoint_id", endpointID, "error", err)
		return alexa.NewErrorResponse(alexa.ErrTypeInternal, "Internal Error", corr)
	}

	props := dev.Properties()
	if len(props) == 0 {
		props = []json.RawMessage{
			alexa.NewProperty("Alexa.PowerController", "powerState", "OFF", alexa.UncertaintyDefault, b.now()),
		}
	}
	b.deps.Devices.MarkActive(ctx, hubID, endpointID)

	return alexa.NewEndpointResponse(alexa.NameStateReport, endpointID, corr, props)
}

func (b *Bridge) control(ctx context.Context, hubID string, d *alexa.Directive, rawDirective json.RawMessage) *alexa.Response {
	corr := d.Header.CorrelationToken
	endpointID := d.EndpointID()
	if endpointID == "" {
		return alexa.NewErrorResponse(alexa.ErrTypeInvalidDirective, "Missing endpointId", corr)
	}

	b.forward(ctx, hubID, rawDirective)
	b.deps.Devices.MarkActive(ctx, hubID, endpointID)

	var props []json.RawMessage
	if p := b.optimisticProperty(d); p != nil {
		props = append(props, p)
	}
	return alexa.NewEndpointResponse(alexa.NameResponse, endpointID, corr, props)
}

// forward pushes the directive to the hub's live connection. A missing
// connection or a failed send is logged only.
func (b *Bridge) forward(ctx context.Context, hubID string, rawDirective json.RawMessage) {
	handle, ok, err := b.deps.Connections.ConnectionFor(ctx, hubID)
	if err != nil {
		b.logger.Error("connection lookup failed", "hub_id", hubID, "error", err)
		return
	}
	if !ok {
		b.logger.Info("hub not connected, directive not forwarded", "hub_id", hubID)
		return
	}
	msg := ForwardedDirective{
		Type:      MessageTypeDirective,
		Timestamp: b.now().UnixMilli(),
		Directive: rawDirective,
	}
	if err := b.deps.Sender.Send(handle, msg); err != nil {
		b.logger.Warn("directive forward failed", "hub_id", hubID, "connection_id", handle, "error", err)
	}
}

// optimisticProperty asserts the value a control directive requested.
func (b *Bridge) optimisticProperty(d *alexa.Directive) json.RawMessage {
	ns, name := d.Header.Namespace, d.Header.Name
	prop := func(property string, value any) json.RawMessage {
		return alexa.NewProperty(ns, property, value, alexa.UncertaintyOptimistic, b.now())
	}

	switch {
	case ns == "Alexa.PowerController" && name == "TurnOn":
		return prop("powerState", "ON")
	case ns == "Alexa.PowerController" && name == "TurnOff":
		return prop("powerState", "OFF")
	case ns == "Alexa.BrightnessController" && name == "SetBrightness":
		return payloadProperty(d, "brightness", prop)
	case ns == "Alexa.ColorController" && name == "SetColor":
		return payloadProperty(d, "color", prop)
	case ns == "Alexa.ColorTemperatureController" && name == "SetColorTemperature":
		return payloadProperty(d, "colorTemperatureInKelvin", prop)
	}
	return nil
}

func payloadProperty(d *alexa.Directive, field string, prop func(string, any) json.RawMessage) json.RawMessage {
	v := d.PayloadField(field)
	if v == nil {
		return nil
	}
	return prop(field, v)
}

func (b *Bridge) acceptGrant(ctx context.Context, d *alexa.Directive, p identity.Profile) *alexa.Response {
	if _, err := b.deps.Claims.Resolve(ctx, p); err != nil {
		b.logger.Info("accept grant before hub claim", "identity_id", p.IdentityID, "error", err)
	}
	b.deps.Tokens.AcceptGrant(ctx, p.IdentityID, d.GrantCode())
	return alexa.NewAcceptGrantResponse()
}
