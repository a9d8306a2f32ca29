package alexa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// MaxDeleteBatch is the most endpoints one DeleteReport may carry.
const MaxDeleteBatch = 100

// EventGateway posts proactive events to the Alexa event gateway.
type EventGateway struct {
	url  string
	http *http.Client
}

// NewEventGateway creates a gateway client.
func NewEventGateway(gatewayURL string, httpClient *http.Client) *EventGateway {
	return &EventGateway{url: gatewayURL, http: httpClient}
}

// SendChangeReport reports new property values for one endpoint.
func (g *EventGateway) SendChangeReport(ctx context.Context, token, endpointID string, properties []json.RawMessage) error {
	if properties == nil {
		properties = []json.RawMessage{}
	}
	event := Event{
		Header: NewHeader(NamespaceAlexa, NameChangeReport, ""),
		Endpoint: &Endpoint{
			EndpointID: endpointID,
			Scope:      &Scope{Type: ScopeTypeBearerToken, Token: token},
		},
		Payload: map[string]any{
			"change": map[string]any{
				"cause":      map[string]string{"type": CausePhysicalInteraction},
				"properties": properties,
			},
		},
	}
	return g.post(ctx, token, event)
}

// SendDeleteReport removes endpoints from the user's account, posting one
// event per MaxDeleteBatch ids. Every batch is attempted; the first error
// is returned.
func (g *EventGateway) SendDeleteReport(ctx context.Context, token string, endpointIDs []string) error {
	var first error
	for _, batch := range Batches(endpointIDs, MaxDeleteBatch) {
		endpoints := make([]map[string]string, len(batch))
		for i, id := range batch {
			endpoints[i] = map[string]string{"endpointId": id}
		}
		event := Event{
			Header: NewHeader(NamespaceDiscovery, NameDeleteReport, ""),
			Payload: map[string]any{
				"endpoints": endpoints,
				"scope":     Scope{Type: ScopeTypeBearerToken, Token: token},
			},
		}
		if err := g.post(ctx, token, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (g *EventGateway) post(ctx context.Context, token string, event Event) error {
	data, err := json.Marshal(map[string]Event{"event": event})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: event gateway: %w", ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return checkStatus(resp, event.Header.Name)
}

// Batches splits ids into consecutive slices of at most size.
func Batches(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > 0 {
		n := min(size, len(ids))
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}
