//go:build integration

package mqtt

import (
	"encoding/json"
	"testing"
	"time"
)

// Integration tests need a broker at 127.0.0.1:1883.
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func TestIntegration_DeviceChangeRoundtrip(t *testing.T) {
	subCfg := testConfig()
	subCfg.Broker.ClientID = "slidebolt-int-sub"
	sub, err := Connect(subCfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sub.Close()

	pubCfg := testConfig()
	pubCfg.Broker.ClientID = "slidebolt-int-pub"
	pub, err := Connect(pubCfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer pub.Close()

	type received struct {
		hub, endpoint string
		body          map[string]any
	}
	got := make(chan received, 1)

	err = sub.Subscribe(Topics{}.HubDeviceChanges("hub-int"), 1, func(topic string, payload []byte) error {
		hub, endpoint, _ := Topics{}.ParseDeviceChange(topic)
		var body map[string]any
		if err := json.Unmarshal(payload, &body); err != nil {
			return err
		}
		got <- received{hub, endpoint, body}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if !sub.HasSubscription(Topics{}.HubDeviceChanges("hub-int")) {
		t.Error("subscription not tracked")
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.PublishJSON(Topics{}.DeviceChange("hub-int", "lamp-1"), map[string]any{"op": "MODIFY"}); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case r := <-got:
		if r.hub != "hub-int" || r.endpoint != "lamp-1" || r.body["op"] != "MODIFY" {
			t.Errorf("received %+v", r)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("message not received")
	}

	if err := sub.Unsubscribe(Topics{}.HubDeviceChanges("hub-int")); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
	if sub.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d, want 0", sub.SubscriptionCount())
	}
}

func TestIntegration_Callbacks(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "slidebolt-int-callbacks"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	disconnected := make(chan struct{}, 1)
	client.SetOnDisconnect(func(error) { disconnected <- struct{}{} })
	client.SetOnConnect(func() {})

	if err := client.HealthCheck(t.Context()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
}
