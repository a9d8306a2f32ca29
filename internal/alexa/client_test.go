package alexa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/config"
)

func TestProfileClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_, _ = w.Write([]byte(`{"user_id":"amzn1.account.X","email":"a@example.com","name":"A"}`))
		case "Bearer nouser":
			_, _ = w.Write([]byte(`{"email":"a@example.com"}`))
		default:
			http.Error(w, "invalid_token", http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	c := NewProfileClient(srv.URL, NewHTTPClient(time.Second))
	ctx := context.Background()

	p, err := c.Profile(ctx, "good")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if p.IdentityID != "amzn1.account.X" || p.Email != "a@example.com" {
		t.Errorf("Profile() = %+v", p)
	}

	if _, err := c.Profile(ctx, "bad"); !errors.Is(err, ErrUpstream) {
		t.Errorf("Profile(bad) error = %v, want ErrUpstream", err)
	}
	if _, err := c.Profile(ctx, "nouser"); !errors.Is(err, ErrInvalidProfile) {
		t.Errorf("Profile(nouser) error = %v, want ErrInvalidProfile", err)
	}
}

func TestLWAClient(t *testing.T) {
	var mu sync.Mutex
	var forms []map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm() error = %v", err)
		}
		mu.Lock()
		forms = append(forms, map[string]string{
			"grant_type":    r.PostForm.Get("grant_type"),
			"code":          r.PostForm.Get("code"),
			"refresh_token": r.PostForm.Get("refresh_token"),
			"client_id":     r.PostForm.Get("client_id"),
			"client_secret": r.PostForm.Get("client_secret"),
		})
		mu.Unlock()

		if r.PostForm.Get("code") == "rejected" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600,"token_type":"bearer"}`))
	}))
	defer srv.Close()

	cfg := config.AlexaConfig{TokenURL: srv.URL, ClientID: "cid", ClientSecret: "csecret"}
	c := NewLWAClient(cfg, NewHTTPClient(time.Second))
	ctx := context.Background()

	tr, err := c.Exchange(ctx, "code-1")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if tr.AccessToken != "at" || tr.RefreshToken != "rt" || tr.ExpiresIn != 3600 {
		t.Errorf("Exchange() = %+v", tr)
	}
	now := time.Unix(1000, 0)
	if got := tr.Tokens(now).ExpiresAt; !got.Equal(now.Add(time.Hour)) {
		t.Errorf("Tokens().ExpiresAt = %v", got)
	}

	if _, err := c.Refresh(ctx, "rt-old"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if _, err := c.Exchange(ctx, "rejected"); !errors.Is(err, ErrUpstream) {
		t.Errorf("Exchange(rejected) error = %v, want ErrUpstream", err)
	}

	if len(forms) != 3 {
		t.Fatalf("requests = %d, want 3", len(forms))
	}
	if forms[0]["grant_type"] != "authorization_code" || forms[0]["code"] != "code-1" {
		t.Errorf("exchange form = %v", forms[0])
	}
	if forms[1]["grant_type"] != "refresh_token" || forms[1]["refresh_token"] != "rt-old" {
		t.Errorf("refresh form = %v", forms[1])
	}
	if forms[0]["client_id"] != "cid" || forms[0]["client_secret"] != "csecret" {
		t.Errorf("credentials not sent: %v", forms[0])
	}

	noCreds := NewLWAClient(config.AlexaConfig{TokenURL: srv.URL}, NewHTTPClient(time.Second))
	if _, err := noCreds.Refresh(ctx, "rt"); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("Refresh(no creds) error = %v, want ErrMissingCredentials", err)
	}
}

func TestEventGateway(t *testing.T) {
	var mu sync.Mutex
	var events []map[string]any
	var auths []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Event map[string]any `json:"event"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode error = %v", err)
		}
		mu.Lock()
		events = append(events, body.Event)
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	g := NewEventGateway(srv.URL, NewHTTPClient(time.Second))
	ctx := context.Background()

	t.Run("change report", func(t *testing.T) {
		mu.Lock()
		events, auths = nil, nil
		mu.Unlock()
		props := []json.RawMessage{json.RawMessage(`{"namespace":"Alexa.PowerController","name":"powerState","value":"ON"}`)}
		if err := g.SendChangeReport(ctx, "tok", "lamp-1", props); err != nil {
			t.Fatalf("SendChangeReport() error = %v", err)
		}
		if len(events) != 1 || auths[0] != "Bearer tok" {
			t.Fatalf("events = %d, auth = %v", len(events), auths)
		}
		header := events[0]["header"].(map[string]any)
		if header["name"] != NameChangeReport || header["payloadVersion"] != "3" {
			t.Errorf("header = %v", header)
		}
		endpoint := events[0]["endpoint"].(map[string]any)
		if endpoint["endpointId"] != "lamp-1" {
			t.Errorf("endpoint = %v", endpoint)
		}
		change := events[0]["payload"].(map[string]any)["change"].(map[string]any)
		if change["cause"].(map[string]any)["type"] != CausePhysicalInteraction {
			t.Errorf("cause = %v", change["cause"])
		}
		if len(change["properties"].([]any)) != 1 {
			t.Errorf("properties = %v", change["properties"])
		}
	})

	t.Run("delete report batches", func(t *testing.T) {
		mu.Lock()
		events, auths = nil, nil
		mu.Unlock()
		ids := make([]string, 250)
		for i := range ids {
			ids[i] = "dev-" + string(rune('a'+i%26))
		}
		if err := g.SendDeleteReport(ctx, "tok", ids); err != nil {
			t.Fatalf("SendDeleteReport() error = %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("events = %d, want 3", len(events))
		}
		sizes := []int{100, 100, 50}
		for i, e := range events {
			payload := e["payload"].(map[string]any)
			if n := len(payload["endpoints"].([]any)); n != sizes[i] {
				t.Errorf("batch %d size = %d, want %d", i, n, sizes[i])
			}
			if payload["scope"].(map[string]any)["token"] != "tok" {
				t.Errorf("batch %d scope = %v", i, payload["scope"])
			}
		}
	})
}

func TestEventGateway_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "INVALID_ACCESS_TOKEN_EXCEPTION", http.StatusUnauthorized)
	}))
	defer srv.Close()

	g := NewEventGateway(srv.URL, NewHTTPClient(time.Second))
	err := g.SendDeleteReport(context.Background(), "tok", []string{"a"})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("SendDeleteReport() error = %v, want ErrUpstream", err)
	}
}

func TestBatches(t *testing.T) {
	tests := []struct {
		n    int
		want []int
	}{
		{0, nil},
		{1, []int{1}},
		{100, []int{100}},
		{101, []int{100, 1}},
	}
	for _, tt := range tests {
		ids := make([]string, tt.n)
		got := Batches(ids, 100)
		if len(got) != len(tt.want) {
			t.Errorf("Batches(%d) = %d batches, want %d", tt.n, len(got), len(tt.want))
			continue
		}
		for i := range got {
			if len(got[i]) != tt.want[i] {
				t.Errorf("Batches(%d)[%d] len = %d, want %d", tt.n, i, len(got[i]), tt.want[i])
			}
		}
	}
}
