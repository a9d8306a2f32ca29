package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lms-io/alexa-slidebolt/internal/alexa"
	"github.com/lms-io/alexa-slidebolt/internal/audit"
	"github.com/lms-io/alexa-slidebolt/internal/auth"
	"github.com/lms-io/alexa-slidebolt/internal/hub"
	"github.com/lms-io/alexa-slidebolt/internal/identity"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/config"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database/dbtest"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/logging"
	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/mqtt"
)

const (
	testAdminSecret = "admin-secret-at-least-16"
	testJWTSecret   = "test-secret-key-at-least-32-characters-long"
)

// fakeDirectives records the last directive body.
type fakeDirectives struct {
	body []byte
}

func (f *fakeDirectives) Handle(_ context.Context, raw []byte) *alexa.Response {
	f.body = raw
	return alexa.NewErrorResponse(alexa.ErrTypeInvalidDirective, "test", "")
}

type fakeSocket struct{}

func (fakeSocket) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}

func (fakeSocket) Count() int { return 2 }

type fakeBroker struct{}

func (fakeBroker) Stats() mqtt.Stats { return mqtt.Stats{Connected: true, Subscriptions: 1} }

type testEnv struct {
	handler    http.Handler
	hubs       *hub.SQLiteRepository
	identities *identity.SQLiteRepository
	directives *fakeDirectives
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := dbtest.Open(t)
	env := &testEnv{
		hubs:       hub.NewSQLiteRepository(db.DB),
		identities: identity.NewSQLiteRepository(db.DB),
		directives: &fakeDirectives{},
	}

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1"},
		Security: config.SecurityConfig{
			JWT:         config.JWTConfig{Secret: testJWTSecret, AccessTokenTTL: 15},
			AdminSecret: testAdminSecret,
		},
		Logger:     logging.Discard(),
		DB:         db,
		Hubs:       env.hubs,
		Identities: env.identities,
		Audit:      audit.NewSQLiteRepository(db.DB),
		Directives: env.directives,
		HubSocket:  fakeSocket{},
		Gatherer:   prometheus.NewRegistry(),
		MQTT:       fakeBroker{},
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	env.handler = srv.Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal() error = %v", err)
		}
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/v1/admin/token", "", map[string]string{"secret": testAdminSecret})
	if rec.Code != http.StatusOK {
		t.Fatalf("token status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp tokenResponse
	decodeBody(t, rec, &resp)
	return resp.AccessToken
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestHubSocketRoute(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/hub/ws", "", nil)
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want socket handler", rec.Code)
	}
}

func TestDirectiveEndpoint(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/alexa/directive", bytes.NewBufferString(`{"directive":{}}`))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if string(env.directives.body) != `{"directive":{}}` {
		t.Errorf("handler got %q", env.directives.body)
	}
	var resp struct {
		Event struct {
			Header  alexa.Header      `json:"header"`
			Payload map[string]string `json:"payload"`
		} `json:"event"`
	}
	decodeBody(t, rec, &resp)
	if resp.Event.Payload["type"] != alexa.ErrTypeInvalidDirective {
		t.Errorf("payload = %v", resp.Event.Payload)
	}
}

func TestIssueToken(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"valid secret", map[string]string{"secret": testAdminSecret}, http.StatusOK},
		{"wrong secret", map[string]string{"secret": "nope"}, http.StatusUnauthorized},
		{"empty secret", map[string]string{}, http.StatusUnauthorized},
		{"invalid json", "not-an-object", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/admin/token", "", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want != http.StatusOK {
				return
			}
			var resp tokenResponse
			decodeBody(t, rec, &resp)
			if resp.TokenType != "Bearer" || resp.AccessToken == "" {
				t.Errorf("response = %+v", resp)
			}
			if resp.ExpiresIn <= 0 || resp.ExpiresIn > 15*60 {
				t.Errorf("ExpiresIn = %d", resp.ExpiresIn)
			}
		})
	}
}

func TestAdminAuth(t *testing.T) {
	env := newTestEnv(t)

	viewer := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "someone",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: "viewer",
	})
	viewerToken, err := viewer.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	foreign, _, err := auth.GenerateAdminToken("admin", "another-secret-entirely-32-chars!!", 5)
	if err != nil {
		t.Fatalf("GenerateAdminToken() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "not.a.jwt", http.StatusUnauthorized},
		{"wrong signing key", foreign, http.StatusUnauthorized},
		{"non-admin role", viewerToken, http.StatusForbidden},
		{"admin", env.token(t), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/admin/hubs", tt.token, nil)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestHubLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	rec := env.do(t, http.MethodPost, "/api/v1/admin/hubs", token, map[string]any{
		"label":            "Living room",
		"maxMsgsPerMinute": 10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", rec.Code, rec.Body.String())
	}
	var created createHubResponse
	decodeBody(t, rec, &created)
	if !created.OK || created.HubID == "" || created.Secret == "" || created.CreatedAt == "" {
		t.Fatalf("create response = %+v", created)
	}

	// The stored hash verifies the returned secret.
	stored, err := env.hubs.Get(context.Background(), created.HubID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok, err := auth.VerifySecret(created.Secret, stored.SecretHash); err != nil || !ok {
		t.Errorf("VerifySecret() = %v, %v", ok, err)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/admin/hubs/"+created.HubID, token, nil)
	var got struct {
		OK  bool    `json:"ok"`
		Hub hub.Hub `json:"hub"`
	}
	decodeBody(t, rec, &got)
	if got.Hub.Label != "Living room" || got.Hub.MaxMsgsPerMinute != 10 || got.Hub.Status != hub.StatusActive {
		t.Errorf("hub = %+v", got.Hub)
	}

	rec = env.do(t, http.MethodPatch, "/api/v1/admin/hubs/"+created.HubID, token, map[string]any{
		"label":      "Den",
		"ownerEmail": "owner@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d (%s)", rec.Code, rec.Body.String())
	}
	stored, _ = env.hubs.Get(context.Background(), created.HubID)
	if stored.Label != "Den" || stored.OwnerEmail != "owner@example.com" || stored.MaxMsgsPerMinute != 10 {
		t.Errorf("after patch = %+v", stored)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/admin/hubs/"+created.HubID+"/revoke", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("revoke status = %d", rec.Code)
	}
	var revoked map[string]any
	decodeBody(t, rec, &revoked)
	if revoked["status"] != "revoked" {
		t.Errorf("revoke response = %v", revoked)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/admin/hubs", token, nil)
	var list struct {
		Hubs []hub.Hub `json:"hubs"`
	}
	decodeBody(t, rec, &list)
	if len(list.Hubs) != 1 || list.Hubs[0].Status != hub.StatusRevoked {
		t.Errorf("list = %+v", list.Hubs)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/admin/hubs/"+created.HubID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/admin/hubs/"+created.HubID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}

	// Every mutation leaves an audit entry.
	rec = env.do(t, http.MethodGet, "/api/v1/admin/audit?entity_type=hub&entity_id="+created.HubID, token, nil)
	var logs audit.ListResult
	decodeBody(t, rec, &logs)
	if logs.Total != 4 {
		t.Errorf("audit total = %d, want 4", logs.Total)
	}
	for _, e := range logs.Entries {
		if e.Actor != adminSubject {
			t.Errorf("entry %s actor = %q", e.Action, e.Actor)
		}
	}
}

func TestHubErrors(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"create negative limit", http.MethodPost, "/api/v1/admin/hubs", map[string]any{"maxMsgsPerMinute": -1}, http.StatusBadRequest},
		{"get unknown", http.MethodGet, "/api/v1/admin/hubs/missing", nil, http.StatusNotFound},
		{"patch unknown", http.MethodPatch, "/api/v1/admin/hubs/missing", map[string]any{"label": "x"}, http.StatusNotFound},
		{"patch invalid json", http.MethodPatch, "/api/v1/admin/hubs/missing", "x", http.StatusBadRequest},
		{"revoke unknown", http.MethodPost, "/api/v1/admin/hubs/missing/revoke", nil, http.StatusNotFound},
		{"delete unknown", http.MethodDelete, "/api/v1/admin/hubs/missing", nil, http.StatusNotFound},
		{"users of unknown hub", http.MethodGet, "/api/v1/admin/hubs/missing/users", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, token, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestHubPatch_NegativeLimit(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	rec := env.do(t, http.MethodPost, "/api/v1/admin/hubs", token, map[string]any{})
	var created createHubResponse
	decodeBody(t, rec, &created)

	rec = env.do(t, http.MethodPatch, "/api/v1/admin/hubs/"+created.HubID, token, map[string]any{"maxMsgsPerMinute": -5})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	stored, _ := env.hubs.Get(context.Background(), created.HubID)
	if stored.MaxMsgsPerMinute != hub.DefaultMaxMsgsPerMinute || stored.Label != hub.DefaultLabel {
		t.Errorf("hub = %+v, want defaults", stored)
	}
}

func TestHubUsers(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodPost, "/api/v1/admin/hubs", token, map[string]any{"label": "Home"})
	var created createHubResponse
	decodeBody(t, rec, &created)
	base := "/api/v1/admin/hubs/" + created.HubID + "/users"

	rec = env.do(t, http.MethodPost, base, token, map[string]string{"email": "a@example.com"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing userId status = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodPost, base, token, map[string]string{"userId": "amzn1.account.A", "email": "a@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d (%s)", rec.Code, rec.Body.String())
	}
	stored, _ := env.hubs.Get(ctx, created.HubID)
	if stored.OwnerIdentity != "amzn1.account.A" {
		t.Errorf("OwnerIdentity = %q", stored.OwnerIdentity)
	}

	rec = env.do(t, http.MethodGet, base, token, nil)
	var list struct {
		HubID string         `json:"hubId"`
		Users []userResponse `json:"users"`
	}
	decodeBody(t, rec, &list)
	if list.HubID != created.HubID || len(list.Users) != 1 {
		t.Fatalf("users = %+v", list)
	}
	u := list.Users[0]
	if u.UserID != "amzn1.account.A" || u.Email != "a@example.com" || u.MappedAt == "" || u.AlexaLinked {
		t.Errorf("user = %+v", u)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/admin/users/amzn1.account.A", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove status = %d", rec.Code)
	}
	if _, err := env.identities.Get(ctx, "amzn1.account.A"); err == nil {
		t.Error("identity still present after remove")
	}

	// Removing again still succeeds.
	rec = env.do(t, http.MethodDelete, "/api/v1/admin/users/amzn1.account.A", token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("second remove status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/admin/audit?entity_type=identity", token, nil)
	var logs audit.ListResult
	decodeBody(t, rec, &logs)
	if logs.Total != 3 {
		t.Errorf("identity audit total = %d, want 3 (map, unmap, unmap)", logs.Total)
	}
}

func TestSystemMetrics(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t)

	env.do(t, http.MethodPost, "/api/v1/admin/hubs", token, map[string]any{})

	rec := env.do(t, http.MethodGet, "/api/v1/admin/system", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var m SystemMetrics
	decodeBody(t, rec, &m)
	if m.Version != "test" || m.HubSockets.Open != 2 {
		t.Errorf("metrics = %+v", m)
	}
	if m.Hubs.Total != 1 || m.Hubs.Active != 1 {
		t.Errorf("hubs = %+v", m.Hubs)
	}
	if m.MQTT == nil || !m.MQTT.Connected {
		t.Errorf("mqtt = %+v", m.MQTT)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("runtime goroutines = 0")
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/admin/hubs", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Error("Access-Control-Allow-Origin missing")
	}
}
