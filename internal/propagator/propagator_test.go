package propagator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/lms-io/alexa-slidebolt/internal/hub"
	"github.com/lms-io/alexa-slidebolt/internal/stream"
)

type fakeHubs map[string]*hub.Hub

func (f fakeHubs) Get(_ context.Context, id string) (*hub.Hub, error) {
	h, ok := f[id]
	if !ok {
		return nil, hub.ErrHubNotFound
	}
	return h, nil
}

type fakeTokens map[string]string

func (f fakeTokens) GetValidToken(_ context.Context, identityID string) (string, bool) {
	t, ok := f[identityID]
	return t, ok
}

type changeCall struct {
	token, endpointID string
	properties        []json.RawMessage
}

type deleteCall struct {
	token string
	ids   []string
}

type fakeReporter struct {
	changes []changeCall
	deletes []deleteCall
	err     error
}

func (f *fakeReporter) SendChangeReport(_ context.Context, token, endpointID string, properties []json.RawMessage) error {
	f.changes = append(f.changes, changeCall{token, endpointID, properties})
	return f.err
}

func (f *fakeReporter) SendDeleteReport(_ context.Context, token string, ids []string) error {
	f.deletes = append(f.deletes, deleteCall{token, ids})
	return f.err
}

func rec(op stream.Op, oldStatus, newStatus, oldState, newState string) stream.Record {
	r := stream.Record{
		Kind: stream.KindDevice, Op: op, HubID: "hub-1", EndpointID: "lamp",
		OldStatus: oldStatus, NewStatus: newStatus,
	}
	if oldState != "" {
		r.OldState = json.RawMessage(oldState)
	}
	if newState != "" {
		r.NewState = json.RawMessage(newState)
	}
	return r
}

func TestClassify(t *testing.T) {
	const s1 = `{"properties":[{"name":"powerState","value":"ON"}]}`
	const s2 = `{"properties":[{"name":"powerState","value":"OFF"}]}`

	tests := []struct {
		name string
		r    stream.Record
		want Action
	}{
		{"state change", rec(stream.OpModify, "active", "active", s1, s2), ActionChange},
		{"same state", rec(stream.OpModify, "active", "active", s1, s1), ActionSkip},
		{"status only new to active", rec(stream.OpModify, "new", "active", s1, s1), ActionSkip},
		{"soft delete with same state", rec(stream.OpModify, "active", "deleted", s1, s1), ActionDelete},
		{"new to deleted is not reported", rec(stream.OpModify, "new", "deleted", s1, s1), ActionSkip},
		{"restore with same state", rec(stream.OpModify, "deleted", "active", s1, s1), ActionSkip},
		{"nil equals empty object", rec(stream.OpModify, "active", "active", "", "{}"), ActionSkip},
		{"insert with state", rec(stream.OpInsert, "", "new", "", s1), ActionChange},
		{"insert without state", rec(stream.OpInsert, "", "new", "", ""), ActionSkip},
		{"remove", rec(stream.OpRemove, "deleted", "", s1, ""), ActionDelete},
		{"other kind", stream.Record{Kind: "hub", Op: stream.OpRemove}, ActionSkip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.r); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandle(t *testing.T) {
	const newState = `{"properties":[{"namespace":"Alexa.PowerController","name":"powerState","value":"ON"}]}`

	owned := fakeHubs{
		"hub-1":   {ID: "hub-1", OwnerIdentity: "amzn-1"},
		"orphan":  {ID: "orphan"},
		"notoken": {ID: "notoken", OwnerIdentity: "amzn-2"},
	}
	tokens := fakeTokens{"amzn-1": "tok"}

	t.Run("change report", func(t *testing.T) {
		rep := &fakeReporter{}
		p := New(owned, tokens, rep)
		p.Handle(context.Background(), rec(stream.OpModify, "active", "active", `{}`, newState))

		if len(rep.changes) != 1 || len(rep.deletes) != 0 {
			t.Fatalf("changes = %d, deletes = %d", len(rep.changes), len(rep.deletes))
		}
		c := rep.changes[0]
		if c.token != "tok" || c.endpointID != "lamp" || len(c.properties) != 1 {
			t.Errorf("change call = %+v", c)
		}
	})

	t.Run("soft delete", func(t *testing.T) {
		rep := &fakeReporter{}
		p := New(owned, tokens, rep)
		p.Handle(context.Background(), rec(stream.OpModify, "active", "deleted", newState, newState))

		if len(rep.deletes) != 1 || rep.deletes[0].ids[0] != "lamp" || rep.deletes[0].token != "tok" {
			t.Errorf("deletes = %+v", rep.deletes)
		}
	})

	t.Run("skips", func(t *testing.T) {
		for _, hubID := range []string{"orphan", "notoken", "missing"} {
			rep := &fakeReporter{}
			r := rec(stream.OpRemove, "deleted", "", newState, "")
			r.HubID = hubID
			New(owned, tokens, rep).Handle(context.Background(), r)
			if len(rep.deletes)+len(rep.changes) != 0 {
				t.Errorf("hub %s: report sent", hubID)
			}
		}
	})

	t.Run("failures are absorbed", func(t *testing.T) {
		rep := &fakeReporter{err: errors.New("gateway down")}
		p := New(owned, tokens, rep)
		err := p.Deliver(context.Background(), rec(stream.OpRemove, "deleted", "", newState, ""))
		if err != nil {
			t.Errorf("Deliver() error = %v", err)
		}
		if len(rep.deletes) != 1 {
			t.Errorf("deletes = %d, want 1 attempt", len(rep.deletes))
		}
	})
}
