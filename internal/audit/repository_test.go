package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database/dbtest"
)

func TestRepository_CreateAndList(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()
	base := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Action: ActionCreate, EntityType: EntityHub, EntityID: "hub-1", Actor: "admin", Source: SourceAdmin, CreatedAt: base},
		{Action: ActionMap, EntityType: EntityIdentity, EntityID: "amzn-1", Source: SourceAdmin, Details: map[string]any{"hubId": "hub-1"}, CreatedAt: base.Add(time.Minute)},
		{Action: ActionRevoke, EntityType: EntityHub, EntityID: "hub-1", Source: SourceAdmin, CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if entries[i].ID == "" {
			t.Fatal("Create() did not assign an id")
		}
	}

	tests := []struct {
		name       string
		filter     Filter
		wantTotal  int
		wantFirst  string
		wantLength int
	}{
		{"all newest first", Filter{}, 3, ActionRevoke, 3},
		{"by entity type", Filter{EntityType: EntityHub}, 2, ActionRevoke, 2},
		{"by action", Filter{Action: ActionMap}, 1, ActionMap, 1},
		{"by entity id", Filter{EntityID: "amzn-1"}, 1, ActionMap, 1},
		{"paged", Filter{Limit: 1, Offset: 1}, 3, ActionMap, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal || len(res.Entries) != tt.wantLength {
				t.Fatalf("total %d len %d, want %d %d", res.Total, len(res.Entries), tt.wantTotal, tt.wantLength)
			}
			if res.Entries[0].Action != tt.wantFirst {
				t.Errorf("first action = %s, want %s", res.Entries[0].Action, tt.wantFirst)
			}
		})
	}

	res, err := repo.List(ctx, Filter{Action: ActionMap})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if got := res.Entries[0]; got.Details["hubId"] != "hub-1" || !got.CreatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("entry = %+v", got)
	}
}

func TestRepository_ListClampsLimit(t *testing.T) {
	repo := NewSQLiteRepository(dbtest.Open(t).DB)
	res, err := repo.List(context.Background(), Filter{Limit: 10_000, Offset: -4})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Limit != MaxLimit || res.Offset != 0 || res.Entries == nil {
		t.Errorf("result = %+v", res)
	}
}

type failingRepo struct{ Repository }

func (failingRepo) Create(context.Context, *Entry) error { return errors.New("disk full") }

type captureLogger struct{ warned int }

func (c *captureLogger) Warn(string, ...any) { c.warned++ }

func TestRecorder(t *testing.T) {
	repo := NewSQLiteRepository(dbtest.Open(t).DB)
	rec := NewRecorder(repo)
	rec.Record(context.Background(), ActionDelete, EntityHub, "hub-9", "admin", nil)

	res, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].Source != SourceAdmin || res.Entries[0].Actor != "admin" {
		t.Errorf("entries = %+v", res.Entries)
	}

	logger := &captureLogger{}
	failing := NewRecorder(failingRepo{})
	failing.SetLogger(logger)
	failing.Record(context.Background(), ActionDelete, EntityHub, "hub-9", "admin", nil)
	if logger.warned != 1 {
		t.Errorf("warnings = %d, want 1", logger.warned)
	}
}
