package device

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/lms-io/alexa-slidebolt/internal/infrastructure/database/dbtest"
)

// setupTestDB opens a migrated database and returns a repository over it.
func setupTestDB(t *testing.T) *SQLiteRepository {
	t.Helper()
	return NewSQLiteRepository(dbtest.Open(t).DB)
}

func TestRepository_UpsertKeepsStateWhenAbsent(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	ep := json.RawMessage(`{"endpointId":"lamp-1","friendlyName":"Lamp"}`)
	state := json.RawMessage(`{"properties":[{"name":"powerState","value":"ON"}]}`)

	if err := repo.Upsert(ctx, "hub-1", "lamp-1", ep, state); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	renamed := json.RawMessage(`{"endpointId":"lamp-1","friendlyName":"Desk lamp"}`)
	if err := repo.Upsert(ctx, "hub-1", "lamp-1", renamed, nil); err != nil {
		t.Fatalf("Upsert(no state) error = %v", err)
	}

	d, err := repo.Get(ctx, "hub-1", "lamp-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(d.Endpoint) != string(renamed) {
		t.Errorf("Endpoint = %s, want %s", d.Endpoint, renamed)
	}
	if string(d.State) != string(state) {
		t.Errorf("State = %s, want %s", d.State, state)
	}
	if d.Status != StatusNew {
		t.Errorf("Status = %s, want new", d.Status)
	}
}

func TestRepository_HubScoping(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	state := json.RawMessage(`{"properties":[]}`)
	if err := repo.UpdateState(ctx, "hub-1", "lamp-1", state); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	if err := repo.UpdateState(ctx, "hub-2", "lamp-1", state); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}

	for _, hub := range []string{"hub-1", "hub-2"} {
		devices, err := repo.List(ctx, hub)
		if err != nil {
			t.Fatalf("List(%s) error = %v", hub, err)
		}
		if len(devices) != 1 || devices[0].HubID != hub {
			t.Errorf("List(%s) = %+v", hub, devices)
		}
	}

	if err := repo.Delete(ctx, "hub-1", "lamp-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, "hub-2", "lamp-1"); err != nil {
		t.Errorf("other hub's device removed: %v", err)
	}
	if err := repo.Delete(ctx, "hub-1", "lamp-1"); err != nil {
		t.Errorf("Delete(absent) error = %v", err)
	}
}

func TestRepository_SetStatusIfAndPurge(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	changed, err := repo.SetStatusIf(ctx, "hub-1", "ghost", StatusDeleted, []Status{StatusNew, StatusActive})
	if err != nil || changed {
		t.Errorf("SetStatusIf(absent) = %v, %v; want false, nil", changed, err)
	}

	if err := repo.UpdateState(ctx, "hub-1", "lamp-1", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}

	removed, err := repo.DeleteIfDeleted(ctx, "hub-1", "lamp-1")
	if err != nil {
		t.Fatalf("DeleteIfDeleted() error = %v", err)
	}
	if removed {
		t.Error("DeleteIfDeleted() removed a row that was not marked deleted")
	}

	// The guard rejects a row whose status is not listed.
	changed, err = repo.SetStatusIf(ctx, "hub-1", "lamp-1", StatusActive, []Status{StatusDeleted})
	if err != nil || changed {
		t.Errorf("SetStatusIf(active, from deleted) = %v, %v; want false, nil", changed, err)
	}
	if d, _ := repo.Get(ctx, "hub-1", "lamp-1"); d == nil || d.Status != StatusNew {
		t.Errorf("status after rejected SetStatusIf = %+v, want new", d)
	}

	changed, err = repo.SetStatusIf(ctx, "hub-1", "lamp-1", StatusDeleted, []Status{StatusNew, StatusActive})
	if err != nil || !changed {
		t.Fatalf("SetStatusIf() = %v, %v; want true, nil", changed, err)
	}
	deleted, err := repo.ListByStatus(ctx, "hub-1", StatusDeleted)
	if err != nil {
		t.Fatalf("ListByStatus() error = %v", err)
	}
	if len(deleted) != 1 {
		t.Fatalf("ListByStatus(deleted) = %d devices, want 1", len(deleted))
	}

	removed, err = repo.DeleteIfDeleted(ctx, "hub-1", "lamp-1")
	if err != nil {
		t.Fatalf("DeleteIfDeleted() error = %v", err)
	}
	if !removed {
		t.Error("DeleteIfDeleted() did not remove the deleted row")
	}
}

func TestRepository_PurgeOrphans(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewSQLiteRepository(db.DB)
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `
		INSERT INTO hubs (hub_id, secret_hash, created_at, updated_at)
		VALUES ('hub-live', 'x', '2026-01-01T00:00:00.000Z', '2026-01-01T00:00:00.000Z')`); err != nil {
		t.Fatalf("insert hub: %v", err)
	}
	for _, hub := range []string{"hub-live", "hub-gone"} {
		if err := repo.UpdateState(ctx, hub, "lamp-1", json.RawMessage(`{}`)); err != nil {
			t.Fatalf("UpdateState() error = %v", err)
		}
	}

	n, err := repo.PurgeOrphans(ctx)
	if err != nil {
		t.Fatalf("PurgeOrphans() error = %v", err)
	}
	if n != 1 {
		t.Errorf("PurgeOrphans() = %d, want 1", n)
	}
	if _, err := repo.Get(ctx, "hub-live", "lamp-1"); err != nil {
		t.Errorf("live hub device removed: %v", err)
	}
}
