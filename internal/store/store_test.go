package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestExternalID(t *testing.T) {
	tests := []struct {
		name string
		item string
		want string
	}{
		{"string id", `{"id":"MLB123","title":"x"}`, "MLB123"},
		{"numeric id", `{"id":2000001,"status":"paid"}`, "2000001"},
		{"missing id", `{"title":"x"}`, ""},
		{"null id", `{"id":null}`, ""},
		{"object id", `{"id":{"nested":true}}`, ""},
		{"invalid json", `not json`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExternalID(json.RawMessage(tt.item)); got != tt.want {
				t.Fatalf("ExternalID(%s) = %q, want %q", tt.item, got, tt.want)
			}
		})
	}
}

func TestMemoryUpsertDeduplicates(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()

	first := []json.RawMessage{
		json.RawMessage(`{"id":"MLB1","price":10}`),
		json.RawMessage(`{"id":"MLB2","price":20}`),
	}
	if err := mem.UpsertRecords(ctx, "acct", "items", first); err != nil {
		t.Fatalf("UpsertRecords() error = %v", err)
	}

	// Re-syncing the same records must overwrite, not duplicate.
	second := []json.RawMessage{
		json.RawMessage(`{"id":"MLB1","price":15}`),
	}
	if err := mem.UpsertRecords(ctx, "acct", "items", second); err != nil {
		t.Fatalf("UpsertRecords() error = %v", err)
	}

	if got := mem.RecordCount(); got != 2 {
		t.Fatalf("RecordCount() = %d, want 2", got)
	}
}

func TestMemoryKeysPerAccountAndEndpoint(t *testing.T) {
	mem := NewMemory()
	ctx := context.Background()
	item := []json.RawMessage{json.RawMessage(`{"id":"1"}`)}

	if err := mem.UpsertRecords(ctx, "acct-a", "items", item); err != nil {
		t.Fatalf("UpsertRecords() error = %v", err)
	}
	if err := mem.UpsertRecords(ctx, "acct-a", "orders", item); err != nil {
		t.Fatalf("UpsertRecords() error = %v", err)
	}
	if err := mem.UpsertRecords(ctx, "acct-b", "items", item); err != nil {
		t.Fatalf("UpsertRecords() error = %v", err)
	}

	if got := mem.RecordCount(); got != 3 {
		t.Fatalf("RecordCount() = %d, want 3 (same id, distinct scopes)", got)
	}
}

func TestMemoryItemsWithoutIDAreKept(t *testing.T) {
	mem := NewMemory()

	items := []json.RawMessage{
		json.RawMessage(`{"title":"no id here"}`),
		json.RawMessage(`{"title":"neither here"}`),
	}
	if err := mem.UpsertRecords(context.Background(), "acct", "items", items); err != nil {
		t.Fatalf("UpsertRecords() error = %v", err)
	}

	if got := mem.RecordCount(); got != 2 {
		t.Fatalf("RecordCount() = %d, want 2", got)
	}
}

func TestMemoryRecordSyncRun(t *testing.T) {
	mem := NewMemory()
	startedAt := time.Now().UTC()
	counts := map[string]int{"items": 4, "orders": 2}

	if err := mem.RecordSyncRun(context.Background(), "acct", startedAt, counts, ""); err != nil {
		t.Fatalf("RecordSyncRun() error = %v", err)
	}
	if err := mem.RecordSyncRun(context.Background(), "acct", startedAt, nil, "drain items: boom"); err != nil {
		t.Fatalf("RecordSyncRun() error = %v", err)
	}

	// Mutating the caller's map must not leak into the stored run.
	counts["items"] = 99

	runs := mem.Runs()
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].Counts["items"] != 4 {
		t.Fatalf("runs[0].Counts = %v, want the snapshot at record time", runs[0].Counts)
	}
	if runs[1].Error != "drain items: boom" {
		t.Fatalf("runs[1].Error = %q", runs[1].Error)
	}
}
