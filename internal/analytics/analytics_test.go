package analytics

import (
	"context"
	"testing"
	"time"

	"replay-warden/internal/storage"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestQueueListsPendingOldestFirst(t *testing.T) {
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	records := []storage.Record{
		{UserID: "newer", FileName: "b.SC2Replay", SubmittedAt: base.Add(48 * time.Hour)},
		{UserID: "older", FileName: "a.SC2Replay", SubmittedAt: base},
		{UserID: "done", FileName: "c.SC2Replay", SubmittedAt: base.Add(-time.Hour), Reviewed: true},
	}
	for _, record := range records {
		if err := store.UpsertRecord(ctx, record); err != nil {
			t.Fatalf("upsert %s: %v", record.UserID, err)
		}
	}

	svc := New(store, fixedClock{now: base.Add(72 * time.Hour)})
	report, err := svc.Queue(ctx, 0)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(report.Entries) != 2 {
		t.Fatalf("expected 2 pending entries, got %d", len(report.Entries))
	}
	if report.Entries[0].Record.UserID != "older" || report.Entries[1].Record.UserID != "newer" {
		t.Fatalf("unexpected order: %s, %s", report.Entries[0].Record.UserID, report.Entries[1].Record.UserID)
	}
	if report.Oldest != 72*time.Hour {
		t.Fatalf("expected oldest age 72h, got %s", report.Oldest)
	}
	if report.Entries[1].Age != 24*time.Hour {
		t.Fatalf("expected 24h age, got %s", report.Entries[1].Age)
	}
}

func TestQueueRespectsLimit(t *testing.T) {
	store, err := storage.OpenJSON(t.TempDir() + "/db.json")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		record := storage.Record{UserID: id, FileName: id + ".SC2Replay", SubmittedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.UpsertRecord(ctx, record); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	report, err := New(store, fixedClock{now: base}).Queue(ctx, 2)
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	if len(report.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(report.Entries))
	}
	if report.Entries[0].Record.UserID != "a" {
		t.Fatalf("expected a first, got %s", report.Entries[0].Record.UserID)
	}
}
