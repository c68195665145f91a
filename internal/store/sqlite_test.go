package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/agro-solar-web/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "agro.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestDeviceUpsertAndGet(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetDevice(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("expected nil device, got %v, %v", got, err)
	}

	first := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := repo.UpsertDevice(ctx, &domain.Device{DeviceID: "d1", FirstSeenAt: first, LastSeenAt: first}); err != nil {
		t.Fatalf("UpsertDevice failed: %v", err)
	}

	later := time.Now().Truncate(time.Second)
	if err := repo.UpsertDevice(ctx, &domain.Device{DeviceID: "d1", FirstSeenAt: later, LastSeenAt: later}); err != nil {
		t.Fatalf("UpsertDevice failed: %v", err)
	}

	got, err = repo.GetDevice(ctx, "d1")
	if err != nil {
		t.Fatalf("GetDevice failed: %v", err)
	}
	if !got.FirstSeenAt.Equal(first) {
		t.Errorf("expected first_seen_at %v to be preserved, got %v", first, got.FirstSeenAt)
	}
	if !got.LastSeenAt.Equal(later) {
		t.Errorf("expected last_seen_at %v, got %v", later, got.LastSeenAt)
	}
}

func TestAnalysesNewestFirst(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i, name := range []string{"a.png", "b.png", "c.png"} {
		err := repo.InsertAnalysis(ctx, &domain.Analysis{
			ID:          name,
			DeviceID:    "d1",
			Filename:    name,
			ContentType: "image/png",
			Size:        10,
			Prediction:  json.RawMessage(`{"label":"healthy"}`),
			Message:     "ok",
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("InsertAnalysis failed: %v", err)
		}
	}
	if err := repo.InsertAnalysis(ctx, &domain.Analysis{ID: "other", DeviceID: "d2", Filename: "x.png", CreatedAt: base}); err != nil {
		t.Fatalf("InsertAnalysis failed: %v", err)
	}

	list, err := repo.ListAnalyses(ctx, "d1", 2)
	if err != nil {
		t.Fatalf("ListAnalyses failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 analyses, got %d", len(list))
	}
	if list[0].Filename != "c.png" || list[1].Filename != "b.png" {
		t.Errorf("unexpected order: %s, %s", list[0].Filename, list[1].Filename)
	}
	if string(list[0].Prediction) != `{"label":"healthy"}` {
		t.Errorf("unexpected prediction: %s", list[0].Prediction)
	}
}

func TestPruneAnalyses(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	old := &domain.Analysis{ID: "old", DeviceID: "d1", Filename: "old.png", CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &domain.Analysis{ID: "fresh", DeviceID: "d1", Filename: "fresh.png", CreatedAt: time.Now()}
	for _, a := range []*domain.Analysis{old, fresh} {
		if err := repo.InsertAnalysis(ctx, a); err != nil {
			t.Fatalf("InsertAnalysis failed: %v", err)
		}
	}

	n, err := repo.PruneAnalyses(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("PruneAnalyses failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}
}

func TestDeleteIdleDevices(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	stale := time.Now().Add(-48 * time.Hour)
	now := time.Now()
	if err := repo.UpsertDevice(ctx, &domain.Device{DeviceID: "stale", FirstSeenAt: stale, LastSeenAt: stale}); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpsertDevice(ctx, &domain.Device{DeviceID: "fresh", FirstSeenAt: now, LastSeenAt: now}); err != nil {
		t.Fatal(err)
	}
	if err := repo.InsertAnalysis(ctx, &domain.Analysis{ID: "s1", DeviceID: "stale", Filename: "s.png", CreatedAt: now}); err != nil {
		t.Fatal(err)
	}

	n, err := repo.DeleteIdleDevices(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteIdleDevices failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 device deleted, got %d", n)
	}
	list, err := repo.ListAnalyses(ctx, "stale", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Fatalf("expected stale device history removed, got %d", len(list))
	}
	if d, _ := repo.GetDevice(ctx, "fresh"); d == nil {
		t.Fatal("expected fresh device to remain")
	}
}
