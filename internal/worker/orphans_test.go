package worker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmynk/studygroup/internal/docstore"
	"github.com/mmynk/studygroup/internal/docstore/sqlite"
	"github.com/mmynk/studygroup/internal/models"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func addMessages(t *testing.T, store docstore.Store, gid string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := store.Add(context.Background(), models.MessagesPath(gid), models.Message{Text: "hi", UserID: "A"}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}
}

func TestCollect(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Set(ctx, models.GroupPath("live"), map[string]any{"name": "Live", "users": []string{"A"}, "memberCount": 1}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	addMessages(t, store, "live", 2)
	addMessages(t, store, "gone", 3)

	var collected []string
	c := NewOrphanCollector(store, time.Minute)
	c.OnCollected = func(gid string, n int) {
		collected = append(collected, gid)
		if n != 3 {
			t.Errorf("OnCollected(%s) n = %d, want 3", gid, n)
		}
	}

	n, err := c.Collect(ctx)
	if err != nil {
		t.Fatalf("Collect failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Collect deleted %d, want 3", n)
	}
	if len(collected) != 1 || collected[0] != "gone" {
		t.Errorf("collected = %v", collected)
	}

	live, err := store.Query(ctx, docstore.Query{Collection: models.MessagesPath("live")})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(live) != 2 {
		t.Errorf("live group has %d messages, want 2", len(live))
	}

	if n, err := c.Collect(ctx); err != nil || n != 0 {
		t.Errorf("second pass = %d, %v; want 0, nil", n, err)
	}
}

func TestStartStopsWithContext(t *testing.T) {
	store := newTestStore(t)
	addMessages(t, store, "gone", 1)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewOrphanCollector(store, time.Hour)
	collected := make(chan int, 1)
	c.OnCollected = func(_ string, n int) { collected <- n }

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	select {
	case n := <-collected:
		if n != 1 {
			t.Errorf("collected %d, want 1", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first pass did not run")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
