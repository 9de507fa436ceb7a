package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mmynk/studygroup/internal/clock"
	"github.com/mmynk/studygroup/internal/docstore"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("Set then Get round trips data", func(t *testing.T) {
		doc, err := store.Set(ctx, "groups/g1", map[string]any{"name": "Algebra", "users": []string{"a"}})
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if doc.Version != 1 {
			t.Errorf("Version = %d, want 1", doc.Version)
		}

		got, err := store.Get(ctx, "groups/g1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		var out struct {
			Name  string   `json:"name"`
			Users []string `json:"users"`
		}
		if err := got.DataTo(&out); err != nil {
			t.Fatalf("DataTo failed: %v", err)
		}
		if out.Name != "Algebra" || len(out.Users) != 1 {
			t.Errorf("got %+v", out)
		}
		if got.ID() != "g1" {
			t.Errorf("ID = %q, want g1", got.ID())
		}
	})

	t.Run("Set on existing document bumps version", func(t *testing.T) {
		doc, err := store.Set(ctx, "groups/g1", map[string]any{"name": "Algebra II"})
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if doc.Version != 2 {
			t.Errorf("Version = %d, want 2", doc.Version)
		}
	})

	t.Run("Get returns ErrNotFound for missing document", func(t *testing.T) {
		_, err := store.Get(ctx, "groups/missing")
		if !errors.Is(err, docstore.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("Set rejects collection paths", func(t *testing.T) {
		if _, err := store.Set(ctx, "groups", map[string]any{}); err == nil {
			t.Error("expected error for collection path")
		}
	})

	t.Run("Delete removes and then reports not found", func(t *testing.T) {
		if _, err := store.Set(ctx, "groups/tmp", map[string]any{}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if err := store.Delete(ctx, "groups/tmp"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if err := store.Delete(ctx, "groups/tmp"); !errors.Is(err, docstore.ErrNotFound) {
			t.Errorf("second Delete err = %v, want ErrNotFound", err)
		}
	})
}

func TestStoreAtomicUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Set(ctx, "groups/g", map[string]any{"users": []string{"a"}, "memberCount": 1}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	t.Run("ArrayUnion and Increment apply together", func(t *testing.T) {
		doc, err := store.Update(ctx, "groups/g", []docstore.Update{
			{Field: "users", Value: docstore.ArrayUnion("b")},
			{Field: "memberCount", Value: docstore.Increment(1)},
		}, docstore.NotContains("users", "b"))
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if users := doc.Data["users"].([]any); len(users) != 2 {
			t.Errorf("users = %v", users)
		}
		if doc.Data["memberCount"] != float64(2) {
			t.Errorf("memberCount = %v, want 2", doc.Data["memberCount"])
		}
	})

	t.Run("failed precondition writes nothing", func(t *testing.T) {
		_, err := store.Update(ctx, "groups/g", []docstore.Update{
			{Field: "memberCount", Value: docstore.Increment(1)},
		}, docstore.NotContains("users", "b"))
		if !errors.Is(err, docstore.ErrPreconditionFailed) {
			t.Fatalf("err = %v, want ErrPreconditionFailed", err)
		}
		doc, _ := store.Get(ctx, "groups/g")
		if doc.Data["memberCount"] != float64(2) {
			t.Errorf("memberCount = %v, want unchanged 2", doc.Data["memberCount"])
		}
	})

	t.Run("ArrayRemove drops the value", func(t *testing.T) {
		doc, err := store.Update(ctx, "groups/g", []docstore.Update{
			{Field: "users", Value: docstore.ArrayRemove("a")},
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		users := doc.Data["users"].([]any)
		if len(users) != 1 || users[0] != "b" {
			t.Errorf("users = %v, want [b]", users)
		}
	})

	t.Run("Update on missing document", func(t *testing.T) {
		_, err := store.Update(ctx, "groups/nope", []docstore.Update{{Field: "x", Value: 1}})
		if !errors.Is(err, docstore.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		if _, err := store.Set(ctx, "counters/c", map[string]any{"n": 0}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Update(ctx, "counters/c", []docstore.Update{{Field: "n", Value: docstore.Increment(1)}}); err != nil {
					t.Errorf("Update failed: %v", err)
				}
			}()
		}
		wg.Wait()
		doc, _ := store.Get(ctx, "counters/c")
		if doc.Data["n"] != float64(20) {
			t.Errorf("n = %v, want 20", doc.Data["n"])
		}
	})
}

func TestStoreServerTimestampsIncrease(t *testing.T) {
	fake := clock.Fake(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	store := newTestStore(t, WithClock(fake))
	ctx := context.Background()

	var stamps []string
	for i := 0; i < 3; i++ {
		doc, err := store.Add(ctx, "groups/g/messages", map[string]any{"text": "hi"},
			docstore.Update{Field: "timestamp", Value: docstore.ServerTimestamp})
		if err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		stamps = append(stamps, doc.Data["timestamp"].(string))
	}

	docs, err := store.Query(ctx, docstore.Query{Collection: "groups/g/messages"}.Ordered("timestamp", false))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("got %d docs, want 3", len(docs))
	}
	for i, d := range docs {
		if d.Data["timestamp"] != stamps[i] {
			t.Errorf("position %d has timestamp %v, want %v", i, d.Data["timestamp"], stamps[i])
		}
	}
}

func TestStoreQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, g := range []map[string]any{
		{"name": "Chem", "users": []string{"a", "b"}, "memberCount": 2},
		{"name": "Bio", "users": []string{"b"}, "memberCount": 1},
		{"name": "Art", "users": []string{"c"}, "memberCount": 1},
	} {
		if _, err := store.Add(ctx, "groups", g); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	t.Run("array-contains with ordering", func(t *testing.T) {
		docs, err := store.Query(ctx, docstore.Query{Collection: "groups"}.
			Where("users", docstore.OpArrayContains, "b").
			Ordered("name", false))
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(docs) != 2 || docs[0].Data["name"] != "Bio" || docs[1].Data["name"] != "Chem" {
			t.Errorf("unexpected result %v", names(docs))
		}
	})

	t.Run("numeric comparison and limit", func(t *testing.T) {
		docs, err := store.Query(ctx, docstore.Query{Collection: "groups", Limit: 1}.
			Where("memberCount", docstore.OpLessEqual, 1).
			Ordered("name", true))
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(docs) != 1 || docs[0].Data["name"] != "Bio" {
			t.Errorf("unexpected result %v", names(docs))
		}
	})

	t.Run("Collections and DeleteCollection", func(t *testing.T) {
		if _, err := store.Add(ctx, "groups/x/messages", map[string]any{"text": "a"}); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		cols, err := store.Collections(ctx, "groups/")
		if err != nil {
			t.Fatalf("Collections failed: %v", err)
		}
		if len(cols) != 1 || cols[0] != "groups/x/messages" {
			t.Errorf("Collections = %v", cols)
		}
		n, err := store.DeleteCollection(ctx, "groups/x/messages")
		if err != nil || n != 1 {
			t.Errorf("DeleteCollection = %d, %v", n, err)
		}
	})
}

func names(docs []*docstore.Document) []any {
	var out []any
	for _, d := range docs {
		out = append(out, d.Data["name"])
	}
	return out
}

func TestStoreTransact(t *testing.T) {
	ctx := context.Background()

	t.Run("retries after a concurrent write", func(t *testing.T) {
		conflicts := 0
		store := newTestStore(t, WithConflictHook(func(string) { conflicts++ }))
		if _, err := store.Set(ctx, "groups/g", map[string]any{"events": []any{}}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		calls := 0
		doc, err := store.Transact(ctx, "groups/g", func(d *docstore.Document) (map[string]any, error) {
			calls++
			if calls == 1 {
				// Another writer commits between our read and write.
				if _, err := store.Update(ctx, "groups/g", []docstore.Update{{Field: "name", Value: "sneaky"}}); err != nil {
					return nil, err
				}
			}
			events, _ := d.Data["events"].([]any)
			return map[string]any{"events": append(events, "e1")}, nil
		})
		if err != nil {
			t.Fatalf("Transact failed: %v", err)
		}
		if calls != 2 {
			t.Errorf("fn called %d times, want 2", calls)
		}
		if conflicts != 1 {
			t.Errorf("conflicts = %d, want 1", conflicts)
		}
		if doc.Data["name"] != "sneaky" {
			t.Error("concurrent write was lost")
		}
		if events := doc.Data["events"].([]any); len(events) != 1 {
			t.Errorf("events = %v", events)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		store := newTestStore(t, WithMaxAttempts(2))
		if _, err := store.Set(ctx, "groups/g", map[string]any{"n": 0}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		_, err := store.Transact(ctx, "groups/g", func(d *docstore.Document) (map[string]any, error) {
			if _, err := store.Update(ctx, "groups/g", []docstore.Update{{Field: "n", Value: docstore.Increment(1)}}); err != nil {
				return nil, err
			}
			return map[string]any{"x": true}, nil
		})
		if !errors.Is(err, docstore.ErrConflict) {
			t.Errorf("err = %v, want ErrConflict", err)
		}
	})

	t.Run("nil fields commit nothing", func(t *testing.T) {
		store := newTestStore(t)
		if _, err := store.Set(ctx, "groups/g", map[string]any{}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		doc, err := store.Transact(ctx, "groups/g", func(*docstore.Document) (map[string]any, error) { return nil, nil })
		if err != nil {
			t.Fatalf("Transact failed: %v", err)
		}
		if doc.Version != 1 {
			t.Errorf("Version = %d, want 1", doc.Version)
		}
	})
}

func TestStoreSubscribe(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batches := make(chan int, 16)
	sub, err := store.Subscribe(ctx, docstore.Query{Collection: "groups/g/messages"}, func(docs []*docstore.Document) {
		batches <- len(docs)
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if n := <-batches; n != 0 {
		t.Errorf("initial batch has %d docs, want 0", n)
	}

	if _, err := store.Add(ctx, "groups/g/messages", map[string]any{"text": "one"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if n := <-batches; n != 1 {
		t.Errorf("batch after add has %d docs, want 1", n)
	}

	// Writes to other collections do not wake the subscription.
	if _, err := store.Add(ctx, "groups/other/messages", map[string]any{"text": "x"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if store.Subscriptions() != 1 {
		t.Errorf("Subscriptions = %d, want 1", store.Subscriptions())
	}
	sub.Stop()
	if store.Subscriptions() != 0 {
		t.Errorf("Subscriptions after Stop = %d, want 0", store.Subscriptions())
	}
	select {
	case n := <-batches:
		t.Errorf("unexpected batch of %d after cross-collection write", n)
	default:
	}
}
