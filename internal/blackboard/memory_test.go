package blackboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
)

func TestMemoryPutWatch(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watch, err := store.Watch(ctx, "cat:*")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	store.Put(ctx, "dog:score", 1, true)
	if _, err := store.Put(ctx, "cat:score", 2, true); err != nil {
		t.Fatalf("put: %v", err)
	}
	select {
	case upd := <-watch:
		if upd.Key != "cat:score" || upd.Value != 2 {
			t.Fatalf("unexpected update %+v", upd)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for update")
	}
}

func TestMemoryGetMissing(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	if _, _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryTxnVersions(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()
	store.Put(ctx, "cat:a", 1, false)
	err := store.Txn(ctx, []core.VariableUpdate{{Key: "cat:a", Value: 5, Visible: true}, {Key: "cat:b", Value: "x"}})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}
	upd, ver, _ := store.Get(ctx, "cat:a")
	if ver != 2 || upd.Value != 5 || !upd.Visible {
		t.Fatalf("unexpected entry %+v version %d", upd, ver)
	}
}
