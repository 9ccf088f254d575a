package blackboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tomas-wrobel/scrap-engine-sub002/internal/core"
)

func TestPutGetWatch(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer s.Close()

	store := NewRedisStore(&redis.Options{Addr: s.Addr()}, "scrap:", nil)
	defer store.Close()
	ctx := context.Background()
	watch, err := store.Watch(ctx, "cat:*")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	key := Key("cat", "score")
	ver, err := store.Put(ctx, key, 3, true)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	upd, v, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if upd.Value.(float64) != 3 || !upd.Visible || v != ver {
		t.Fatalf("unexpected update %+v or version %d", upd, v)
	}
	select {
	case got := <-watch:
		if got.Key != key {
			t.Fatalf("unexpected key %s", got.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for watch event")
	}
}

func TestVersionIncrements(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer s.Close()

	store := NewRedisStore(&redis.Options{Addr: s.Addr()}, "scrap:", nil)
	defer store.Close()
	ctx := context.Background()
	store.Put(ctx, "cat:x", 1, false)
	ver, err := store.Put(ctx, "cat:x", 2, false)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ver != 2 {
		t.Fatalf("expected version 2, got %d", ver)
	}
}

func TestTxnAndDelete(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer s.Close()

	store := NewRedisStore(&redis.Options{Addr: s.Addr()}, "scrap:", nil)
	defer store.Close()
	ctx := context.Background()
	err = store.Txn(ctx, []core.VariableUpdate{
		{Key: "cat:a", Value: "hi", Visible: true},
		{Key: "cat:b", Value: []interface{}{1.0, 2.0}},
	})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}
	upd, _, err := store.Get(ctx, "cat:a")
	if err != nil || upd.Value != "hi" {
		t.Fatalf("missing value after txn: %+v %v", upd, err)
	}
	if err := store.Delete(ctx, "cat:a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := store.Get(ctx, "cat:a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
