package redisad_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	redisad "rutas_admin/internal/adapters/redis"
	"rutas_admin/internal/domain"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestCache_SetGetDel(t *testing.T) {
	mr, c := newClient(t)
	cache := redisad.NewCache(c)
	ctx := context.Background()

	var out domain.VersionResponse
	ok, err := cache.Get(ctx, "k", &out)
	if err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := cache.Set(ctx, "k", domain.VersionResponse{DataVersion: "v1"}, 60); err != nil {
		t.Fatalf("set: %v", err)
	}
	ok, err = cache.Get(ctx, "k", &out)
	if err != nil || !ok || out.DataVersion != "v1" {
		t.Fatalf("expected hit v1, got ok=%v err=%v out=%+v", ok, err, out)
	}

	mr.FastForward(61 * time.Second)
	if ok, _ := cache.Get(ctx, "k", &out); ok {
		t.Fatalf("expected key to expire")
	}

	_ = cache.Set(ctx, "k", 1, 60)
	if err := cache.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if mr.Exists("k") {
		t.Fatalf("key should be gone")
	}
}

func TestSessionStore_Lifecycle(t *testing.T) {
	_, c := newClient(t)
	store := redisad.NewSessionStore(c)
	ctx := context.Background()

	now := time.Now()
	for _, id := range []string{"s1", "s2"} {
		err := store.Create(ctx, domain.Session{ID: id, UserID: "u1", DeviceID: "d1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u1" || got.DeviceID != "d1" {
		t.Fatalf("unexpected session: %+v", got)
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}

	n, err := store.DeleteByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("delete by user: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 remaining session deleted, got %d", n)
	}
	if _, err := store.Get(ctx, "s2"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected s2 gone, got %v", err)
	}
}

func TestSessionStore_RejectsExpired(t *testing.T) {
	_, c := newClient(t)
	store := redisad.NewSessionStore(c)
	past := time.Now().Add(-time.Minute)
	if err := store.Create(context.Background(), domain.Session{ID: "old", UserID: "u", ExpiresAt: past}); err == nil {
		t.Fatal("expected error for expired session")
	}
}

func TestPubSub_PublishSubscribe(t *testing.T) {
	_, c := newClient(t)
	ps := redisad.NewPubSub(c)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	got := make(chan domain.ChangeEvent, 1)
	ready := make(chan struct{})
	go func() {
		close(ready)
		_ = ps.Subscribe(ctx, func(ev domain.ChangeEvent) { got <- ev })
	}()
	<-ready

	// publish until the subscriber is attached
	ev := domain.ChangeEvent{Collection: domain.CollRoutes, ID: "r1", Op: domain.OpUpsert, Data: []byte(`{"id":"r1"}`)}
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case e := <-got:
			if e.ID != "r1" || e.Collection != domain.CollRoutes || string(e.Data) != `{"id":"r1"}` {
				t.Fatalf("unexpected event: %+v", e)
			}
			return
		case <-tick.C:
			if err := ps.Publish(ctx, ev); err != nil {
				t.Fatalf("publish: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
		}
	}
}
