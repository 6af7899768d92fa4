package presence

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func TestUnreadCounterLifecycle(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()

	count, err := store.UnreadCount(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 unread before any messages, got %d", count)
	}

	for i := 0; i < 3; i++ {
		if err := store.IncrementUnread(ctx, "alice", "bob"); err != nil {
			t.Fatalf("IncrementUnread failed: %v", err)
		}
	}

	count, err = store.UnreadCount(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 unread, got %d", count)
	}

	// Another conversation is unaffected.
	count, err = store.UnreadCount(ctx, "alice", "carol")
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 unread for carol, got %d", count)
	}

	if err := store.ResetUnread(ctx, "alice", "bob"); err != nil {
		t.Fatalf("ResetUnread failed: %v", err)
	}
	count, err = store.UnreadCount(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 unread after reset, got %d", count)
	}
}

func TestUnreadDirectional(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.IncrementUnread(ctx, "alice", "bob"); err != nil {
		t.Fatalf("IncrementUnread failed: %v", err)
	}

	// bob's side of the same conversation stays at zero.
	count, err := store.UnreadCount(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("UnreadCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 unread for bob, got %d", count)
	}
}

func TestOnlinePresence(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	if err := store.MarkOnline(ctx, "alice", time.Minute); err != nil {
		t.Fatalf("MarkOnline failed: %v", err)
	}

	online, err := store.IsOnline(ctx, "alice")
	if err != nil {
		t.Fatalf("IsOnline failed: %v", err)
	}
	if !online {
		t.Error("expected alice online")
	}

	s.FastForward(2 * time.Minute)

	online, err = store.IsOnline(ctx, "alice")
	if err != nil {
		t.Fatalf("IsOnline failed: %v", err)
	}
	if online {
		t.Error("expected alice offline after TTL")
	}

	if err := store.MarkOnline(ctx, "bob", time.Minute); err != nil {
		t.Fatalf("MarkOnline failed: %v", err)
	}
	if err := store.MarkOffline(ctx, "bob"); err != nil {
		t.Fatalf("MarkOffline failed: %v", err)
	}
	online, err = store.IsOnline(ctx, "bob")
	if err != nil {
		t.Fatalf("IsOnline failed: %v", err)
	}
	if online {
		t.Error("expected bob offline after MarkOffline")
	}
}
