package channel

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestGuard(t *testing.T) *IdempotencyGuard {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotencyGuard(client)
}

func TestIdempotencyGuardClaimOnce(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	first, err := guard.Claim(ctx, "task-1")
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !first {
		t.Fatal("first claim should succeed")
	}

	second, err := guard.Claim(ctx, "task-1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if second {
		t.Fatal("second claim of the same task must be rejected")
	}

	other, err := guard.Claim(ctx, "task-2")
	if err != nil {
		t.Fatalf("other claim: %v", err)
	}
	if !other {
		t.Fatal("a different task must be claimable")
	}
}

func TestIdempotencyGuardRelease(t *testing.T) {
	guard := newTestGuard(t)
	ctx := context.Background()

	if _, err := guard.Claim(ctx, "task-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := guard.Release(ctx, "task-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	again, err := guard.Claim(ctx, "task-1")
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if !again {
		t.Fatal("a released task must be claimable again")
	}
}

func TestIdempotencyGuardNilClientPassesThrough(t *testing.T) {
	var guard *IdempotencyGuard

	ok, err := guard.Claim(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("nil guard claim: %v", err)
	}
	if !ok {
		t.Fatal("a nil guard must not block dispatch")
	}
}
