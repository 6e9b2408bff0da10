package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// dispatchKeyTTL bounds how long a claim is remembered. Long enough to cover
// any realistic redelivery window of the task queue.
const dispatchKeyTTL = 48 * time.Hour

// IdempotencyGuard prevents a nurturing task from being dispatched twice
// when the queue redelivers it, using a redis SETNX claim per task.
type IdempotencyGuard struct {
	client redis.UniversalClient
	prefix string
}

func NewIdempotencyGuard(client redis.UniversalClient) *IdempotencyGuard {
	return &IdempotencyGuard{client: client, prefix: "nurturing:dispatched:"}
}

// Claim returns true if this call is the first to claim the task. A false
// return means the task was already dispatched and must be skipped.
func (g *IdempotencyGuard) Claim(ctx context.Context, taskID string) (bool, error) {
	if g == nil || g.client == nil {
		return true, nil
	}
	return g.client.SetNX(ctx, g.prefix+taskID, 1, dispatchKeyTTL).Result()
}

// Release drops the claim of a dispatch that did not go out, so the claim
// key never marks an undelivered task as done.
func (g *IdempotencyGuard) Release(ctx context.Context, taskID string) error {
	if g == nil || g.client == nil {
		return nil
	}
	if err := g.client.Del(ctx, g.prefix+taskID).Err(); err != nil {
		return fmt.Errorf("release dispatch claim: %w", err)
	}
	return nil
}
