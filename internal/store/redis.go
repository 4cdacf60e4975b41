package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const poolCacheTTL = 30 * time.Second

// StageBus publishes FillWindow stage transitions to a Redis pub/sub
// channel per genre and caches CheckPool results briefly, backing the
// interactive fill-now stream and the pool-health endpoint.
type StageBus struct {
	Client *redis.Client
}

// NewStageBus opens a Redis connection pool against redisURL.
func NewStageBus(redisURL string) (*StageBus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("store: ping redis: %w", err)
	}
	return &StageBus{Client: client}, nil
}

func (b *StageBus) Close() error { return b.Client.Close() }

func stageChannel(genre string) string { return "pipeline:stage:" + genre }

// PublishStage broadcasts a single stage transition for genre. Delivery
// is best-effort: a publish failure is logged by the caller, never
// propagated into the FillWindow result.
func (b *StageBus) PublishStage(ctx context.Context, genre, stage string) error {
	return b.Client.Publish(ctx, stageChannel(genre), stage).Err()
}

// SubscribeStage returns a channel of stage names for genre and a close
// function. Cancelling ctx stops delivery on the returned channel; callers
// must call the close function to release the underlying subscription.
func (b *StageBus) SubscribeStage(ctx context.Context, genre string) (<-chan string, func() error) {
	sub := b.Client.Subscribe(ctx, stageChannel(genre))
	raw := sub.Channel()

	out := make(chan string)
	go func() {
		defer close(out)
		for msg := range raw {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, sub.Close
}

func poolCacheKey(genre string) string { return "pipeline:pool:" + genre }

// CachePoolHealth stores a short-lived snapshot of a CheckPool result so
// repeated admin-dashboard polls don't hit the group-counting query.
func (b *StageBus) CachePoolHealth(ctx context.Context, genre string, health any) error {
	payload, err := json.Marshal(health)
	if err != nil {
		return fmt.Errorf("store: marshal pool health: %w", err)
	}
	return b.Client.Set(ctx, poolCacheKey(genre), payload, poolCacheTTL).Err()
}

// CachedPoolHealth returns the cached snapshot for genre, if any, into
// dest. The second return value is false on a cache miss.
func (b *StageBus) CachedPoolHealth(ctx context.Context, genre string, dest any) (bool, error) {
	payload, err := b.Client.Get(ctx, poolCacheKey(genre)).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: get cached pool health: %w", err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return false, fmt.Errorf("store: unmarshal cached pool health: %w", err)
	}
	return true, nil
}
