package tenant

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/redis"
)

const (
	// InvalidationChannel is the pub/sub channel carrying tenant invalidations
	InvalidationChannel = "tenant:invalidate"

	invalidateAllMessage = "*"
)

// Broadcaster tells other replicas to drop a tenant. "*" means every tenant.
type Broadcaster interface {
	Publish(ctx context.Context, identifier string) error
}

// RedisBroadcaster fans invalidations out over Redis pub/sub.
type RedisBroadcaster struct {
	client *redis.Client
	logger ectologger.Logger
}

func NewRedisBroadcaster(client *redis.Client, logger ectologger.Logger) *RedisBroadcaster {
	return &RedisBroadcaster{client: client, logger: logger}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, identifier string) error {
	return b.client.Publish(ctx, InvalidationChannel, identifier)
}

// Listen applies invalidations published by any replica to cache.
// Messages from this replica are applied again, which is harmless.
func (b *RedisBroadcaster) Listen(ctx context.Context, cache *Cache) (*redis.Subscription, error) {
	return b.client.Subscribe(ctx, InvalidationChannel, func(ctx context.Context, payload string) {
		if payload == invalidateAllMessage {
			cache.invalidateAllLocal()
		} else {
			cache.invalidateLocal(payload)
		}
		b.logger.WithContext(ctx).WithField("identifier", payload).Debug("Applied tenant invalidation")
	})
}
