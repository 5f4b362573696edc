package redis

import (
	"context"
	"sync"
)

// Subscription delivers messages from one channel to a handler until closed
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Publish sends payload to every subscriber of channel
func (c *Client) Publish(ctx context.Context, channel, payload string) error {
	return c.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe starts delivering channel messages to handler in a background goroutine.
// It returns once the subscription is confirmed by the server.
func (c *Client) Subscribe(ctx context.Context, channel string, handler func(ctx context.Context, payload string)) (*Subscription, error) {
	pubsub := c.rdb.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub := &Subscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				handler(subCtx, msg.Payload)
			}
		}
	}()

	c.logger.WithContext(ctx).Infof("Subscribed to Redis channel %s", channel)
	return sub, nil
}

// Close stops the subscription and waits for the delivery goroutine to exit
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}
