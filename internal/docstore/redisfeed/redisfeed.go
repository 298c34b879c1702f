// Package redisfeed carries document change notifications over Redis pub/sub
// so availability watchers on one API instance see commits made by another.
package redisfeed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/mindcare-booking/internal/docstore"
	"github.com/wolfman30/mindcare-booking/pkg/logging"
)

const channelPrefix = "docstore:"

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Feed implements docstore.Feed on Redis.
type Feed struct {
	client redisClient
	logger *logging.Logger
}

var _ docstore.Feed = (*Feed)(nil)

// New creates a feed over client.
func New(client redisClient, logger *logging.Logger) *Feed {
	if client == nil {
		panic("redisfeed: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Feed{client: client, logger: logger}
}

// Channel is the pub/sub channel used for path.
func Channel(path docstore.Path) string {
	return channelPrefix + path.String()
}

// Publish announces that paths changed.
func (f *Feed) Publish(ctx context.Context, paths ...docstore.Path) error {
	for _, p := range paths {
		if err := f.client.Publish(ctx, Channel(p), "changed").Err(); err != nil {
			return fmt.Errorf("redisfeed: publish %s: %w", p, err)
		}
	}
	return nil
}

// Subscribe listens for changes to path. The returned channel closes when the
// Redis subscription ends; the stop function releases it.
func (f *Feed) Subscribe(ctx context.Context, path docstore.Path) (<-chan struct{}, func(), error) {
	pubsub := f.client.Subscribe(ctx, Channel(path))
	// Wait for the subscription to be confirmed so no publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redisfeed: subscribe %s: %w", path, err)
	}

	out := make(chan struct{}, 1)
	messages := pubsub.Channel()
	go func() {
		defer close(out)
		for range messages {
			docstore.Signal(out)
		}
	}()

	stop := func() {
		if err := pubsub.Close(); err != nil {
			f.logger.Debug("redisfeed: close subscription", "path", path.String(), "error", err)
		}
	}
	return out, stop, nil
}
