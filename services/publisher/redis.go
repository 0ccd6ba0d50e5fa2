package publisher

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"pisowatch/internal/scraper"
	errs "pisowatch/pkg/errors"
)

// RedisPublisher implements Publisher on Redis streams. Each portal gets
// its own stream ("listings:idealista", ...) so consumers can subscribe to
// a subset. Payloads are base64-encoded JSON.
type RedisPublisher struct {
	client          *redis.Client
	ctx             context.Context
	streamPrefix    string
	streamMaxLength int
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(ctx context.Context, addr string, db int, streamPrefix string, streamMaxLength int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisPublisher{
		client:          client,
		ctx:             ctx,
		streamPrefix:    streamPrefix,
		streamMaxLength: streamMaxLength,
	}
}

// PublishListing serializes l and appends it to its portal's stream.
func (p *RedisPublisher) PublishListing(l *scraper.Listing) error {
	payload, err := json.Marshal(l)
	if err != nil {
		return errs.NewStorage("failed to serialize listing for publish", err)
	}

	stream := p.streamPrefix + ":" + l.Portal
	encoded := base64.StdEncoding.EncodeToString(payload)

	return p.client.XAdd(p.ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"listing": encoded,
		},
	}).Err()
}

// TrimStreams trims all streams to the configured maximum length
func (p *RedisPublisher) TrimStreams() error {
	pattern := p.streamPrefix + ":*"
	streams, err := p.client.Keys(p.ctx, pattern).Result()
	if err != nil {
		return err
	}

	for _, stream := range streams {
		if err := p.client.XTrimMaxLen(p.ctx, stream, int64(p.streamMaxLength)).Err(); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
