// Package redisbus carries chat frames between instances over Redis pub/sub. Each user has one channel named by their
// decimal id; the instance holding the user's session subscribes to it, and any instance may publish to it.
package redisbus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Connect parses the Redis URL, connects, and pings to verify the connection. The dialTimeout parameter controls how
// long the client waits when establishing new connections.
func Connect(ctx context.Context, rawURL string, dialTimeout time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.DialTimeout = dialTimeout

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// Handler receives one inbound frame for a locally subscribed user. It is invoked from the bus's receive goroutine,
// never from the caller of Publish.
type Handler func(userID int64, payload []byte)

// Bus wraps one pooled client for publishing and one dedicated PubSub connection for the blocking receive loop. The
// split is required because the subscriber connection is consumed by a long-running read.
type Bus struct {
	rdb     *redis.Client
	sub     *redis.PubSub
	handler Handler
	log     zerolog.Logger
}

// New creates a bus with an initially empty subscription set. SetInboundHandler must be called before Run.
func New(rdb *redis.Client, logger zerolog.Logger) *Bus {
	return &Bus{
		rdb: rdb,
		sub: rdb.Subscribe(context.Background()),
		log: logger.With().Str("component", "redisbus").Logger(),
	}
}

// SetInboundHandler installs the callback for inbound frames. Called once at startup, before Run.
func (b *Bus) SetInboundHandler(h Handler) {
	b.handler = h
}

// Publish sends a frame to the user's channel. Fire and forget: the caller learns nothing about remote delivery.
func (b *Bus) Publish(ctx context.Context, userID int64, payload []byte) error {
	if err := b.rdb.Publish(ctx, channelName(userID), payload).Err(); err != nil {
		return fmt.Errorf("publish to channel %d: %w", userID, err)
	}
	return nil
}

// Subscribe marks this instance as the delivery site for the user. Idempotent.
func (b *Bus) Subscribe(ctx context.Context, userID int64) error {
	if err := b.sub.Subscribe(ctx, channelName(userID)); err != nil {
		return fmt.Errorf("subscribe channel %d: %w", userID, err)
	}
	return nil
}

// Unsubscribe releases the user's channel. Idempotent.
func (b *Bus) Unsubscribe(ctx context.Context, userID int64) error {
	if err := b.sub.Unsubscribe(ctx, channelName(userID)); err != nil {
		return fmt.Errorf("unsubscribe channel %d: %w", userID, err)
	}
	return nil
}

// Run consumes the subscriber connection and invokes the inbound handler for every received frame. It blocks until
// the context is cancelled or the subscription fails, and must run in its own goroutine.
func (b *Bus) Run(ctx context.Context) error {
	b.log.Info().Msg("Bus receive loop started")

	ch := b.sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			userID, err := strconv.ParseInt(msg.Channel, 10, 64)
			if err != nil {
				b.log.Warn().Str("channel", msg.Channel).Msg("Inbound frame on non-numeric channel")
				continue
			}
			if b.handler != nil {
				b.handler(userID, []byte(msg.Payload))
			}
		}
	}
}

// Close shuts down the subscriber connection, which also terminates Run.
func (b *Bus) Close() error {
	return b.sub.Close()
}

func channelName(userID int64) string {
	return strconv.FormatInt(userID, 10)
}
