package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	fieldTopic   = "topic"
	fieldPayload = "payload"

	// read from the start of this consumer's pending entries list
	pendingStart = "0"
	// read entries never delivered to the group
	newStart = ">"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	Group    string
	Consumer string
	Block    time.Duration
}

// RedisBroker carries every topic on a single Redis Stream read through a
// consumer group. Unacked entries stay in the consumer's pending list and are
// read again after a nak or a restart with the same consumer name.
type RedisBroker struct {
	log *zap.Logger
	cfg RedisConfig
	rdb *redis.Client
}

func NewRedisBroker(ctx context.Context, cfg RedisConfig, log *zap.Logger) (*RedisBroker, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address missing")
	}
	if cfg.Stream == "" {
		cfg.Stream = "chat.exchange"
	}
	if cfg.Group == "" {
		cfg.Group = "chat-gateway"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "gateway-1"
	}
	if cfg.Block == 0 {
		cfg.Block = 2 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisBroker{log: log, cfg: cfg, rdb: rdb}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.cfg.Stream,
		Values: map[string]any{
			fieldTopic:   topic,
			fieldPayload: payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}

	return nil
}

func (b *RedisBroker) Subscribe(ctx context.Context, pattern string) (<-chan *Message, error) {
	err := b.rdb.XGroupCreateMkStream(ctx, b.cfg.Stream, b.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("%w: %w", ErrSubscribe, err)
	}

	out := make(chan *Message)
	go b.read(ctx, pattern, out)

	return out, nil
}

func (b *RedisBroker) read(ctx context.Context, pattern string, out chan<- *Message) {
	defer close(out)

	// entries left pending by a previous run are handed out first
	backlog := true

	for ctx.Err() == nil {
		start := newStart
		if backlog {
			start = pendingStart
		}

		streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: b.cfg.Consumer,
			Streams:  []string{b.cfg.Stream, start},
			Count:    1,
			Block:    b.cfg.Block,
		}).Result()

		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.Is(err, redis.Nil):
			backlog = false
			continue
		case errors.Is(err, redis.ErrClosed):
			b.log.Error("redis client closed")
			return
		default:
			b.log.Warn("xreadgroup failed", zap.Error(err))
			select {
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}

		var entries []redis.XMessage
		for _, s := range streams {
			entries = append(entries, s.Messages...)
		}

		if backlog && len(entries) == 0 {
			backlog = false
			continue
		}

		for _, entry := range entries {
			acked, ok := b.handOut(ctx, pattern, entry, out)
			if !ok {
				return
			}
			if !acked {
				backlog = true
				break
			}
		}
	}
}

// handOut delivers a single entry and waits for the consumer to settle it.
func (b *RedisBroker) handOut(ctx context.Context, pattern string, entry redis.XMessage, out chan<- *Message) (acked, ok bool) {
	topic, _ := entry.Values[fieldTopic].(string)
	payload, _ := entry.Values[fieldPayload].(string)

	if !MatchTopic(pattern, topic) {
		if err := b.ack(ctx, entry.ID); err != nil {
			b.log.Warn("ack unmatched entry", zap.String("id", entry.ID), zap.Error(err))
		}
		return true, true
	}

	settled := make(chan bool, 1)
	msg := NewMessage(topic, []byte(payload),
		// XACK has to land before the reader moves on, or a backlog read
		// would hand the entry out again
		func() error {
			err := b.ack(ctx, entry.ID)
			settled <- true
			return err
		},
		func() error {
			settled <- false
			return nil
		},
	)

	select {
	case out <- msg:
	case <-ctx.Done():
		return false, false
	}

	select {
	case acked = <-settled:
		return acked, true
	case <-ctx.Done():
		return false, false
	}
}

func (b *RedisBroker) ack(ctx context.Context, id string) error {
	return b.rdb.XAck(ctx, b.cfg.Stream, b.cfg.Group, id).Err()
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}
