package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type NatsConfig struct {
	Servers       []string
	Name          string
	Stream        string
	Durable       string
	AckWait       time.Duration
	FetchWait     time.Duration
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// NatsBroker publishes to and consumes from a JetStream stream. Consumption
// goes through a durable pull consumer with explicit acks and at most one
// message in flight, so unacked messages survive a restart and redelivery
// never reorders a subject.
type NatsBroker struct {
	log *zap.Logger
	cfg NatsConfig
	nc  *nats.Conn
	js  nats.JetStreamContext
}

func NewNatsBroker(cfg NatsConfig, log *zap.Logger) (*NatsBroker, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}
	if cfg.Stream == "" {
		cfg.Stream = "CHAT"
	}
	if cfg.Durable == "" {
		cfg.Durable = "chat-gateway"
	}
	if cfg.AckWait == 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.FetchWait == 0 {
		cfg.FetchWait = 2 * time.Second
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 500 * time.Millisecond
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}

	b := &NatsBroker{log: log, cfg: cfg, nc: nc, js: js}
	if err := b.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}

	return b, nil
}

func (b *NatsBroker) ensureStream() error {
	_, err := b.js.StreamInfo(b.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}

	b.log.Info("creating stream", zap.String("stream", b.cfg.Stream))
	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:      b.cfg.Stream,
		Subjects:  []string{RoomPattern},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
	})
	if err != nil {
		return fmt.Errorf("add stream: %w", err)
	}

	return nil
}

func (b *NatsBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	if _, err := b.js.Publish(topic, payload, nats.Context(ctx)); err != nil {
		return fmt.Errorf("%w: %w", ErrPublish, err)
	}

	return nil
}

// ensureConsumer creates the durable consumer up front. A consumer created
// implicitly by PullSubscribe is deleted again when the subscription drains,
// which would lose the ack position on every shutdown.
func (b *NatsBroker) ensureConsumer(pattern string) error {
	_, err := b.js.ConsumerInfo(b.cfg.Stream, b.cfg.Durable)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrConsumerNotFound) {
		return fmt.Errorf("consumer info: %w", err)
	}

	b.log.Info("creating consumer", zap.String("stream", b.cfg.Stream), zap.String("durable", b.cfg.Durable))
	_, err = b.js.AddConsumer(b.cfg.Stream, &nats.ConsumerConfig{
		Durable:       b.cfg.Durable,
		FilterSubject: pattern,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       b.cfg.AckWait,
		MaxAckPending: 1,
		DeliverPolicy: nats.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("add consumer: %w", err)
	}

	return nil
}

func (b *NatsBroker) Subscribe(ctx context.Context, pattern string) (<-chan *Message, error) {
	if err := b.ensureConsumer(pattern); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubscribe, err)
	}

	sub, err := b.js.PullSubscribe(pattern, b.cfg.Durable,
		nats.Bind(b.cfg.Stream, b.cfg.Durable),
		nats.ManualAck(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubscribe, err)
	}

	out := make(chan *Message)
	go b.pull(ctx, sub, out)

	return out, nil
}

func (b *NatsBroker) pull(ctx context.Context, sub *nats.Subscription, out chan<- *Message) {
	defer func() {
		if err := sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			b.log.Warn("drain subscription", zap.Error(err))
		}
		close(out)
	}()

	for ctx.Err() == nil {
		fetchCtx, cancel := context.WithTimeout(ctx, b.cfg.FetchWait)
		msgs, err := sub.Fetch(1, nats.Context(fetchCtx))
		cancel()

		switch {
		case err == nil:
		case ctx.Err() != nil:
			return
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
			continue
		case errors.Is(err, nats.ErrConnectionClosed), errors.Is(err, nats.ErrBadSubscription):
			b.log.Error("subscription closed", zap.Error(err))
			return
		default:
			b.log.Warn("fetch failed", zap.Error(err))
			select {
			case <-time.After(200 * time.Millisecond):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, m := range msgs {
			msg := NewMessage(m.Subject, m.Data,
				func() error { return m.Ack() },
				func() error { return m.Nak() },
			)

			select {
			case out <- msg:
			case <-ctx.Done():
				// hand it back now rather than holding the single ack slot
				// until AckWait runs out
				if err := m.Nak(); err != nil {
					b.log.Warn("nak undelivered message", zap.Error(err))
				}
				return
			}
		}
	}
}

func (b *NatsBroker) Close() error {
	if err := b.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}
