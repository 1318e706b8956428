package broker

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// MemoryBroker is an in-process Broker. Each subscription owns a queue and
// hands out one message at a time, waiting for it to be settled before moving
// on, so delivery order is publish order and a nak'd message is redelivered
// before anything behind it.
type MemoryBroker struct {
	log *zap.Logger

	mu     sync.Mutex
	subs   []*memorySubscription
	done   chan struct{}
	closed bool
}

type memoryItem struct {
	topic   string
	payload []byte
}

type memorySubscription struct {
	pattern string

	mu           sync.Mutex
	queue        []memoryItem
	redeliveries int
	wake         chan struct{}
}

func NewMemoryBroker(log *zap.Logger) *MemoryBroker {
	return &MemoryBroker{
		log:  log,
		done: make(chan struct{}),
	}
}

func (b *MemoryBroker) Publish(_ context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("%w: %w", ErrPublish, ErrClosed)
	}

	for _, sub := range b.subs {
		if MatchTopic(sub.pattern, topic) {
			sub.enqueue(memoryItem{topic: topic, payload: slices.Clone(payload)})
		}
	}

	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, pattern string) (<-chan *Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("%w: %w", ErrSubscribe, ErrClosed)
	}

	sub := &memorySubscription{
		pattern: pattern,
		wake:    make(chan struct{}, 1),
	}
	b.subs = append(b.subs, sub)

	out := make(chan *Message)
	go b.deliver(ctx, sub, out)

	return out, nil
}

func (b *MemoryBroker) deliver(ctx context.Context, sub *memorySubscription, out chan<- *Message) {
	defer func() {
		b.removeSubscription(sub)
		close(out)
	}()

	for {
		item, ok := sub.front()
		if !ok {
			select {
			case <-sub.wake:
				continue
			case <-ctx.Done():
				return
			case <-b.done:
				return
			}
		}

		settled := make(chan bool, 1)
		msg := NewMessage(item.topic, item.payload,
			func() error { settled <- true; return nil },
			func() error { settled <- false; return nil },
		)

		select {
		case out <- msg:
		case <-ctx.Done():
			return
		case <-b.done:
			return
		}

		select {
		case acked := <-settled:
			if acked {
				sub.pop()
			} else {
				sub.redelivered()
				b.log.Debug("redelivering message", zap.String("topic", item.topic))
			}
		case <-ctx.Done():
			return
		case <-b.done:
			return
		}
	}
}

// Pending returns the number of published messages not yet acked, across
// all subscriptions. A message handed to a consumer counts until it is acked.
func (b *MemoryBroker) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, sub := range b.subs {
		sub.mu.Lock()
		n += len(sub.queue)
		sub.mu.Unlock()
	}
	return n
}

// Redeliveries returns how many times messages were handed out again after
// a nak.
func (b *MemoryBroker) Redeliveries() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, sub := range b.subs {
		sub.mu.Lock()
		n += sub.redeliveries
		sub.mu.Unlock()
	}
	return n
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

func (b *MemoryBroker) removeSubscription(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs = slices.DeleteFunc(b.subs, func(s *memorySubscription) bool { return s == sub })
}

func (s *memorySubscription) enqueue(item memoryItem) {
	s.mu.Lock()
	s.queue = append(s.queue, item)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySubscription) front() (memoryItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return memoryItem{}, false
	}
	return s.queue[0], true
}

func (s *memorySubscription) pop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) > 0 {
		s.queue = s.queue[1:]
	}
}

func (s *memorySubscription) redelivered() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.redeliveries++
}
