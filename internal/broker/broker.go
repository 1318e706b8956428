package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/npezzotti/go-chatrelay/internal/types"
)

const (
	// RoomPattern matches the topic of every room's chat events.
	RoomPattern = "room.*.message"

	topicSep       = "."
	singleWildcard = "*"
	tailWildcard   = ">"
)

var (
	ErrPublish   = errors.New("broker: publish failed")
	ErrSubscribe = errors.New("broker: subscribe failed")
	ErrClosed    = errors.New("broker: closed")
)

// Broker is a topic based publish/subscribe exchange.
//
// Subscribe establishes a subscription for the lifetime of ctx. The returned
// channel is closed once ctx is done or the subscription can no longer make
// progress; it is not restartable. Every delivered Message must be acked
// exactly once after it has been durably handled. Messages that are nak'd, or
// never acked, are delivered again.
type Broker interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, pattern string) (<-chan *Message, error)
	Close() error
}

// Message is a delivered item together with its acknowledgment handle.
type Message struct {
	Topic   string
	Payload []byte

	once sync.Once
	ack  func() error
	nak  func() error
}

func NewMessage(topic string, payload []byte, ack, nak func() error) *Message {
	return &Message{
		Topic:   topic,
		Payload: payload,
		ack:     ack,
		nak:     nak,
	}
}

// Ack confirms the message was handled. Only the first Ack or Nak on a
// message has an effect.
func (m *Message) Ack() error {
	return m.settle(m.ack)
}

// Nak asks the broker to redeliver the message.
func (m *Message) Nak() error {
	return m.settle(m.nak)
}

func (m *Message) settle(fn func() error) error {
	var err error
	m.once.Do(func() {
		if fn != nil {
			err = fn()
		}
	})
	return err
}

func RoomTopic(roomId types.RoomId) string {
	return "room." + roomId.String() + ".message"
}

// RoomIdFromTopic parses the room id out of a topic built by RoomTopic.
func RoomIdFromTopic(topic string) (types.RoomId, error) {
	parts := strings.Split(topic, topicSep)
	if len(parts) != 3 || parts[0] != "room" || parts[2] != "message" {
		return 0, fmt.Errorf("unexpected topic %q", topic)
	}

	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse room id in topic %q: %w", topic, err)
	}

	return types.RoomId(id), nil
}

// MatchTopic reports whether topic matches pattern. Tokens are separated by
// dots; "*" matches exactly one token and a trailing ">" matches one or more.
func MatchTopic(pattern, topic string) bool {
	pt := strings.Split(pattern, topicSep)
	tt := strings.Split(topic, topicSep)

	for i, p := range pt {
		if p == tailWildcard && i == len(pt)-1 {
			return len(tt) > i
		}
		if i >= len(tt) {
			return false
		}
		if p != singleWildcard && p != tt[i] {
			return false
		}
		if tt[i] == "" {
			return false
		}
	}

	return len(pt) == len(tt)
}
