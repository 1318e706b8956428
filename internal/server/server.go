package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatrelay/internal/broker"
	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/stats"
	"github.com/npezzotti/go-chatrelay/internal/types"
	"go.uber.org/zap"
)

const (
	DefaultMaxContentLen = 2000

	publishTimeout = 5 * time.Second
	// room for the frame envelope around the content
	frameOverhead = 512
	// pause after a failed insert before the event is handed back to the
	// broker, so a down database isn't hammered with redeliveries
	persistRetryDelay = 500 * time.Millisecond
)

var ErrAlreadyStarted = errors.New("gateway already started")

// Gateway owns the live connections of one process. Connections publish
// chat events to the broker; a single consumer reads them back, persists
// them and fans them out to the members of the originating room.
type Gateway struct {
	log      *zap.Logger
	broker   broker.Broker
	store    database.MessageStore
	stats    stats.StatsProvider
	rooms    *Rooms
	validate *validator.Validate
	now      func() time.Time

	maxContentLen int
	readLimit     int64
	retryDelay    time.Duration

	clients     map[*Client]struct{}
	clientsLock sync.Mutex
	pumps       sync.WaitGroup

	startOnce    sync.Once
	cancel       context.CancelFunc
	consumerDone chan struct{}
}

func NewGateway(logger *zap.Logger, b broker.Broker, store database.MessageStore, su stats.StatsProvider, maxContentLen int) *Gateway {
	if maxContentLen <= 0 {
		maxContentLen = DefaultMaxContentLen
	}

	for _, name := range []string{
		stats.ActiveConnections,
		stats.ChatEventsPublished,
		stats.PublishFailures,
		stats.ChatEventsPersisted,
		stats.PersistFailures,
		stats.DeliveriesDropped,
	} {
		su.RegisterMetric(name)
	}

	return &Gateway{
		log:           logger,
		broker:        b,
		store:         store,
		stats:         su,
		rooms:         NewRooms(),
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		now:           time.Now,
		maxContentLen: maxContentLen,
		readLimit:     readLimit(maxContentLen),
		retryDelay:    persistRetryDelay,
		clients:       make(map[*Client]struct{}),
		consumerDone:  make(chan struct{}),
	}
}

// readLimit sizes the websocket read limit so a frame carrying the longest
// valid content always reaches validation.
func readLimit(maxContentLen int) int64 {
	return max(maxMessageSize, int64(maxContentLen)*utf8.UTFMax+frameOverhead)
}

func (g *Gateway) Rooms() *Rooms {
	return g.rooms
}

// Start subscribes to every room's chat events and runs the consumer in its
// own goroutine until Shutdown or ctx is done. The subscription is shared by
// all connections of this process.
func (g *Gateway) Start(ctx context.Context) error {
	err := ErrAlreadyStarted
	g.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)

		var deliveries <-chan *broker.Message
		deliveries, err = g.broker.Subscribe(ctx, broker.RoomPattern)
		if err != nil {
			cancel()
			close(g.consumerDone)
			err = fmt.Errorf("subscribe: %w", err)
			return
		}

		g.cancel = cancel
		go g.consume(ctx, deliveries)
	})

	return err
}

func (g *Gateway) consume(ctx context.Context, deliveries <-chan *broker.Message) {
	defer close(g.consumerDone)

	g.log.Info("consuming chat events", zap.String("pattern", broker.RoomPattern))
	for msg := range deliveries {
		g.handleDelivery(ctx, msg)
	}
	g.log.Info("chat event consumer stopped")
}

// handleDelivery persists one chat event, fans it out to the room's current
// members and acks it. The ack is never sent before the insert succeeds.
func (g *Gateway) handleDelivery(ctx context.Context, msg *broker.Message) {
	var event types.ChatEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		// can never be persisted, redelivering would wedge the subscription
		g.log.Error("discarding undecodable chat event", zap.String("topic", msg.Topic), zap.Error(err))
		g.ack(msg)
		return
	}

	log := g.log.With(
		zap.Int64("room_id", int64(event.RoomId)),
		zap.Int64("user_id", int64(event.UserId)),
	)

	stored, err := g.store.InsertMessage(ctx, event.RoomId, event.UserId, event.Content)
	if errors.Is(err, database.ErrInvalidReference) {
		// the room or user is gone and no retry can succeed; the event is
		// deliberately dropped and lost so it can't stall the ordered consumer
		log.Error("discarding chat event for unknown room or user", zap.Error(err))
		g.stats.Incr(stats.PersistFailures)
		g.ack(msg)
		return
	}
	if err != nil {
		log.Error("failed to persist chat event", zap.Error(err))
		g.stats.Incr(stats.PersistFailures)

		select {
		case <-time.After(g.retryDelay):
		case <-ctx.Done():
		}
		if err := msg.Nak(); err != nil {
			log.Warn("nak chat event", zap.Error(err))
		}
		return
	}
	g.stats.Incr(stats.ChatEventsPersisted)

	g.broadcast(event.RoomId, &ServerMessage{
		Message: &types.Message{
			Id:        stored.Id,
			RoomId:    event.RoomId,
			UserId:    event.UserId,
			Username:  event.Username,
			Content:   event.Content,
			Timestamp: event.Timestamp,
			CreatedAt: stored.CreatedAt,
		},
	})

	g.ack(msg)
}

func (g *Gateway) ack(msg *broker.Message) {
	if err := msg.Ack(); err != nil {
		g.log.Warn("ack chat event", zap.String("topic", msg.Topic), zap.Error(err))
	}
}

// broadcast queues msg for every current member of room. A member whose
// buffer is full misses the message; the others are unaffected.
func (g *Gateway) broadcast(room types.RoomId, msg *ServerMessage) {
	for _, c := range g.rooms.MembersOf(room) {
		if !c.queueMessage(msg) {
			g.stats.Incr(stats.DeliveriesDropped)
		}
	}
}

// dispatch validates an inbound frame and routes it to its operation.
func (g *Gateway) dispatch(c *Client, msg *ClientMessage) {
	if err := g.validateMessage(msg); err != nil {
		c.log.Debug("invalid message", zap.Int("msg_id", msg.Id), zap.Error(err))
		c.queueMessage(ErrInvalidMessage(msg.Id, ""))
		return
	}

	switch {
	case msg.JoinRoom != nil:
		g.join(c, msg.JoinRoom.RoomId)
	case msg.LeaveRoom != nil:
		g.leave(c, msg.LeaveRoom.RoomId)
	case msg.SendMessage != nil:
		g.send(c, msg.SendMessage.RoomId, msg.SendMessage.Content)
	}
}

func (g *Gateway) validateMessage(msg *ClientMessage) error {
	if n := msg.actions(); n != 1 {
		return fmt.Errorf("expected exactly one action, got %d", n)
	}

	if err := g.validate.Struct(msg); err != nil {
		return err
	}

	if msg.SendMessage != nil {
		return g.validate.Var(msg.SendMessage.Content, fmt.Sprintf("max=%d", g.maxContentLen))
	}

	return nil
}

// join adds c to room and announces it to every member, c included.
func (g *Gateway) join(c *Client, room types.RoomId) {
	g.rooms.Join(room, c)
	c.log.Debug("joined room", zap.Int64("room_id", int64(room)))

	g.broadcast(room, systemMessage(room, types.UserJoined, c.user))
}

// leave removes c from room and announces it to the members that remain.
// The announcement goes out even if c was not a member.
func (g *Gateway) leave(c *Client, room types.RoomId) {
	g.rooms.Leave(room, c)
	c.log.Debug("left room", zap.Int64("room_id", int64(room)))

	g.broadcast(room, systemMessage(room, types.UserLeft, c.user))
}

// send publishes a chat event for room. Nothing is stored or delivered here;
// that happens when the event comes back from the broker. A failed publish
// is logged and the event is dropped.
func (g *Gateway) send(c *Client, room types.RoomId, content string) {
	event := types.NewChatEvent(room, c.user, content, g.now())

	payload, err := json.Marshal(event)
	if err != nil {
		c.log.Error("failed to encode chat event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := g.broker.Publish(ctx, broker.RoomTopic(room), payload); err != nil {
		c.log.Error("failed to publish chat event", zap.Int64("room_id", int64(room)), zap.Error(err))
		g.stats.Incr(stats.PublishFailures)
		return
	}
	g.stats.Incr(stats.ChatEventsPublished)
}

// Connect registers an authenticated websocket connection and starts its
// pumps.
func (g *Gateway) Connect(user types.User, conn *websocket.Conn) *Client {
	c := NewClient(user, conn, g)
	g.addClient(c)

	g.pumps.Add(2)
	go func() {
		defer g.pumps.Done()
		c.Write()
	}()
	go func() {
		defer g.pumps.Done()
		c.Read()
	}()

	c.log.Info("client connected", zap.String("username", user.Username))
	return c
}

// disconnect removes c from all of its rooms and stops its writer. It is
// safe to call more than once; only the first call has an effect. No leave
// announcements are sent.
func (g *Gateway) disconnect(c *Client) {
	c.closed.Do(func() {
		left := g.rooms.RemoveConnection(c)
		g.removeClient(c)
		c.stopClient()
		c.log.Info("client disconnected", zap.Int("rooms_left", len(left)))
	})
}

func (g *Gateway) addClient(c *Client) {
	g.clientsLock.Lock()
	defer g.clientsLock.Unlock()

	g.clients[c] = struct{}{}
	g.stats.Incr(stats.ActiveConnections)
}

func (g *Gateway) removeClient(c *Client) {
	g.clientsLock.Lock()
	defer g.clientsLock.Unlock()

	if _, ok := g.clients[c]; ok {
		delete(g.clients, c)
		g.stats.Decr(stats.ActiveConnections)
	}
}

// Shutdown stops the consumer, closes every connection and waits for their
// pumps to exit or ctx to be done.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.log.Info("shutting down gateway")

	g.startOnce.Do(func() { close(g.consumerDone) })
	if g.cancel != nil {
		g.cancel()
	}

	g.clientsLock.Lock()
	for c := range g.clients {
		c.stopClient()
	}
	g.clientsLock.Unlock()

	done := make(chan struct{})
	go func() {
		<-g.consumerDone
		g.pumps.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gateway shutdown: %w", ctx.Err())
	}
}
