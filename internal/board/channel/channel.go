package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"collab_board_service/internal/board/domain"
	"collab_board_service/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Status subscription state reported by Subscribe
type Status string

const (
	// StatusSubscribed channel is live, broadcasts and presence are delivered
	StatusSubscribed Status = "SUBSCRIBED"
	// StatusChannelError subscription failed
	StatusChannelError Status = "CHANNEL_ERROR"
	// StatusClosed channel was torn down
	StatusClosed Status = "CLOSED"
)

// presenceTTL bounds how long a crashed session's cursor survives in the
// room hash before the next Track refreshes the expiry.
const presenceTTL = 60 * time.Second

// BroadcastHandler receives fan-out frames, including the sender's session key
type BroadcastHandler func(sender, event string, payload json.RawMessage)

// PresenceSyncHandler receives the full presence set keyed by session
type PresenceSyncHandler func(states map[string]json.RawMessage)

// PresenceJoinHandler receives one joined/updated presence entry
type PresenceJoinHandler func(key string, state json.RawMessage)

// PresenceLeaveHandler receives the key of a departed session
type PresenceLeaveHandler func(key string)

// ChangeHandler receives one committed row from the change feed
type ChangeHandler func(row json.RawMessage)

// RoomChannel is the per-room transport: broadcast, presence and table
// change notifications over one named topic. Handlers must be registered
// before Subscribe; Unsubscribe tears down all three streams.
type RoomChannel interface {
	Subscribe(ctx context.Context) (Status, error)
	Unsubscribe(ctx context.Context) error
	Broadcast(ctx context.Context, event string, payload any) error
	Track(ctx context.Context, state any) error
	Subscribed() bool
	SessionKey() string

	OnBroadcast(event string, h BroadcastHandler)
	OnPresenceSync(h PresenceSyncHandler)
	OnPresenceJoin(h PresenceJoinHandler)
	OnPresenceLeave(h PresenceLeaveHandler)
	OnTableChange(table string, filter func(row json.RawMessage) bool, h ChangeHandler)
}

// Publisher is the write-side of the change feed, used by repositories to
// replay committed rows to subscribers.
type Publisher interface {
	PublishChange(ctx context.Context, table string, row any) error
}

type broadcastEnvelope struct {
	Event   string          `json:"event"`
	Sender  string          `json:"sender"`
	Payload json.RawMessage `json:"payload"`
}

type presenceEnvelope struct {
	Type  string          `json:"type"` // join | leave
	Key   string          `json:"key"`
	State json.RawMessage `json:"state,omitempty"`
}

type changeSubscription struct {
	filter  func(row json.RawMessage) bool
	handler ChangeHandler
}

// redisChannel is the go-redis implementation of RoomChannel.
type redisChannel struct {
	rdb        *redis.Client
	topic      string
	sessionKey string

	mu         sync.Mutex
	subscribed bool
	sub        *redis.PubSub
	cancel     context.CancelFunc

	broadcastHandlers map[string][]BroadcastHandler
	syncHandlers      []PresenceSyncHandler
	joinHandlers      []PresenceJoinHandler
	leaveHandlers     []PresenceLeaveHandler
	changeHandlers    map[string][]changeSubscription
}

// NewRoomChannel creates an unsubscribed channel for topic, identified by
// sessionKey in presence and broadcast envelopes.
func NewRoomChannel(rdb *redis.Client, topic, sessionKey string) RoomChannel {
	return &redisChannel{
		rdb:               rdb,
		topic:             topic,
		sessionKey:        sessionKey,
		broadcastHandlers: make(map[string][]BroadcastHandler),
		changeHandlers:    make(map[string][]changeSubscription),
	}
}

func (c *redisChannel) broadcastChannel() string { return "broadcast:" + c.topic }
func (c *redisChannel) presenceChannel() string  { return "presence:" + c.topic }
func (c *redisChannel) presenceKey() string      { return "presence_state:" + c.topic }

func changeChannel(table string) string { return "changes:" + table }

// SessionKey returns the identity this channel publishes under.
func (c *redisChannel) SessionKey() string { return c.sessionKey }

// Subscribed reports whether Subscribe has completed successfully.
func (c *redisChannel) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

// OnBroadcast registers a handler for one broadcast event name.
func (c *redisChannel) OnBroadcast(event string, h BroadcastHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.broadcastHandlers[event] = append(c.broadcastHandlers[event], h)
}

// OnPresenceSync registers a full presence replay handler.
func (c *redisChannel) OnPresenceSync(h PresenceSyncHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncHandlers = append(c.syncHandlers, h)
}

// OnPresenceJoin registers a presence delta handler.
func (c *redisChannel) OnPresenceJoin(h PresenceJoinHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joinHandlers = append(c.joinHandlers, h)
}

// OnPresenceLeave registers a departure handler.
func (c *redisChannel) OnPresenceLeave(h PresenceLeaveHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leaveHandlers = append(c.leaveHandlers, h)
}

// OnTableChange registers a change-feed handler for one table. A nil filter
// accepts every row.
func (c *redisChannel) OnTableChange(table string, filter func(row json.RawMessage) bool, h ChangeHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changeHandlers[table] = append(c.changeHandlers[table], changeSubscription{filter: filter, handler: h})
}

// Subscribe opens the pub/sub streams, replays the current presence set to
// the sync handlers and starts the dispatch goroutine. One goroutine
// serializes all handler invocations for this channel.
func (c *redisChannel) Subscribe(ctx context.Context) (Status, error) {
	c.mu.Lock()
	if c.subscribed {
		c.mu.Unlock()
		return StatusSubscribed, nil
	}

	channels := []string{c.broadcastChannel(), c.presenceChannel()}
	for table := range c.changeHandlers {
		channels = append(channels, changeChannel(table))
	}
	c.mu.Unlock()

	sub := c.rdb.Subscribe(ctx, channels...)
	// force the subscription onto the wire before reporting status
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return StatusChannelError, fmt.Errorf("%w: subscribe %s: %v", domain.ErrConnectivity, c.topic, err)
	}

	states, err := c.rdb.HGetAll(ctx, c.presenceKey()).Result()
	if err != nil {
		sub.Close()
		return StatusChannelError, fmt.Errorf("%w: presence sync %s: %v", domain.ErrConnectivity, c.topic, err)
	}

	dispatchCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.sub = sub
	c.cancel = cancel
	c.subscribed = true
	syncHandlers := append([]PresenceSyncHandler(nil), c.syncHandlers...)
	c.mu.Unlock()

	snapshot := make(map[string]json.RawMessage, len(states))
	for key, raw := range states {
		snapshot[key] = json.RawMessage(raw)
	}
	for _, h := range syncHandlers {
		h(snapshot)
	}

	go c.dispatchLoop(dispatchCtx, sub)

	return StatusSubscribed, nil
}

func (c *redisChannel) dispatchLoop(ctx context.Context, sub *redis.PubSub) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			c.dispatch(m)
		}
	}
}

func (c *redisChannel) dispatch(m *redis.Message) {
	switch m.Channel {
	case c.broadcastChannel():
		var env broadcastEnvelope
		if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
			logger.Log.Warn("drop malformed broadcast frame", zap.String("topic", c.topic), zap.Error(err))
			return
		}
		c.mu.Lock()
		handlers := append([]BroadcastHandler(nil), c.broadcastHandlers[env.Event]...)
		c.mu.Unlock()
		for _, h := range handlers {
			h(env.Sender, env.Event, env.Payload)
		}

	case c.presenceChannel():
		var env presenceEnvelope
		if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
			logger.Log.Warn("drop malformed presence frame", zap.String("topic", c.topic), zap.Error(err))
			return
		}
		c.mu.Lock()
		joins := append([]PresenceJoinHandler(nil), c.joinHandlers...)
		leaves := append([]PresenceLeaveHandler(nil), c.leaveHandlers...)
		c.mu.Unlock()
		switch env.Type {
		case "join":
			for _, h := range joins {
				h(env.Key, env.State)
			}
		case "leave":
			for _, h := range leaves {
				h(env.Key)
			}
		}

	default:
		c.mu.Lock()
		var subs []changeSubscription
		for table, list := range c.changeHandlers {
			if changeChannel(table) == m.Channel {
				subs = append([]changeSubscription(nil), list...)
				break
			}
		}
		c.mu.Unlock()
		row := json.RawMessage(m.Payload)
		for _, s := range subs {
			if s.filter != nil && !s.filter(row) {
				continue
			}
			s.handler(row)
		}
	}
}

// Broadcast publishes a fire-and-forget frame to every current subscriber
// of the topic, including this session.
func (c *redisChannel) Broadcast(ctx context.Context, event string, payload any) error {
	if !c.Subscribed() {
		return domain.ErrNotConnected
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal broadcast payload: %w", err)
	}
	frame, err := json.Marshal(broadcastEnvelope{Event: event, Sender: c.sessionKey, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal broadcast frame: %w", err)
	}

	if err := c.rdb.Publish(ctx, c.broadcastChannel(), frame).Err(); err != nil {
		return fmt.Errorf("%w: broadcast %s: %v", domain.ErrConnectivity, c.topic, err)
	}
	return nil
}

// Track publishes or replaces this session's presence state and notifies
// subscribers with a join delta.
func (c *redisChannel) Track(ctx context.Context, state any) error {
	if !c.Subscribed() {
		return domain.ErrNotConnected
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal presence state: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, c.presenceKey(), c.sessionKey, string(raw))
	pipe.Expire(ctx, c.presenceKey(), presenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: track %s: %v", domain.ErrConnectivity, c.topic, err)
	}

	frame, _ := json.Marshal(presenceEnvelope{Type: "join", Key: c.sessionKey, State: raw})
	if err := c.rdb.Publish(ctx, c.presenceChannel(), frame).Err(); err != nil {
		return fmt.Errorf("%w: presence publish %s: %v", domain.ErrConnectivity, c.topic, err)
	}
	return nil
}

// Unsubscribe removes this session from presence, emits the leave delta and
// stops delivery on all streams. Idempotent.
func (c *redisChannel) Unsubscribe(ctx context.Context) error {
	c.mu.Lock()
	if !c.subscribed {
		c.mu.Unlock()
		return nil
	}
	c.subscribed = false
	sub := c.sub
	cancel := c.cancel
	c.sub = nil
	c.cancel = nil
	c.mu.Unlock()

	if err := c.rdb.HDel(ctx, c.presenceKey(), c.sessionKey).Err(); err != nil {
		logger.Log.Warn("presence cleanup failed", zap.String("topic", c.topic), zap.Error(err))
	}
	frame, _ := json.Marshal(presenceEnvelope{Type: "leave", Key: c.sessionKey})
	if err := c.rdb.Publish(ctx, c.presenceChannel(), frame).Err(); err != nil {
		logger.Log.Warn("presence leave publish failed", zap.String("topic", c.topic), zap.Error(err))
	}

	cancel()
	return sub.Close()
}

// redisPublisher is the repository-side change feed writer.
type redisPublisher struct {
	rdb *redis.Client
}

// NewPublisher creates the change feed writer repositories publish
// committed rows through.
func NewPublisher(rdb *redis.Client) Publisher {
	return &redisPublisher{rdb: rdb}
}

// PublishChange replays one committed row on the table's change channel.
func (p *redisPublisher) PublishChange(ctx context.Context, table string, row any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("marshal change row: %w", err)
	}
	if err := p.rdb.Publish(ctx, changeChannel(table), raw).Err(); err != nil {
		return fmt.Errorf("%w: change publish %s: %v", domain.ErrConnectivity, table, err)
	}
	return nil
}
