package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/habitquest/platform/internal/domain"
	"github.com/redis/go-redis/v9"
)

// NotificationMessage is one notification addressed to a player.
type NotificationMessage struct {
	UserID       uuid.UUID           `json:"user_id"`
	Notification domain.Notification `json:"notification"`
}

// NotificationRelay fans notifications out across API instances.
type NotificationRelay interface {
	Publish(ctx context.Context, msg NotificationMessage) error
	Run(ctx context.Context, deliver func(NotificationMessage)) error
}

// Subscription receives the notifications of one player.
type Subscription struct {
	UserID uuid.UUID
	C      <-chan domain.Notification

	ch chan domain.Notification
}

// NotificationHub pushes engine notifications to connected players.
// Without a relay, delivery is local to this process.
type NotificationHub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	relay  NotificationRelay
	buffer int
	closed bool
	logger *slog.Logger
}

// NewNotificationHub creates a hub. relay may be nil.
func NewNotificationHub(relay NotificationRelay, logger *slog.Logger) *NotificationHub {
	return &NotificationHub{
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
		relay:  relay,
		buffer: 16,
		logger: logger,
	}
}

// Subscribe registers a listener for userID. Call Unsubscribe when done.
func (h *NotificationHub) Subscribe(userID uuid.UUID) *Subscription {
	ch := make(chan domain.Notification, h.buffer)
	sub := &Subscription{UserID: userID, C: ch, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes the listener and closes its channel.
func (h *NotificationHub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.UserID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.ch)
	if len(set) == 0 {
		delete(h.subs, sub.UserID)
	}
}

// Notify implements progression.Notifier.
func (h *NotificationHub) Notify(ctx context.Context, userID uuid.UUID, n domain.Notification) {
	if h.relay != nil {
		err := h.relay.Publish(ctx, NotificationMessage{UserID: userID, Notification: n})
		if err == nil {
			return
		}
		h.logger.Warn("notification relay failed, delivering locally", "user_id", userID, "error", err)
	}
	h.deliver(NotificationMessage{UserID: userID, Notification: n})
}

// Run forwards relayed notifications to local subscribers until ctx is done.
func (h *NotificationHub) Run(ctx context.Context) error {
	if h.relay == nil {
		return nil
	}
	return h.relay.Run(ctx, h.deliver)
}

func (h *NotificationHub) deliver(msg NotificationMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[msg.UserID] {
		select {
		case sub.ch <- msg.Notification:
		default:
			h.logger.Debug("subscriber slow, notification dropped", "user_id", msg.UserID, "kind", msg.Notification.Kind)
		}
	}
}

// SubscriberCount returns the number of listeners for userID.
func (h *NotificationHub) SubscriberCount(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Shutdown closes all subscriptions.
func (h *NotificationHub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, set := range h.subs {
		for sub := range set {
			close(sub.ch)
		}
		delete(h.subs, userID)
	}
}

// RedisRelay shares notifications between instances over a Redis pub/sub channel.
type RedisRelay struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisRelay creates a relay on the given channel.
func NewRedisRelay(client *redis.Client, channel string, logger *slog.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, msg NotificationMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return r.client.Publish(ctx, r.channel, raw).Err()
}

// Run subscribes to the channel and blocks until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, deliver func(NotificationMessage)) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	r.logger.Info("notification relay subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg NotificationMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.logger.Warn("bad notification payload", "error", err)
				continue
			}
			deliver(msg)
		}
	}
}
