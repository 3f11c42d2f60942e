package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"silink/internal/cache"
	"silink/internal/metrics"
	"silink/internal/repo"
)

const (
	// DefaultRelayChannel is the Redis channel shared by every process.
	DefaultRelayChannel = "silink:chat:relay"

	publishTimeout = 500 * time.Millisecond

	relayRetryMin = 500 * time.Millisecond
	relayRetryMax = 30 * time.Second
)

// Notifier performs best-effort live delivery of a stored message.
type Notifier interface {
	Notify(ctx context.Context, msg repo.ChatMessage)
}

// LocalNotifier pushes into the connections held by this process.
type LocalNotifier struct {
	registry Registry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewLocalNotifier creates a notifier backed by registry.
func NewLocalNotifier(registry Registry, metrics *metrics.Metrics, logger *slog.Logger) *LocalNotifier {
	return &LocalNotifier{
		registry: registry,
		metrics:  metrics,
		logger:   logger.With("component", "chat_notifier"),
	}
}

// Notify delivers msg to its receiver if they are connected here.
func (n *LocalNotifier) Notify(_ context.Context, msg repo.ChatMessage) {
	outcome := n.registry.Deliver(msg.ReceiverID, NewMessageEvent(msg))
	n.metrics.LiveDeliveries.WithLabelValues(string(outcome)).Inc()
	n.logger.Debug("live delivery", "message_id", msg.ID, "receiver_id", msg.ReceiverID, "outcome", outcome)
}

type relayEnvelope struct {
	Message repo.ChatMessage `json:"message"`
}

// RedisNotifier fans messages out through Redis pub/sub so that the process holding the
// receiver's connection delivers it. While the subscription is down, messages are
// delivered by this process only.
type RedisNotifier struct {
	redis      *cache.Redis
	channel    string
	local      *LocalNotifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	subscribed atomic.Bool

	retryMin time.Duration
	retryMax time.Duration
}

// NewRedisNotifier creates a notifier publishing on channel.
func NewRedisNotifier(redis *cache.Redis, channel string, local *LocalNotifier, metrics *metrics.Metrics, logger *slog.Logger) *RedisNotifier {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisNotifier{
		redis:    redis,
		channel:  channel,
		local:    local,
		metrics:  metrics,
		logger:   logger.With("component", "chat_relay"),
		retryMin: relayRetryMin,
		retryMax: relayRetryMax,
	}
}

// Subscribed reports whether this process currently receives relayed messages.
func (n *RedisNotifier) Subscribed() bool {
	return n.subscribed.Load()
}

// Notify publishes msg without waiting for Redis. When the subscription is down or the
// publish fails, the message is delivered locally only.
func (n *RedisNotifier) Notify(ctx context.Context, msg repo.ChatMessage) {
	if !n.subscribed.Load() {
		n.local.Notify(ctx, msg)
		return
	}
	go n.publish(context.WithoutCancel(ctx), msg)
}

func (n *RedisNotifier) publish(ctx context.Context, msg repo.ChatMessage) {
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := n.redis.PublishJSON(pubCtx, n.channel, relayEnvelope{Message: msg}); err != nil {
		n.logger.Warn("publish failed, delivering locally", "error", err, "message_id", msg.ID)
		n.metrics.Errors.WithLabelValues("chat_relay_publish").Inc()
		n.local.Notify(ctx, msg)
	}
}

// Run consumes the relay channel until ctx is cancelled. A failed or dropped subscription
// is retried with exponential backoff; Run only returns once ctx is done.
func (n *RedisNotifier) Run(ctx context.Context) error {
	delay := n.retryMin
	for {
		err := n.redis.Subscribe(ctx, n.channel, func() {
			n.subscribed.Store(true)
			delay = n.retryMin
		}, func(payload []byte) {
			n.handlePayload(ctx, payload)
		})
		n.subscribed.Store(false)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			n.logger.Warn("relay subscription failed, delivering locally", "error", err, "retry_in", delay)
			n.metrics.Errors.WithLabelValues("chat_relay_subscribe").Inc()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, n.retryMax)
	}
}

func (n *RedisNotifier) handlePayload(ctx context.Context, payload []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Message.ReceiverID == "" {
		n.logger.Warn("invalid relay payload", "error", err)
		n.metrics.Errors.WithLabelValues("chat_relay_decode").Inc()
		return
	}
	n.local.Notify(ctx, env.Message)
}
