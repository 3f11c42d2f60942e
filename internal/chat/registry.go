package chat

import (
	"log/slog"
	"sync"

	"silink/internal/metrics"
)

// Conn is a live connection able to accept outbound events without blocking.
type Conn interface {
	// Enqueue reports false when the event could not be queued.
	Enqueue(ev Event) bool
}

// Registry maps user ids to their live connection.
type Registry interface {
	Register(userID string, c Conn)
	Unregister(userID string, c Conn)
	Deliver(userID string, ev Event) Outcome
}

// LocalRegistry is a per-process Registry. A user holds at most one connection; a newer
// registration replaces the older one.
type LocalRegistry struct {
	mu      sync.RWMutex
	conns   map[string]Conn
	metrics *metrics.Metrics
	logger  *slog.Logger
}

var _ Registry = (*LocalRegistry)(nil)

// NewLocalRegistry creates an empty registry.
func NewLocalRegistry(metrics *metrics.Metrics, logger *slog.Logger) *LocalRegistry {
	return &LocalRegistry{
		conns:   make(map[string]Conn),
		metrics: metrics,
		logger:  logger.With("component", "chat_registry"),
	}
}

// Register binds c to userID.
func (r *LocalRegistry) Register(userID string, c Conn) {
	r.mu.Lock()
	_, replaced := r.conns[userID]
	r.conns[userID] = c
	r.mu.Unlock()

	if replaced {
		r.logger.Debug("connection replaced", "user_id", userID)
		return
	}
	r.metrics.ActiveConnections.Inc()
}

// Unregister removes the entry for userID only while it still points at c.
func (r *LocalRegistry) Unregister(userID string, c Conn) {
	r.mu.Lock()
	current, ok := r.conns[userID]
	removed := ok && current == c
	if removed {
		delete(r.conns, userID)
	}
	r.mu.Unlock()

	if removed {
		r.metrics.ActiveConnections.Dec()
	}
}

// Deliver queues ev on the connection of userID.
func (r *LocalRegistry) Deliver(userID string, ev Event) Outcome {
	r.mu.RLock()
	c, ok := r.conns[userID]
	r.mu.RUnlock()

	if !ok {
		return OutcomeOffline
	}
	if !c.Enqueue(ev) {
		r.logger.Warn("connection queue full, dropping event", "user_id", userID, "type", ev.Type)
		return OutcomeDropped
	}
	return OutcomeDelivered
}

// Online reports whether userID has a registered connection.
func (r *LocalRegistry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}
