package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"silink/internal/metrics"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 64 * 1024
	outboundBuffer = 64
)

// TokenVerifier resolves a bearer token into the user id it was issued for.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// Handler upgrades HTTP requests on the websocket endpoint. A connection stays anonymous
// until it sends an auth frame.
type Handler struct {
	registry Registry
	verifier TokenVerifier
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewHandler creates the websocket handler. A nil verifier trusts the userId of the auth frame.
func NewHandler(registry Registry, verifier TokenVerifier, metrics *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		verifier: verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		metrics: metrics,
		logger:  logger.With("component", "chat_ws"),
	}
}

type inboundFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// ServeHTTP satisfies http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := newWSConn(ws)
	go c.writeLoop(h.logger)
	defer func() {
		if c.userID != "" {
			h.registry.Unregister(c.userID, c)
		}
		c.close()
	}()

	h.readLoop(c)
}

func (h *Handler) readLoop(c *wsConn) {
	ws := c.ws
	ws.SetReadLimit(maxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed unexpectedly", "error", err, "user_id", c.userID)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.metrics.MalformedFrames.Inc()
			h.logger.Debug("ignoring malformed frame", "error", err)
			continue
		}

		switch frame.Type {
		case "auth":
			h.authenticate(c, frame)
		default:
			h.metrics.MalformedFrames.Inc()
			h.logger.Debug("ignoring unknown frame", "type", frame.Type)
		}
	}
}

func (h *Handler) authenticate(c *wsConn, frame inboundFrame) {
	userID, err := h.resolveUser(frame)
	if err != nil {
		h.logger.Info("websocket auth rejected", "error", err)
		c.Enqueue(Event{Type: EventError, Error: err.Error()})
		return
	}

	if c.userID != "" && c.userID != userID {
		h.registry.Unregister(c.userID, c)
	}
	c.userID = userID
	h.registry.Register(userID, c)
	h.logger.Debug("websocket authenticated", "user_id", userID)
	c.Enqueue(Event{Type: EventAuthOK, UserID: userID})
}

func (h *Handler) resolveUser(frame inboundFrame) (string, error) {
	userID := strings.TrimSpace(frame.UserID)
	if h.verifier == nil {
		if userID == "" {
			return "", errors.New("userId is required")
		}
		return userID, nil
	}

	if strings.TrimSpace(frame.Token) == "" {
		return "", errors.New("token is required")
	}
	subject, err := h.verifier.VerifyToken(frame.Token)
	if err != nil {
		return "", errors.New("invalid token")
	}
	if userID != "" && userID != subject {
		return "", errors.New("userId does not match token")
	}
	return subject, nil
}

// wsConn owns one gorilla connection. Reads happen on the handler goroutine, writes on
// writeLoop; userID is only touched by the reader.
type wsConn struct {
	ws        *websocket.Conn
	send      chan Event
	done      chan struct{}
	closeOnce sync.Once
	userID    string
}

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		ws:   ws,
		send: make(chan Event, outboundBuffer),
		done: make(chan struct{}),
	}
}

// Enqueue never blocks; a full buffer drops the event.
func (c *wsConn) Enqueue(ev Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *wsConn) writeLoop(logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case ev := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				logger.Debug("websocket write failed", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
