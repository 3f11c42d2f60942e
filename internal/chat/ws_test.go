package chat

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"silink/internal/logging"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type staticVerifier map[string]string

func (v staticVerifier) VerifyToken(token string) (string, error) {
	if sub, ok := v[token]; ok {
		return sub, nil
	}
	return "", errors.New("unknown token")
}

func dialSocket(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestSocketReceivesLiveMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "a", "b")
	registry := NewLocalRegistry(testMetrics(), logging.Discard())
	svc := NewService(store, NewLocalNotifier(registry, testMetrics(), logging.Discard()), testMetrics(), logging.Discard())
	conn := dialSocket(t, NewHandler(registry, nil, testMetrics(), logging.Discard()))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "typing"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "userId": "b"}))

	ev := readEvent(t, conn)
	require.Equal(t, EventAuthOK, ev.Type)
	require.Equal(t, "b", ev.UserID)
	require.True(t, registry.Online("b"))

	msg, err := svc.Send(ctx, SendInput{SenderID: "a", ReceiverID: "b", Message: "hello"})
	require.NoError(t, err)

	ev = readEvent(t, conn)
	require.Equal(t, EventNewMessage, ev.Type)
	require.NotNil(t, ev.Message)
	require.Equal(t, msg.ID, ev.Message.ID)
	require.Equal(t, "hello", ev.Message.Message)
	require.Equal(t, "a", ev.Message.SenderID)

	// Live delivery does not mark the message read.
	convos, err := svc.Conversations(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, 1, convos[0].UnreadCount)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !registry.Online("b") }, 5*time.Second, 10*time.Millisecond)
}

func TestSocketAuthWithVerifier(t *testing.T) {
	registry := NewLocalRegistry(testMetrics(), logging.Discard())
	verifier := staticVerifier{"good": "u1"}
	conn := dialSocket(t, NewHandler(registry, verifier, testMetrics(), logging.Discard()))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "userId": "u1"}))
	ev := readEvent(t, conn)
	require.Equal(t, EventError, ev.Type)
	require.Contains(t, ev.Error, "token")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "userId": "u2", "token": "good"}))
	ev = readEvent(t, conn)
	require.Equal(t, EventError, ev.Type)
	require.False(t, registry.Online("u2"))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": "bad"}))
	ev = readEvent(t, conn)
	require.Equal(t, EventError, ev.Type)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "auth", "token": "good"}))
	ev = readEvent(t, conn)
	require.Equal(t, EventAuthOK, ev.Type)
	require.Equal(t, "u1", ev.UserID)
	require.True(t, registry.Online("u1"))
}

func TestWSConnEnqueueDoesNotBlock(t *testing.T) {
	c := newWSConn(nil)
	for i := 0; i < outboundBuffer; i++ {
		require.True(t, c.Enqueue(Event{Type: EventNewMessage}))
	}
	require.False(t, c.Enqueue(Event{Type: EventNewMessage}))

	c.close()
	c.close()
	<-c.send
	require.False(t, c.Enqueue(Event{Type: EventNewMessage}))
}
