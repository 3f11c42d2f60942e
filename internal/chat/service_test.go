package chat

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"silink/internal/access"
	"silink/internal/apperr"
	"silink/internal/cache"
	"silink/internal/logging"
	"silink/internal/metrics"
	"silink/internal/repo"
	"silink/migrations"

	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []repo.ChatMessage
}

func (n *recordingNotifier) Notify(_ context.Context, msg repo.ChatMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

type fakeConn struct {
	mu     sync.Mutex
	events []Event
	full   bool
}

func (c *fakeConn) Enqueue(ev Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

func newTestStore(t *testing.T, users ...string) *repo.SQLiteRepository {
	t.Helper()
	ctx := context.Background()
	store, err := repo.NewSQLite(ctx, filepath.Join(t.TempDir(), "chat.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.RunMigrations(ctx, migrations.SQLiteFiles))

	role := access.RoleStudent
	for _, id := range users {
		_, err := store.UpsertUser(ctx, repo.UserProfile{ID: id, Role: &role})
		require.NoError(t, err)
	}
	return store
}

func testMetrics() *metrics.Metrics {
	return metrics.Registry("silink_test")
}

func TestSendToOfflineUserIsStoredUnread(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "a", "b")
	registry := NewLocalRegistry(testMetrics(), logging.Discard())
	svc := NewService(store, NewLocalNotifier(registry, testMetrics(), logging.Discard()), testMetrics(), logging.Discard())

	msg, err := svc.Send(ctx, SendInput{SenderID: "a", ReceiverID: "b", Message: "  hello  "})
	require.NoError(t, err)
	require.Equal(t, "hello", msg.Message)
	require.False(t, msg.IsRead)
	require.False(t, registry.Online("b"))

	convos, err := svc.Conversations(ctx, "b")
	require.NoError(t, err)
	require.Len(t, convos, 1)
	require.Equal(t, "a", convos[0].UserID)
	require.Equal(t, "hello", convos[0].LastMessage.Message)
	require.Equal(t, 1, convos[0].UnreadCount)

	n, err := svc.MarkRead(ctx, "b", "a")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	convos, err = svc.Conversations(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, 0, convos[0].UnreadCount)
}

func TestSendNotifiesAfterPersisting(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "a", "b")
	notifier := &recordingNotifier{}
	svc := NewService(store, notifier, testMetrics(), logging.Discard())

	image := " https://cdn.example/x.png "
	msg, err := svc.Send(ctx, SendInput{SenderID: "a", ReceiverID: "b", Message: "pic", ImageURL: &image})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example/x.png", *msg.ImageURL)

	require.Len(t, notifier.sent, 1)
	require.Equal(t, msg.ID, notifier.sent[0].ID)

	history, err := svc.History(ctx, "b", "a", repo.Page{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, msg.ID, history[0].ID)
}

func TestSendValidation(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "a", "b")
	notifier := &recordingNotifier{}
	svc := NewService(store, notifier, testMetrics(), logging.Discard())

	cases := []struct {
		name  string
		in    SendInput
		field string
		err   error
	}{
		{name: "anonymous", in: SendInput{ReceiverID: "b", Message: "x"}, err: apperr.ErrUnauthenticated},
		{name: "no receiver", in: SendInput{SenderID: "a", Message: "x"}, field: "receiverId"},
		{name: "self", in: SendInput{SenderID: "a", ReceiverID: "a", Message: "x"}, field: "receiverId"},
		{name: "blank", in: SendInput{SenderID: "a", ReceiverID: "b", Message: "   "}, field: "message"},
		{name: "too long", in: SendInput{SenderID: "a", ReceiverID: "b", Message: strings.Repeat("é", maxMessageLength+1)}, field: "message"},
		{name: "unknown receiver", in: SendInput{SenderID: "a", ReceiverID: "ghost", Message: "x"}, err: apperr.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Send(ctx, tc.in)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			var verr *apperr.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tc.field, verr.Field)
		})
	}
	require.Empty(t, notifier.sent)

	_, err := svc.Send(ctx, SendInput{SenderID: "a", ReceiverID: "b", Message: strings.Repeat("é", maxMessageLength)})
	require.NoError(t, err)
}

func TestHistoryCursorRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, "a", "b")
	svc := NewService(store, nil, testMetrics(), logging.Discard())

	var sent []string
	for _, text := range []string{"one", "two", "three"} {
		msg, err := svc.Send(ctx, SendInput{SenderID: "a", ReceiverID: "b", Message: text})
		require.NoError(t, err)
		sent = append(sent, msg.ID)
	}

	page, err := svc.History(ctx, "a", "b", repo.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)

	cursor, err := DecodeCursor(EncodeCursor(page[1]))
	require.NoError(t, err)
	require.Equal(t, page[1].ID, cursor.ID)
	require.True(t, cursor.Timestamp.Equal(page[1].Timestamp))

	rest, err := svc.History(ctx, "a", "b", repo.Page{Limit: 2, After: cursor})
	require.NoError(t, err)
	require.Len(t, rest, 1)

	all := append(page, rest...)
	got := make(map[string]bool, len(all))
	for _, m := range all {
		got[m.ID] = true
	}
	for _, id := range sent {
		require.True(t, got[id], id)
	}

	_, err = DecodeCursor("%%%")
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "after", verr.Field)

	_, err = svc.History(ctx, "a", "b", repo.Page{Limit: -1})
	require.ErrorAs(t, err, &verr)
}

func TestLocalRegistryDelivery(t *testing.T) {
	registry := NewLocalRegistry(testMetrics(), logging.Discard())
	ev := NewMessageEvent(repo.ChatMessage{ID: "m1", ReceiverID: "b"})

	require.Equal(t, OutcomeOffline, registry.Deliver("b", ev))

	first := &fakeConn{}
	registry.Register("b", first)
	require.Equal(t, OutcomeDelivered, registry.Deliver("b", ev))
	require.Len(t, first.events, 1)
	require.Equal(t, EventNewMessage, first.events[0].Type)

	// A newer connection takes over; the stale one cannot evict it.
	second := &fakeConn{}
	registry.Register("b", second)
	registry.Unregister("b", first)
	require.True(t, registry.Online("b"))
	require.Equal(t, OutcomeDelivered, registry.Deliver("b", ev))
	require.Len(t, first.events, 1)
	require.Len(t, second.events, 1)

	second.full = true
	require.Equal(t, OutcomeDropped, registry.Deliver("b", ev))

	registry.Unregister("b", second)
	require.False(t, registry.Online("b"))
	require.Equal(t, OutcomeOffline, registry.Deliver("b", ev))
}

func TestRedisNotifierRelaysToLocalConnections(t *testing.T) {
	registry := NewLocalRegistry(testMetrics(), logging.Discard())
	conn := &fakeConn{}
	registry.Register("b", conn)
	local := NewLocalNotifier(registry, testMetrics(), logging.Discard())
	relay := NewRedisNotifier(nil, "", local, testMetrics(), logging.Discard())
	require.Equal(t, DefaultRelayChannel, relay.channel)

	relay.handlePayload(context.Background(), []byte(`{"message":{"id":"m1","senderId":"a","receiverId":"b","message":"hi"}}`))
	relay.handlePayload(context.Background(), []byte(`not json`))
	relay.handlePayload(context.Background(), []byte(`{"message":{"id":"m2"}}`))

	require.Len(t, conn.events, 1)
	require.Equal(t, "m1", conn.events[0].Message.ID)
	require.Equal(t, "hi", conn.events[0].Message.Message)
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func newUnreachableRelay(t *testing.T) (*RedisNotifier, *fakeConn) {
	t.Helper()
	rdb := cache.New(cache.Config{Addr: "127.0.0.1:1"}, logging.Discard())
	t.Cleanup(func() { _ = rdb.Close() })

	registry := NewLocalRegistry(testMetrics(), logging.Discard())
	conn := &fakeConn{}
	registry.Register("b", conn)
	relay := NewRedisNotifier(rdb, "", NewLocalNotifier(registry, testMetrics(), logging.Discard()), testMetrics(), logging.Discard())
	relay.retryMin = 10 * time.Millisecond
	relay.retryMax = 20 * time.Millisecond
	return relay, conn
}

func TestRedisNotifierRunKeepsRetryingWhileRedisIsDown(t *testing.T) {
	relay, conn := newUnreachableRelay(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("Run returned before cancellation: %v", err)
	case <-time.After(300 * time.Millisecond):
	}
	require.False(t, relay.Subscribed())

	relay.Notify(ctx, repo.ChatMessage{ID: "m1", SenderID: "a", ReceiverID: "b", Message: "hi"})
	require.Equal(t, 1, conn.count())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestRedisNotifierPublishDoesNotBlockSend(t *testing.T) {
	relay, conn := newUnreachableRelay(t)
	relay.subscribed.Store(true)

	start := time.Now()
	relay.Notify(context.Background(), repo.ChatMessage{ID: "m1", SenderID: "a", ReceiverID: "b", Message: "hi"})
	require.Less(t, time.Since(start), 100*time.Millisecond)

	require.Eventually(t, func() bool { return conn.count() == 1 }, 3*time.Second, 10*time.Millisecond)
}
