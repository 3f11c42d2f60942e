// Package chat persists direct messages between users and relays them live to
// connected websocket clients.
package chat

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"silink/internal/apperr"
	"silink/internal/metrics"
	"silink/internal/repo"
)

const (
	maxMessageLength = 4000
	maxPageSize      = 500
)

// Store is the slice of the repository the relay needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*repo.User, error)
	InsertChatMessage(ctx context.Context, msg repo.ChatMessage) (*repo.ChatMessage, error)
	ListConversation(ctx context.Context, userID, counterpartID string, page repo.Page) ([]repo.ChatMessage, error)
	ListConversations(ctx context.Context, userID string) ([]repo.Conversation, error)
	MarkConversationRead(ctx context.Context, readerID, counterpartID string) (int64, error)
}

// Service implements the messaging operations.
type Service struct {
	store    Store
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService wires the relay.
func NewService(store Store, notifier Notifier, metrics *metrics.Metrics, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger.With("component", "chat"),
	}
}

// SendInput is a message submitted by SenderID.
type SendInput struct {
	SenderID   string
	ReceiverID string
	Message    string
	ImageURL   *string
}

// Send persists the message as unread and then attempts live delivery. The stored message
// is returned whether or not the receiver is online.
func (s *Service) Send(ctx context.Context, in SendInput) (*repo.ChatMessage, error) {
	if in.SenderID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	receiverID := strings.TrimSpace(in.ReceiverID)
	if receiverID == "" {
		return nil, apperr.Invalid("receiverId", "is required")
	}
	if receiverID == in.SenderID {
		return nil, apperr.Invalid("receiverId", "cannot message yourself")
	}
	body := strings.TrimSpace(in.Message)
	if body == "" {
		return nil, apperr.Invalid("message", "is required")
	}
	if utf8.RuneCountInString(body) > maxMessageLength {
		return nil, apperr.Invalid("message", fmt.Sprintf("must be at most %d characters", maxMessageLength))
	}
	var image *string
	if in.ImageURL != nil {
		if trimmed := strings.TrimSpace(*in.ImageURL); trimmed != "" {
			image = &trimmed
		}
	}

	if _, err := s.store.GetUser(ctx, receiverID); err != nil {
		return nil, fmt.Errorf("lookup receiver %s: %w", receiverID, err)
	}

	msg, err := s.store.InsertChatMessage(ctx, repo.ChatMessage{
		SenderID:   in.SenderID,
		ReceiverID: receiverID,
		Message:    body,
		ImageURL:   image,
	})
	if err != nil {
		s.metrics.Errors.WithLabelValues("chat_store").Inc()
		return nil, fmt.Errorf("store message: %w", err)
	}

	kind := "text"
	if msg.ImageURL != nil {
		kind = "image"
	}
	s.metrics.ChatMessages.WithLabelValues(kind).Inc()

	if s.notifier != nil {
		s.notifier.Notify(ctx, *msg)
	}
	return msg, nil
}

// Conversations lists the user's conversations, most recent first.
func (s *Service) Conversations(ctx context.Context, userID string) ([]repo.Conversation, error) {
	if userID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	convos, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convos, nil
}

// History returns the messages between userID and counterpartID in ascending order.
func (s *Service) History(ctx context.Context, userID, counterpartID string, page repo.Page) ([]repo.ChatMessage, error) {
	if userID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if strings.TrimSpace(counterpartID) == "" {
		return nil, apperr.Invalid("userId", "is required")
	}
	if page.Limit < 0 {
		return nil, apperr.Invalid("limit", "must not be negative")
	}
	if page.Limit > maxPageSize {
		page.Limit = maxPageSize
	}
	msgs, err := s.store.ListConversation(ctx, userID, counterpartID, page)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return msgs, nil
}

// MarkRead flags every message counterpartID sent to userID as read.
func (s *Service) MarkRead(ctx context.Context, userID, counterpartID string) (int64, error) {
	if userID == "" {
		return 0, apperr.ErrUnauthenticated
	}
	if strings.TrimSpace(counterpartID) == "" {
		return 0, apperr.Invalid("userId", "is required")
	}
	n, err := s.store.MarkConversationRead(ctx, userID, counterpartID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}

// EncodeCursor returns an opaque token resuming history after msg.
func EncodeCursor(msg repo.ChatMessage) string {
	raw := strconv.FormatInt(msg.Timestamp.UnixNano(), 10) + ":" + msg.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(token string) (*repo.Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, apperr.Invalid("after", "malformed cursor")
	}
	ts, id, ok := strings.Cut(string(raw), ":")
	if !ok || id == "" {
		return nil, apperr.Invalid("after", "malformed cursor")
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, apperr.Invalid("after", "malformed cursor")
	}
	return &repo.Cursor{Timestamp: time.Unix(0, nanos).UTC(), ID: id}, nil
}
