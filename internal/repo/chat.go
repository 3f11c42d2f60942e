package repo

import (
	"context"
	"fmt"
)

const chatColumns = `id, sender_id, receiver_id, message, image_url, sent_at, is_read`

// InsertChatMessage stores a message as unread.
func (r *PostgresRepository) InsertChatMessage(ctx context.Context, msg ChatMessage) (*ChatMessage, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now()
	}
	q := `
INSERT INTO chat_messages (id, sender_id, receiver_id, message, image_url, sent_at, is_read)
VALUES ($1, $2, $3, $4, $5, $6, FALSE)
RETURNING ` + chatColumns + `;`
	m, err := scanChatMessage(r.pool.QueryRow(ctx, q, newID(), msg.SenderID, msg.ReceiverID, msg.Message, msg.ImageURL, msg.Timestamp))
	if err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}
	return m, nil
}

// ListConversation returns the messages exchanged by the two users in ascending order.
func (r *PostgresRepository) ListConversation(ctx context.Context, userID, counterpartID string, page Page) ([]ChatMessage, error) {
	q := `SELECT ` + chatColumns + ` FROM chat_messages
WHERE ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1))`
	args := []any{userID, counterpartID}
	if page.After != nil {
		q += ` AND (sent_at, id) > ($3, $4)`
		args = append(args, page.After.Timestamp, page.After.ID)
	}
	q += ` ORDER BY sent_at ASC, id ASC`
	if page.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, page.Limit)
	}

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	defer rows.Close()

	msgs := []ChatMessage{}
	for rows.Next() {
		m, err := scanChatMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation: %w", err)
	}
	return msgs, nil
}

// ListConversations returns one entry per counterpart with the latest message and the
// number of unread messages the counterpart sent to userID, newest conversation first.
func (r *PostgresRepository) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	const q = `
WITH mine AS (
    SELECT m.*,
           CASE WHEN m.sender_id = $1 THEN m.receiver_id ELSE m.sender_id END AS counterpart_id
    FROM chat_messages m
    WHERE m.sender_id = $1 OR m.receiver_id = $1
), ranked AS (
    SELECT mine.*,
           ROW_NUMBER() OVER (PARTITION BY counterpart_id ORDER BY sent_at DESC, id DESC) AS rn
    FROM mine
)
SELECT l.id, l.sender_id, l.receiver_id, l.message, l.image_url, l.sent_at, l.is_read,
       (SELECT COUNT(*) FROM chat_messages u
        WHERE u.sender_id = l.counterpart_id AND u.receiver_id = $1 AND NOT u.is_read) AS unread,
       u.id, u.email, u.first_name, u.last_name, u.profile_image_url, u.role, u.is_active, u.created_at, u.updated_at
FROM ranked l
JOIN users u ON u.id = l.counterpart_id
WHERE l.rn = 1
ORDER BY l.sent_at DESC, l.id DESC;
`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	convos := []Conversation{}
	for rows.Next() {
		var c Conversation
		var u User
		var unread int64
		m := &c.LastMessage
		if err := rows.Scan(
			&m.ID, &m.SenderID, &m.ReceiverID, &m.Message, &m.ImageURL, &m.Timestamp, &m.IsRead,
			&unread,
			&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.ProfileImageURL, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.UserID = u.ID
		c.User = &u
		c.UnreadCount = int(unread)
		convos = append(convos, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return convos, nil
}

// MarkConversationRead flags every message counterpartID sent to readerID as read.
func (r *PostgresRepository) MarkConversationRead(ctx context.Context, readerID, counterpartID string) (int64, error) {
	const q = `
UPDATE chat_messages SET is_read = TRUE
WHERE receiver_id = $1 AND sender_id = $2 AND NOT is_read;`
	ct, err := r.pool.Exec(ctx, q, readerID, counterpartID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return ct.RowsAffected(), nil
}

func scanChatMessage(row rowScanner) (*ChatMessage, error) {
	var m ChatMessage
	if err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Message, &m.ImageURL, &m.Timestamp, &m.IsRead); err != nil {
		return nil, err
	}
	return &m, nil
}
