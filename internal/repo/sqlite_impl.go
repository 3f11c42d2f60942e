package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"silink/internal/access"
	"silink/internal/apperr"

	"github.com/shopspring/decimal"
)

// -- Users --

func (r *SQLiteRepository) UpsertUser(ctx context.Context, profile UserProfile) (*User, error) {
	var role *string
	if profile.Role != nil {
		s := string(*profile.Role)
		role = &s
	}
	ts := now()
	q := `
INSERT INTO users (id, email, first_name, last_name, profile_image_url, role, is_active, created_at, updated_at)
VALUES (?1, ?2, ?3, ?4, ?5, COALESCE(?6, 'student'), 1, ?7, ?7)
ON CONFLICT (id) DO UPDATE SET
    email = COALESCE(excluded.email, users.email),
    first_name = COALESCE(excluded.first_name, users.first_name),
    last_name = COALESCE(excluded.last_name, users.last_name),
    profile_image_url = COALESCE(excluded.profile_image_url, users.profile_image_url),
    role = COALESCE(?6, users.role),
    updated_at = ?7
RETURNING ` + userColumns + `;`
	u, err := scanUser(r.db.QueryRowContext(ctx, q, profile.ID, profile.Email, profile.FirstName, profile.LastName, profile.ProfileImageURL, role, ts))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, fmt.Errorf("upsert user: email already registered: %w", apperr.ErrConflict)
		}
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (*User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = ? LIMIT 1;`
	u, err := scanUser(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", sqliteNotFound(err))
	}
	return u, nil
}

func (r *SQLiteRepository) ListUsersByRole(ctx context.Context, role access.Role) ([]User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE (?1 = '' OR role = ?1) ORDER BY created_at DESC;`
	rows, err := r.db.QueryContext(ctx, q, string(role))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (r *SQLiteRepository) UpdateUserStatus(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_active = ?, updated_at = ? WHERE id = ?`, active, now(), id)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// -- Shops --

func (r *SQLiteRepository) ListShops(ctx context.Context, category string) ([]Shop, error) {
	q := `SELECT ` + shopColumns + ` FROM shops
WHERE is_active = 1 AND (?1 = '' OR category = ?1)
ORDER BY created_at DESC;`
	return r.queryShops(ctx, q, normaliseCategory(category))
}

func (r *SQLiteRepository) ListShopsByOwner(ctx context.Context, ownerID string) ([]Shop, error) {
	q := `SELECT ` + shopColumns + ` FROM shops WHERE owner_id = ? ORDER BY created_at DESC;`
	return r.queryShops(ctx, q, ownerID)
}

func (r *SQLiteRepository) GetShop(ctx context.Context, id string) (*Shop, error) {
	q := `SELECT ` + shopColumns + ` FROM shops WHERE id = ? LIMIT 1;`
	s, err := scanSQLiteShop(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get shop: %w", sqliteNotFound(err))
	}
	return s, nil
}

func (r *SQLiteRepository) InsertShop(ctx context.Context, shop Shop) (*Shop, error) {
	q := `
INSERT INTO shops (id, owner_id, title, description, category, rating, is_active, created_at)
VALUES (?, ?, ?, ?, ?, 0, ?, ?)
RETURNING ` + shopColumns + `;`
	s, err := scanSQLiteShop(r.db.QueryRowContext(ctx, q, newID(), shop.OwnerID, shop.Title, shop.Description, shop.Category, shop.IsActive, now()))
	if err != nil {
		return nil, fmt.Errorf("insert shop: %w", err)
	}
	return s, nil
}

func (r *SQLiteRepository) UpdateShop(ctx context.Context, id string, patch ShopPatch) (*Shop, error) {
	q := `
UPDATE shops SET
    title = COALESCE(?2, title),
    description = COALESCE(?3, description),
    category = COALESCE(?4, category),
    is_active = COALESCE(?5, is_active)
WHERE id = ?1
RETURNING ` + shopColumns + `;`
	s, err := scanSQLiteShop(r.db.QueryRowContext(ctx, q, id, patch.Title, patch.Description, patch.Category, patch.IsActive))
	if err != nil {
		return nil, fmt.Errorf("update shop: %w", sqliteNotFound(err))
	}
	return s, nil
}

func (r *SQLiteRepository) DeleteShop(ctx context.Context, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE ratings SET shop_id = NULL WHERE shop_id = ?`, id); err != nil {
			return fmt.Errorf("detach shop ratings: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM shops WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete shop: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("shop %s: %w", id, apperr.ErrNotFound)
		}
		return nil
	})
}

func (r *SQLiteRepository) queryShops(ctx context.Context, q string, args ...any) ([]Shop, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	defer rows.Close()

	shops := []Shop{}
	for rows.Next() {
		s, err := scanSQLiteShop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shop: %w", err)
		}
		shops = append(shops, *s)
	}
	return shops, rows.Err()
}

// -- Jobs --

func (r *SQLiteRepository) ListJobs(ctx context.Context, category string) ([]Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs
WHERE status = 'open' AND (?1 = '' OR category = ?1)
ORDER BY created_at DESC;`
	return r.queryJobs(ctx, q, normaliseCategory(category))
}

func (r *SQLiteRepository) ListJobsByPoster(ctx context.Context, posterID string) ([]Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE poster_id = ? ORDER BY created_at DESC;`
	return r.queryJobs(ctx, q, posterID)
}

func (r *SQLiteRepository) GetJob(ctx context.Context, id string) (*Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ? LIMIT 1;`
	j, err := scanSQLiteJob(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, fmt.Errorf("get job: %w", sqliteNotFound(err))
	}
	return j, nil
}

func (r *SQLiteRepository) InsertJob(ctx context.Context, job Job) (*Job, error) {
	if job.Status == "" {
		job.Status = JobOpen
	}
	q := `
INSERT INTO jobs (id, poster_id, title, description, category, budget, deadline, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + jobColumns + `;`
	j, err := scanSQLiteJob(r.db.QueryRowContext(ctx, q, newID(), job.PosterID, job.Title, job.Description, job.Category,
		nullableMinor(job.Budget), utcPtr(job.Deadline), string(job.Status), now()))
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return j, nil
}

func (r *SQLiteRepository) UpdateJob(ctx context.Context, id string, patch JobPatch) (*Job, error) {
	var status *string
	if patch.Status != nil {
		s := string(*patch.Status)
		status = &s
	}
	q := `
UPDATE jobs SET
    title = COALESCE(?2, title),
    description = COALESCE(?3, description),
    category = COALESCE(?4, category),
    budget = COALESCE(?5, budget),
    deadline = COALESCE(?6, deadline),
    status = COALESCE(?7, status)
WHERE id = ?1
RETURNING ` + jobColumns + `;`
	j, err := scanSQLiteJob(r.db.QueryRowContext(ctx, q, id, patch.Title, patch.Description, patch.Category,
		nullableMinor(patch.Budget), utcPtr(patch.Deadline), status))
	if err != nil {
		return nil, fmt.Errorf("update job: %w", sqliteNotFound(err))
	}
	return j, nil
}

func (r *SQLiteRepository) DeleteJob(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) queryJobs(ctx context.Context, q string, args ...any) ([]Job, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []Job{}
	for rows.Next() {
		j, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// -- Chat --

func (r *SQLiteRepository) InsertChatMessage(ctx context.Context, msg ChatMessage) (*ChatMessage, error) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now()
	}
	q := `
INSERT INTO chat_messages (id, sender_id, receiver_id, message, image_url, sent_at, is_read)
VALUES (?, ?, ?, ?, ?, ?, 0)
RETURNING ` + chatColumns + `;`
	m, err := scanChatMessage(r.db.QueryRowContext(ctx, q, newID(), msg.SenderID, msg.ReceiverID, msg.Message, msg.ImageURL, msg.Timestamp.UTC()))
	if err != nil {
		return nil, fmt.Errorf("insert chat message: %w", err)
	}
	return m, nil
}

func (r *SQLiteRepository) ListConversation(ctx context.Context, userID, counterpartID string, page Page) ([]ChatMessage, error) {
	q := `SELECT ` + chatColumns + ` FROM chat_messages
WHERE ((sender_id = ?1 AND receiver_id = ?2) OR (sender_id = ?2 AND receiver_id = ?1))`
	args := []any{userID, counterpartID}
	if page.After != nil {
		q += ` AND (sent_at, id) > (?3, ?4)`
		args = append(args, page.After.Timestamp.UTC(), page.After.ID)
	}
	q += ` ORDER BY sent_at ASC, id ASC`
	if page.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, page.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
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
	return msgs, rows.Err()
}

func (r *SQLiteRepository) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	const q = `
WITH mine AS (
    SELECT m.*,
           CASE WHEN m.sender_id = ?1 THEN m.receiver_id ELSE m.sender_id END AS counterpart_id
    FROM chat_messages m
    WHERE m.sender_id = ?1 OR m.receiver_id = ?1
), ranked AS (
    SELECT mine.*,
           ROW_NUMBER() OVER (PARTITION BY counterpart_id ORDER BY sent_at DESC, id DESC) AS rn
    FROM mine
)
SELECT l.id, l.sender_id, l.receiver_id, l.message, l.image_url, l.sent_at, l.is_read,
       (SELECT COUNT(*) FROM chat_messages u
        WHERE u.sender_id = l.counterpart_id AND u.receiver_id = ?1 AND u.is_read = 0) AS unread,
       u.id, u.email, u.first_name, u.last_name, u.profile_image_url, u.role, u.is_active, u.created_at, u.updated_at
FROM ranked l
JOIN users u ON u.id = l.counterpart_id
WHERE l.rn = 1
ORDER BY l.sent_at DESC, l.id DESC;`
	rows, err := r.db.QueryContext(ctx, q, userID)
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
	return convos, rows.Err()
}

func (r *SQLiteRepository) MarkConversationRead(ctx context.Context, readerID, counterpartID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE chat_messages SET is_read = 1
WHERE receiver_id = ? AND sender_id = ? AND is_read = 0`, readerID, counterpartID)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// -- Payments --

func (r *SQLiteRepository) InsertPayment(ctx context.Context, p Payment) (*Payment, error) {
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	ts := now()
	q := `
INSERT INTO payments (id, payer_id, receiver_id, amount, currency, status, transaction_ref, description, created_at, updated_at)
VALUES (?1, ?2, ?3, ?4, ?5, 'pending', ?6, ?7, ?8, ?8)
RETURNING ` + paymentColumns + `;`
	out, err := scanSQLitePayment(r.db.QueryRowContext(ctx, q, newID(), p.PayerID, p.ReceiverID, toMinor(p.Amount), p.Currency, p.TransactionRef, p.Description, ts))
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return nil, fmt.Errorf("insert payment %s: %w", p.TransactionRef, apperr.ErrConflict)
		}
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetPaymentByRef(ctx context.Context, ref string) (*Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_ref = ? LIMIT 1;`
	p, err := scanSQLitePayment(r.db.QueryRowContext(ctx, q, ref))
	if err != nil {
		return nil, fmt.Errorf("get payment by ref: %w", sqliteNotFound(err))
	}
	return p, nil
}

func (r *SQLiteRepository) ListPaymentsForUser(ctx context.Context, userID string) ([]Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments
WHERE payer_id = ?1 OR receiver_id = ?1
ORDER BY created_at DESC;`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []Payment{}
	for rows.Next() {
		p, err := scanSQLitePayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (r *SQLiteRepository) TransitionPayment(ctx context.Context, t Transition) (*Payment, bool, error) {
	if !t.Status.Terminal() {
		return nil, false, apperr.Invalid("status", fmt.Sprintf("%q is not a terminal status", t.Status))
	}

	var (
		payment *Payment
		applied bool
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		q := `
UPDATE payments
SET status = ?2, flutterwave_ref = COALESCE(?3, flutterwave_ref), updated_at = ?4
WHERE transaction_ref = ?1 AND status = 'pending'
RETURNING ` + paymentColumns + `;`
		p, err := scanSQLitePayment(tx.QueryRowContext(ctx, q, t.TransactionRef, string(t.Status), t.GatewayRef, now()))
		if errors.Is(err, sql.ErrNoRows) {
			current, getErr := scanSQLitePayment(tx.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_ref = ?`, t.TransactionRef))
			if getErr != nil {
				return fmt.Errorf("payment %s: %w", t.TransactionRef, sqliteNotFound(getErr))
			}
			payment = current
			return nil
		}
		if err != nil {
			return fmt.Errorf("transition payment: %w", err)
		}
		payment, applied = p, true

		if p.Status != PaymentCompleted {
			return nil
		}
		amount := toMinor(p.Amount)
		if p.IsWithdrawal() {
			res, err := tx.ExecContext(ctx, `
UPDATE virtual_accounts SET balance = balance - ?2
WHERE user_id = ?1 AND balance >= ?2`, p.PayerID, amount)
			if err != nil {
				return fmt.Errorf("debit account: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("debit %s from %s: %w", p.Amount.StringFixed(2), p.PayerID, apperr.ErrInsufficientFunds)
			}
			return nil
		}
		res, err := tx.ExecContext(ctx, `UPDATE virtual_accounts SET balance = balance + ? WHERE user_id = ?`, amount, *p.ReceiverID)
		if err != nil {
			return fmt.Errorf("credit account: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("credit account of %s: no virtual account: %w", *p.ReceiverID, apperr.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return payment, applied, nil
}

// -- Virtual accounts --

func (r *SQLiteRepository) GetVirtualAccount(ctx context.Context, userID string) (*VirtualAccount, error) {
	q := `SELECT ` + accountColumns + ` FROM virtual_accounts WHERE user_id = ? LIMIT 1;`
	a, err := scanSQLiteAccount(r.db.QueryRowContext(ctx, q, userID))
	if err != nil {
		return nil, fmt.Errorf("get virtual account: %w", sqliteNotFound(err))
	}
	return a, nil
}

func (r *SQLiteRepository) InsertVirtualAccountIfAbsent(ctx context.Context, acct VirtualAccount) (*VirtualAccount, error) {
	q := `
INSERT INTO virtual_accounts (id, user_id, account_number, bank_name, account_name, balance, is_active, created_at)
VALUES (?, ?, ?, ?, ?, 0, 1, ?)
ON CONFLICT (user_id) DO NOTHING
RETURNING ` + accountColumns + `;`
	a, err := scanSQLiteAccount(r.db.QueryRowContext(ctx, q, newID(), acct.UserID, acct.AccountNumber, acct.BankName, acct.AccountName, now()))
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, sql.ErrNoRows):
		r.logger.Debug("virtual account created concurrently", "user_id", acct.UserID)
		return r.GetVirtualAccount(ctx, acct.UserID)
	case isSQLiteUniqueViolation(err):
		return nil, fmt.Errorf("account number %s taken: %w", acct.AccountNumber, apperr.ErrConflict)
	default:
		return nil, fmt.Errorf("insert virtual account: %w", err)
	}
}

// -- Ratings --

func (r *SQLiteRepository) InsertRating(ctx context.Context, rating Rating) (*Rating, error) {
	q := `
INSERT INTO ratings (id, rater_id, rated_id, shop_id, rating, comment, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + ratingColumns + `;`
	var out Rating
	err := r.db.QueryRowContext(ctx, q, newID(), rating.RaterID, rating.RatedID, rating.ShopID, rating.Rating, rating.Comment, now()).
		Scan(&out.ID, &out.RaterID, &out.RatedID, &out.ShopID, &out.Rating, &out.Comment, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert rating: %w", err)
	}
	return &out, nil
}

func (r *SQLiteRepository) ListRatings(ctx context.Context, ratedID string) ([]Rating, error) {
	q := `SELECT ` + ratingColumns + ` FROM ratings WHERE rated_id = ? ORDER BY created_at DESC;`
	rows, err := r.db.QueryContext(ctx, q, ratedID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	ratings := []Rating{}
	for rows.Next() {
		var rt Rating
		if err := rows.Scan(&rt.ID, &rt.RaterID, &rt.RatedID, &rt.ShopID, &rt.Rating, &rt.Comment, &rt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		ratings = append(ratings, rt)
	}
	return ratings, rows.Err()
}

func (r *SQLiteRepository) RefreshShopRating(ctx context.Context, shopID string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE shops
SET rating = COALESCE((SELECT CAST(ROUND(AVG(rating) * 100) AS INTEGER) FROM ratings WHERE shop_id = ?1), 0)
WHERE id = ?1`, shopID)
	if err != nil {
		return fmt.Errorf("refresh shop rating: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("shop %s: %w", shopID, apperr.ErrNotFound)
	}
	return nil
}

// -- Analytics --

func (r *SQLiteRepository) Analytics(ctx context.Context) (*Analytics, error) {
	const q = `
SELECT 'role:' || role, COUNT(*) FROM users GROUP BY role
UNION ALL SELECT 'shops', COUNT(*) FROM shops
UNION ALL SELECT 'jobs', COUNT(*) FROM jobs
UNION ALL SELECT 'revenue', COALESCE(SUM(amount), 0) FROM payments WHERE status = 'completed';`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}
	defer rows.Close()

	out := newAnalytics()
	for rows.Next() {
		var key string
		var val int64
		if err := rows.Scan(&key, &val); err != nil {
			return nil, fmt.Errorf("scan analytics: %w", err)
		}
		if key == "revenue" {
			out.add(key, fromMinor(val))
			continue
		}
		out.add(key, decimal.NewFromInt(val))
	}
	return out, rows.Err()
}

// -- Scanning --

func scanSQLiteShop(row rowScanner) (*Shop, error) {
	var s Shop
	var rating int64
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Title, &s.Description, &s.Category, &rating, &s.IsActive, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.Rating = fromMinor(rating)
	return &s, nil
}

func scanSQLiteJob(row rowScanner) (*Job, error) {
	var j Job
	var budget sql.NullInt64
	if err := row.Scan(&j.ID, &j.PosterID, &j.Title, &j.Description, &j.Category, &budget, &j.Deadline, &j.Status, &j.CreatedAt); err != nil {
		return nil, err
	}
	if budget.Valid {
		b := fromMinor(budget.Int64)
		j.Budget = &b
	}
	return &j, nil
}

func scanSQLitePayment(row rowScanner) (*Payment, error) {
	var p Payment
	var amount int64
	if err := row.Scan(&p.ID, &p.PayerID, &p.ReceiverID, &amount, &p.Currency, &p.Status, &p.TransactionRef, &p.FlutterwaveRef, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.Amount = fromMinor(amount)
	return &p, nil
}

func scanSQLiteAccount(row rowScanner) (*VirtualAccount, error) {
	var a VirtualAccount
	var balance int64
	if err := row.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.BankName, &a.AccountName, &balance, &a.IsActive, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Balance = fromMinor(balance)
	return &a, nil
}

func nullableMinor(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return toMinor(*d)
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
