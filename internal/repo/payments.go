package repo

import (
	"context"
	"errors"
	"fmt"

	"silink/internal/access"
	"silink/internal/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	paymentColumns = `id, payer_id, receiver_id, amount, currency, status, transaction_ref, flutterwave_ref, description, created_at, updated_at`
	accountColumns = `id, user_id, account_number, bank_name, account_name, balance, is_active, created_at`
)

// InsertPayment stores a new pending payment. A reused transaction_ref is a conflict.
func (r *PostgresRepository) InsertPayment(ctx context.Context, p Payment) (*Payment, error) {
	if p.Currency == "" {
		p.Currency = DefaultCurrency
	}
	ts := now()
	q := `
INSERT INTO payments (id, payer_id, receiver_id, amount, currency, status, transaction_ref, description, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $8, $8)
RETURNING ` + paymentColumns + `;`
	out, err := scanPayment(r.pool.QueryRow(ctx, q, newID(), p.PayerID, p.ReceiverID, p.Amount, p.Currency, p.TransactionRef, p.Description, ts))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert payment %s: %w", p.TransactionRef, apperr.ErrConflict)
		}
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return out, nil
}

// GetPaymentByRef retrieves a payment by transaction reference.
func (r *PostgresRepository) GetPaymentByRef(ctx context.Context, ref string) (*Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_ref = $1 LIMIT 1;`
	p, err := scanPayment(r.pool.QueryRow(ctx, q, ref))
	if err != nil {
		return nil, fmt.Errorf("get payment by ref: %w", notFound(err))
	}
	return p, nil
}

// ListPaymentsForUser returns payments where userID pays or receives, newest first.
func (r *PostgresRepository) ListPaymentsForUser(ctx context.Context, userID string) ([]Payment, error) {
	q := `SELECT ` + paymentColumns + ` FROM payments
WHERE payer_id = $1 OR receiver_id = $1
ORDER BY created_at DESC;`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := []Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

// TransitionPayment moves a pending payment to t.Status. The status change and, for
// completions, the balance mutation commit together. The boolean reports whether this
// call performed the transition; false means the payment was already terminal.
func (r *PostgresRepository) TransitionPayment(ctx context.Context, t Transition) (*Payment, bool, error) {
	if !t.Status.Terminal() {
		return nil, false, apperr.Invalid("status", fmt.Sprintf("%q is not a terminal status", t.Status))
	}

	var (
		payment *Payment
		applied bool
	)
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		q := `
UPDATE payments
SET status = $2, flutterwave_ref = COALESCE($3, flutterwave_ref), updated_at = $4
WHERE transaction_ref = $1 AND status = 'pending'
RETURNING ` + paymentColumns + `;`
		p, err := scanPayment(tx.QueryRow(ctx, q, t.TransactionRef, string(t.Status), t.GatewayRef, now()))
		if errors.Is(err, pgx.ErrNoRows) {
			current, getErr := scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_ref = $1`, t.TransactionRef))
			if getErr != nil {
				return fmt.Errorf("payment %s: %w", t.TransactionRef, notFound(getErr))
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
		if p.IsWithdrawal() {
			ct, err := tx.Exec(ctx, `
UPDATE virtual_accounts SET balance = balance - $2
WHERE user_id = $1 AND balance >= $2`, p.PayerID, p.Amount)
			if err != nil {
				return fmt.Errorf("debit account: %w", err)
			}
			if ct.RowsAffected() == 0 {
				return fmt.Errorf("debit %s from %s: %w", p.Amount.StringFixed(2), p.PayerID, apperr.ErrInsufficientFunds)
			}
			return nil
		}
		ct, err := tx.Exec(ctx, `UPDATE virtual_accounts SET balance = balance + $2 WHERE user_id = $1`, *p.ReceiverID, p.Amount)
		if err != nil {
			return fmt.Errorf("credit account: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("credit account of %s: no virtual account: %w", *p.ReceiverID, apperr.ErrConflict)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return payment, applied, nil
}

// GetVirtualAccount returns the account owned by userID.
func (r *PostgresRepository) GetVirtualAccount(ctx context.Context, userID string) (*VirtualAccount, error) {
	q := `SELECT ` + accountColumns + ` FROM virtual_accounts WHERE user_id = $1 LIMIT 1;`
	a, err := scanAccount(r.pool.QueryRow(ctx, q, userID))
	if err != nil {
		return nil, fmt.Errorf("get virtual account: %w", notFound(err))
	}
	return a, nil
}

// InsertVirtualAccountIfAbsent inserts acct unless the user already owns one, and returns
// whichever row exists afterwards.
func (r *PostgresRepository) InsertVirtualAccountIfAbsent(ctx context.Context, acct VirtualAccount) (*VirtualAccount, error) {
	q := `
INSERT INTO virtual_accounts (id, user_id, account_number, bank_name, account_name, balance, is_active, created_at)
VALUES ($1, $2, $3, $4, $5, 0, TRUE, $6)
ON CONFLICT (user_id) DO NOTHING
RETURNING ` + accountColumns + `;`
	a, err := scanAccount(r.pool.QueryRow(ctx, q, newID(), acct.UserID, acct.AccountNumber, acct.BankName, acct.AccountName, now()))
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, pgx.ErrNoRows):
		r.logger.Debug("virtual account created concurrently", "user_id", acct.UserID)
		return r.GetVirtualAccount(ctx, acct.UserID)
	case isUniqueViolation(err):
		return nil, fmt.Errorf("account number %s taken: %w", acct.AccountNumber, apperr.ErrConflict)
	default:
		return nil, fmt.Errorf("insert virtual account: %w", err)
	}
}

// Analytics aggregates platform counters in a single round trip.
func (r *PostgresRepository) Analytics(ctx context.Context) (*Analytics, error) {
	const q = `
SELECT 'role:' || role, COUNT(*)::numeric FROM users GROUP BY role
UNION ALL SELECT 'shops', COUNT(*)::numeric FROM shops
UNION ALL SELECT 'jobs', COUNT(*)::numeric FROM jobs
UNION ALL SELECT 'revenue', COALESCE(SUM(amount), 0) FROM payments WHERE status = 'completed';`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}
	defer rows.Close()

	out := newAnalytics()
	for rows.Next() {
		var key string
		var val decimal.Decimal
		if err := rows.Scan(&key, &val); err != nil {
			return nil, fmt.Errorf("scan analytics: %w", err)
		}
		out.add(key, val)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analytics: %w", err)
	}
	return out, nil
}

func newAnalytics() *Analytics {
	a := &Analytics{UsersByRole: map[access.Role]int64{}, TotalRevenue: decimal.Zero}
	for _, role := range access.Roles {
		a.UsersByRole[role] = 0
	}
	return a
}

func (a *Analytics) add(key string, val decimal.Decimal) {
	switch key {
	case "shops":
		a.TotalShops = val.IntPart()
	case "jobs":
		a.TotalJobs = val.IntPart()
	case "revenue":
		a.TotalRevenue = val
	default:
		if len(key) > len("role:") {
			role := access.Role(key[len("role:"):])
			a.UsersByRole[role] = val.IntPart()
			a.TotalUsers += val.IntPart()
		}
	}
}

func scanPayment(row rowScanner) (*Payment, error) {
	var p Payment
	if err := row.Scan(&p.ID, &p.PayerID, &p.ReceiverID, &p.Amount, &p.Currency, &p.Status, &p.TransactionRef, &p.FlutterwaveRef, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanAccount(row rowScanner) (*VirtualAccount, error) {
	var a VirtualAccount
	if err := row.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.BankName, &a.AccountName, &a.Balance, &a.IsActive, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
