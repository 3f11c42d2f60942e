package ledger

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"silink/internal/access"
	"silink/internal/apperr"
	"silink/internal/repo"

	"github.com/segmentio/ksuid"
	"github.com/shopspring/decimal"
)

const transactionRefPrefix = "silink_"

var (
	bankCodePattern       = regexp.MustCompile(`^\d{3}$`)
	accountNumberPattern  = regexp.MustCompile(`^\d{10}$`)
	transactionRefPattern = regexp.MustCompile(`^[A-Za-z0-9_\-.]{1,100}$`)
)

// Outcome is the result reported by the payment gateway.
type Outcome string

const (
	OutcomeSuccessful Outcome = "successful"
	OutcomeFailed     Outcome = "failed"
)

// ParseOutcome maps a gateway status string onto an Outcome. ok is false for statuses
// that are not final, such as "pending".
func ParseOutcome(status string) (Outcome, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "successful", "success", "completed":
		return OutcomeSuccessful, true
	case "failed", "failure", "error", "cancelled":
		return OutcomeFailed, true
	default:
		return "", false
	}
}

// Confirmation is a gateway callback about one payment.
type Confirmation struct {
	TransactionRef string
	GatewayRef     string
	Outcome        Outcome
}

// Result describes what ConfirmPayment did.
type Result struct {
	// Found is false when no payment carries the reference.
	Found   bool
	// Applied is true when this call moved the payment out of pending.
	Applied bool
	Payment *repo.Payment
}

// RecordPaymentInput is a payment intent created by PayerID.
type RecordPaymentInput struct {
	PayerID        string
	ReceiverID     *string
	Amount         decimal.Decimal
	Currency       string
	TransactionRef string
	Description    *string
}

// RecordPayment stores a pending payment. No balance changes until the gateway confirms it.
// Without a receiver the payment funds the payer's own account.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (*repo.Payment, error) {
	if in.PayerID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if err := s.validateAmount(in.Amount, s.cfg.FundingMinimum); err != nil {
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.cfg.Currency
	}
	if currency != s.cfg.Currency {
		return nil, apperr.Invalid("currency", fmt.Sprintf("only %s is supported", s.cfg.Currency))
	}

	ref := strings.TrimSpace(in.TransactionRef)
	if ref == "" {
		ref = NewTransactionRef()
	} else if !transactionRefPattern.MatchString(ref) {
		return nil, apperr.Invalid("transactionRef", "must be 1-100 characters of letters, digits, '_', '-' or '.'")
	}

	receiverID := in.PayerID
	if in.ReceiverID != nil && strings.TrimSpace(*in.ReceiverID) != "" {
		receiverID = strings.TrimSpace(*in.ReceiverID)
		if _, err := s.store.GetUser(ctx, receiverID); err != nil {
			return nil, fmt.Errorf("lookup receiver %s: %w", receiverID, err)
		}
	}

	p, err := s.store.InsertPayment(ctx, repo.Payment{
		PayerID:        in.PayerID,
		ReceiverID:     &receiverID,
		Amount:         in.Amount,
		Currency:       currency,
		TransactionRef: ref,
		Description:    in.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("record payment: %w", err)
	}
	s.logger.Info("payment recorded", "transaction_ref", p.TransactionRef, "payer_id", p.PayerID, "receiver_id", receiverID, "amount", p.Amount.StringFixed(2))
	return p, nil
}

// ConfirmPayment applies a gateway confirmation. It is the only path from pending to
// completed or failed and is idempotent per transaction reference.
func (s *Service) ConfirmPayment(ctx context.Context, c Confirmation) (Result, error) {
	ref := strings.TrimSpace(c.TransactionRef)
	if ref == "" {
		return Result{}, apperr.Invalid("tx_ref", "is required")
	}
	target := repo.PaymentFailed
	switch c.Outcome {
	case OutcomeSuccessful:
		target = repo.PaymentCompleted
	case OutcomeFailed:
	default:
		return Result{}, apperr.Invalid("status", fmt.Sprintf("unsupported outcome %q", c.Outcome))
	}

	current, err := s.store.GetPaymentByRef(ctx, ref)
	if errors.Is(err, apperr.ErrNotFound) {
		s.unknownRef(ref, c)
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("lookup payment: %w", err)
	}
	if current.Status.Terminal() {
		s.logger.Info("confirmation for settled payment ignored", "transaction_ref", ref, "status", current.Status)
		return Result{Found: true, Payment: current}, nil
	}

	if target == repo.PaymentCompleted && !current.IsWithdrawal() {
		if _, err := s.GetOrCreateVirtualAccount(ctx, *current.ReceiverID); err != nil {
			return Result{}, fmt.Errorf("prepare receiver account: %w", err)
		}
	}

	var gatewayRef *string
	if g := strings.TrimSpace(c.GatewayRef); g != "" {
		gatewayRef = &g
	}

	updated, applied, err := s.store.TransitionPayment(ctx, repo.Transition{TransactionRef: ref, GatewayRef: gatewayRef, Status: target})
	if errors.Is(err, apperr.ErrInsufficientFunds) {
		s.logger.Warn("withdrawal exceeds balance at settlement, marking failed", "transaction_ref", ref)
		s.metrics.Errors.WithLabelValues("payment_overdraw").Inc()
		updated, applied, err = s.store.TransitionPayment(ctx, repo.Transition{TransactionRef: ref, GatewayRef: gatewayRef, Status: repo.PaymentFailed})
	}
	if errors.Is(err, apperr.ErrNotFound) {
		s.unknownRef(ref, c)
		return Result{}, nil
	}
	if err != nil {
		s.metrics.Errors.WithLabelValues("payment_transition").Inc()
		return Result{}, fmt.Errorf("transition payment %s: %w", ref, err)
	}

	if applied {
		s.metrics.PaymentTransitions.WithLabelValues(paymentKind(updated), string(updated.Status)).Inc()
		s.logger.Info("payment settled", "transaction_ref", ref, "status", updated.Status, "amount", updated.Amount.StringFixed(2))
	}
	return Result{Found: true, Applied: applied, Payment: updated}, nil
}

func (s *Service) unknownRef(ref string, c Confirmation) {
	s.logger.Error("confirmation for unknown transaction ref", "transaction_ref", ref, "gateway_ref", c.GatewayRef, "outcome", c.Outcome)
	s.metrics.Errors.WithLabelValues("payment_unknown_ref").Inc()
}

// CancelPayment lets the payer abandon a payment that is still pending.
func (s *Service) CancelPayment(ctx context.Context, caller access.Principal, ref string) (*repo.Payment, error) {
	p, err := s.PaymentStatus(ctx, caller, ref)
	if err != nil {
		return nil, err
	}
	if p.PayerID != caller.UserID {
		return nil, fmt.Errorf("cancel payment: %w", apperr.ErrForbidden)
	}
	if p.Status != repo.PaymentPending {
		return nil, fmt.Errorf("payment is %s: %w", p.Status, apperr.ErrConflict)
	}
	updated, applied, err := s.store.TransitionPayment(ctx, repo.Transition{TransactionRef: p.TransactionRef, Status: repo.PaymentCancelled})
	if err != nil {
		return nil, fmt.Errorf("cancel payment: %w", err)
	}
	if !applied {
		return nil, fmt.Errorf("payment is %s: %w", updated.Status, apperr.ErrConflict)
	}
	s.metrics.PaymentTransitions.WithLabelValues(paymentKind(updated), string(updated.Status)).Inc()
	return updated, nil
}

// Payments lists the caller's payments, newest first.
func (s *Service) Payments(ctx context.Context, caller access.Principal) ([]repo.Payment, error) {
	if caller.UserID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	payments, err := s.store.ListPaymentsForUser(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// PaymentStatus returns a payment visible to the caller: payer, receiver or admin.
func (s *Service) PaymentStatus(ctx context.Context, caller access.Principal, ref string) (*repo.Payment, error) {
	if caller.UserID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	p, err := s.store.GetPaymentByRef(ctx, ref)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) && !caller.Role.IsAdmin() {
			// Same answer for missing and foreign payments.
			return nil, fmt.Errorf("payment %s: %w", ref, apperr.ErrForbidden)
		}
		return nil, fmt.Errorf("payment %s: %w", ref, err)
	}
	if caller.Role.IsAdmin() || p.PayerID == caller.UserID || (p.ReceiverID != nil && *p.ReceiverID == caller.UserID) {
		return p, nil
	}
	return nil, fmt.Errorf("payment %s: %w", ref, apperr.ErrForbidden)
}

// NewTransactionRef returns a time-sortable server reference.
func NewTransactionRef() string {
	return transactionRefPrefix + ksuid.New().String()
}

func (s *Service) validateAmount(amount, minimum decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Invalid("amount", "must be greater than zero")
	}
	if !amount.Equal(amount.Round(2)) {
		return apperr.Invalid("amount", "must have at most two decimal places")
	}
	if amount.LessThan(minimum) {
		return apperr.Invalid("amount", fmt.Sprintf("must be at least %s", minimum.StringFixed(2)))
	}
	return nil
}

func paymentKind(p *repo.Payment) string {
	if p.IsWithdrawal() {
		return "withdrawal"
	}
	return "funding"
}
