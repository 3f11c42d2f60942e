package ledger

import (
	"context"
	"fmt"
	"strings"

	"silink/internal/apperr"
	"silink/internal/repo"

	"github.com/shopspring/decimal"
)

// Transfer is a payout to an external bank account.
type Transfer struct {
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	BankCode      string
	AccountNumber string
	Narration     string
}

// TransferReceipt is the gateway's acknowledgement of a payout request.
type TransferReceipt struct {
	ID     string
	Status string
}

// Payouts initiates bank transfers.
type Payouts interface {
	InitiateTransfer(ctx context.Context, t Transfer) (*TransferReceipt, error)
}

// WithdrawInput is a withdrawal request from UserID's virtual account.
type WithdrawInput struct {
	UserID        string
	Amount        decimal.Decimal
	BankCode      string
	AccountNumber string
	Narration     string
}

// Withdraw validates the request against the current balance, records a pending payment
// without receiver and initiates the payout. The balance is debited only when the gateway
// confirms the transfer.
func (s *Service) Withdraw(ctx context.Context, in WithdrawInput) (*repo.Payment, error) {
	if in.UserID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	bankCode := strings.TrimSpace(in.BankCode)
	if !bankCodePattern.MatchString(bankCode) {
		return nil, apperr.Invalid("bankCode", "must be 3 digits")
	}
	accountNumber := strings.TrimSpace(in.AccountNumber)
	if !accountNumberPattern.MatchString(accountNumber) {
		return nil, apperr.Invalid("accountNumber", "must be 10 digits")
	}
	if err := s.validateAmount(in.Amount, s.cfg.WithdrawMinimum); err != nil {
		return nil, err
	}

	acct, err := s.GetOrCreateVirtualAccount(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	if in.Amount.GreaterThan(acct.Balance) {
		return nil, fmt.Errorf("withdraw %s with balance %s: %w", in.Amount.StringFixed(2), acct.Balance.StringFixed(2), apperr.ErrInsufficientFunds)
	}

	narration := strings.TrimSpace(in.Narration)
	if narration == "" {
		narration = "SILINK withdrawal"
	}
	description := fmt.Sprintf("withdrawal to %s/%s", bankCode, accountNumber)
	ref := NewTransactionRef()
	p, err := s.store.InsertPayment(ctx, repo.Payment{
		PayerID:        in.UserID,
		Amount:         in.Amount,
		Currency:       s.cfg.Currency,
		TransactionRef: ref,
		Description:    &description,
	})
	if err != nil {
		return nil, fmt.Errorf("record withdrawal: %w", err)
	}

	if s.payouts == nil {
		s.logger.Warn("no payout provider configured, withdrawal awaits manual settlement", "transaction_ref", ref)
		return p, nil
	}

	receipt, err := s.payouts.InitiateTransfer(ctx, Transfer{
		Reference:     ref,
		Amount:        in.Amount,
		Currency:      s.cfg.Currency,
		BankCode:      bankCode,
		AccountNumber: accountNumber,
		Narration:     narration,
	})
	if err != nil {
		s.metrics.Errors.WithLabelValues("payout_initiate").Inc()
		if _, _, terr := s.store.TransitionPayment(ctx, repo.Transition{TransactionRef: ref, Status: repo.PaymentFailed}); terr != nil {
			s.logger.Error("failed marking withdrawal failed", "error", terr, "transaction_ref", ref)
		}
		return nil, apperr.External("flutterwave", fmt.Errorf("initiate transfer %s: %w", ref, err))
	}

	s.logger.Info("payout initiated", "transaction_ref", ref, "transfer_id", receipt.ID, "transfer_status", receipt.Status)
	return p, nil
}
