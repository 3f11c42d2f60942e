package ledger

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"silink/internal/apperr"
	"silink/internal/repo"
)

const accountNumberAttempts = 5

var (
	accountNumberFloor = big.NewInt(1_000_000_000)
	accountNumberSpan  = big.NewInt(9_000_000_000)
)

// GetOrCreateVirtualAccount returns the user's account, creating it on first access.
// Concurrent first calls converge on a single row through the unique user_id constraint.
func (s *Service) GetOrCreateVirtualAccount(ctx context.Context, userID string) (*repo.VirtualAccount, error) {
	if userID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	acct, err := s.store.GetVirtualAccount(ctx, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, fmt.Errorf("get virtual account: %w", err)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup account owner: %w", err)
	}

	for attempt := 1; ; attempt++ {
		number, err := s.newAccountNumber()
		if err != nil {
			return nil, err
		}
		acct, err = s.store.InsertVirtualAccountIfAbsent(ctx, repo.VirtualAccount{
			UserID:        userID,
			AccountNumber: number,
			BankName:      s.cfg.BankName,
			AccountName:   accountName(user),
		})
		if err == nil {
			break
		}
		// A conflict here is an account number already held by another user.
		if !errors.Is(err, apperr.ErrConflict) || attempt == accountNumberAttempts {
			return nil, fmt.Errorf("create virtual account: %w", err)
		}
		s.logger.Warn("account number collision, drawing again", "user_id", userID, "attempt", attempt)
	}
	s.logger.Info("virtual account ready", "user_id", userID, "account_number", acct.AccountNumber)
	return acct, nil
}

func generateAccountNumber() (string, error) {
	n, err := rand.Int(rand.Reader, accountNumberSpan)
	if err != nil {
		return "", fmt.Errorf("generate account number: %w", err)
	}
	return n.Add(n, accountNumberFloor).String(), nil
}

func accountName(u *repo.User) string {
	var parts []string
	for _, p := range []*string{u.FirstName, u.LastName} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.ToUpper(strings.TrimSpace(*p)))
		}
	}
	if len(parts) == 0 {
		return accountNamePrefix + strings.ToUpper(u.ID)
	}
	return accountNamePrefix + strings.Join(parts, " ")
}
