package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"silink/internal/access"
	"silink/internal/apperr"
	"silink/internal/logging"
	"silink/internal/metrics"
	"silink/internal/repo"
	"silink/migrations"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakePayouts struct {
	mu        sync.Mutex
	transfers []Transfer
	err       error
}

func (f *fakePayouts) InitiateTransfer(_ context.Context, t Transfer) (*TransferReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, t)
	if f.err != nil {
		return nil, f.err
	}
	return &TransferReceipt{ID: "trf_1", Status: "NEW"}, nil
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string]*repo.Analytics
	sets  int
}

func (c *memoryCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		return false, nil
	}
	*dest.(*repo.Analytics) = *v
	return true, nil
}

func (c *memoryCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = map[string]*repo.Analytics{}
	}
	c.items[key] = value.(*repo.Analytics)
	c.sets++
	return nil
}

type fixture struct {
	store   *repo.SQLiteRepository
	svc     *Service
	payouts *fakePayouts
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := repo.NewSQLite(ctx, filepath.Join(t.TempDir(), "ledger.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.RunMigrations(ctx, migrations.SQLiteFiles))

	payouts := &fakePayouts{}
	svc := New(store, payouts, nil, DefaultConfig(), metrics.Registry("silink_test"), logging.Discard())
	return &fixture{store: store, svc: svc, payouts: payouts}
}

func (f *fixture) user(t *testing.T, id string, role access.Role) access.Principal {
	t.Helper()
	first, last := "Ada", "Obi"
	_, err := f.store.UpsertUser(context.Background(), repo.UserProfile{ID: id, FirstName: &first, LastName: &last, Role: &role})
	require.NoError(t, err)
	return access.Principal{UserID: id, Role: role, Active: true}
}

func (f *fixture) fund(t *testing.T, userID, amount, ref string) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{PayerID: userID, Amount: decimal.RequireFromString(amount), TransactionRef: ref})
	require.NoError(t, err)
	res, err := f.svc.ConfirmPayment(ctx, Confirmation{TransactionRef: ref, GatewayRef: "FLW-" + ref, Outcome: OutcomeSuccessful})
	require.NoError(t, err)
	require.True(t, res.Applied)
}

func balance(t *testing.T, f *fixture, userID string) decimal.Decimal {
	t.Helper()
	acct, err := f.store.GetVirtualAccount(context.Background(), userID)
	require.NoError(t, err)
	return acct.Balance
}

func TestConfirmPaymentCreditsExactlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payer := f.user(t, "payer", access.RoleStudent)
	f.user(t, "seller", access.RoleProvider)

	receiver := "seller"
	p, err := f.svc.RecordPayment(ctx, RecordPaymentInput{
		PayerID:        payer.UserID,
		ReceiverID:     &receiver,
		Amount:         decimal.RequireFromString("500.00"),
		TransactionRef: "tx_1",
	})
	require.NoError(t, err)
	require.Equal(t, repo.PaymentPending, p.Status)
	require.Equal(t, "NGN", p.Currency)

	first, err := f.svc.ConfirmPayment(ctx, Confirmation{TransactionRef: "tx_1", GatewayRef: "FLW-9", Outcome: OutcomeSuccessful})
	require.NoError(t, err)
	require.True(t, first.Found)
	require.True(t, first.Applied)
	require.Equal(t, repo.PaymentCompleted, first.Payment.Status)

	second, err := f.svc.ConfirmPayment(ctx, Confirmation{TransactionRef: "tx_1", GatewayRef: "FLW-9", Outcome: OutcomeSuccessful})
	require.NoError(t, err)
	require.True(t, second.Found)
	require.False(t, second.Applied)

	late, err := f.svc.ConfirmPayment(ctx, Confirmation{TransactionRef: "tx_1", Outcome: OutcomeFailed})
	require.NoError(t, err)
	require.False(t, late.Applied)
	require.Equal(t, repo.PaymentCompleted, late.Payment.Status)

	require.True(t, balance(t, f, "seller").Equal(decimal.RequireFromString("500.00")))
}

func TestConfirmPaymentConcurrentDeliveries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "payer", access.RoleStudent)

	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{PayerID: "payer", Amount: decimal.RequireFromString("250.00"), TransactionRef: "tx_race"})
	require.NoError(t, err)

	const deliveries = 6
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.ConfirmPayment(ctx, Confirmation{TransactionRef: "tx_race", Outcome: OutcomeSuccessful})
			if err != nil {
				t.Errorf("confirm: %v", err)
				return
			}
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1, applied)
	require.True(t, balance(t, f, "payer").Equal(decimal.RequireFromString("250.00")))
}

func TestConfirmPaymentFailureLeavesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "payer", access.RoleStudent)

	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{PayerID: "payer", Amount: decimal.RequireFromString("150.00"), TransactionRef: "tx_f"})
	require.NoError(t, err)

	res, err := f.svc.ConfirmPayment(ctx, Confirmation{TransactionRef: "tx_f", Outcome: OutcomeFailed})
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, repo.PaymentFailed, res.Payment.Status)

	_, err = f.store.GetVirtualAccount(ctx, "payer")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestConfirmPaymentUnknownRef(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.ConfirmPayment(context.Background(), Confirmation{TransactionRef: "tx_ghost", Outcome: OutcomeSuccessful})
	require.NoError(t, err)
	require.False(t, res.Found)
	require.False(t, res.Applied)
	require.Nil(t, res.Payment)
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "payer", access.RoleStudent)
	ghost := "ghost"

	cases := []struct {
		name  string
		in    RecordPaymentInput
		field string
		err   error
	}{
		{name: "below minimum", in: RecordPaymentInput{PayerID: "payer", Amount: decimal.RequireFromString("99.99")}, field: "amount"},
		{name: "negative", in: RecordPaymentInput{PayerID: "payer", Amount: decimal.RequireFromString("-5")}, field: "amount"},
		{name: "sub kobo", in: RecordPaymentInput{PayerID: "payer", Amount: decimal.RequireFromString("100.001")}, field: "amount"},
		{name: "currency", in: RecordPaymentInput{PayerID: "payer", Amount: decimal.RequireFromString("100"), Currency: "usd"}, field: "currency"},
		{name: "bad ref", in: RecordPaymentInput{PayerID: "payer", Amount: decimal.RequireFromString("100"), TransactionRef: "has space"}, field: "transactionRef"},
		{name: "unknown receiver", in: RecordPaymentInput{PayerID: "payer", ReceiverID: &ghost, Amount: decimal.RequireFromString("100")}, err: apperr.ErrNotFound},
		{name: "anonymous", in: RecordPaymentInput{Amount: decimal.RequireFromString("100")}, err: apperr.ErrUnauthenticated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.RecordPayment(ctx, tc.in)
			require.Error(t, err)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			var verr *apperr.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tc.field, verr.Field)
		})
	}

	p, err := f.svc.RecordPayment(ctx, RecordPaymentInput{PayerID: "payer", Amount: decimal.RequireFromString("100")})
	require.NoError(t, err)
	require.Regexp(t, `^silink_[0-9A-Za-z]{27}$`, p.TransactionRef)
	require.Equal(t, "payer", *p.ReceiverID)

	_, err = f.svc.RecordPayment(ctx, RecordPaymentInput{PayerID: "payer", Amount: decimal.RequireFromString("100"), TransactionRef: p.TransactionRef})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestWithdrawRejectsOverdrawBeforeRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "seller", access.RoleProvider)
	f.fund(t, "seller", "1000.00", "fund_1")

	_, err := f.svc.Withdraw(ctx, WithdrawInput{UserID: "seller", Amount: decimal.RequireFromString("1000.01"), BankCode: "035", AccountNumber: "0123456789"})
	require.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	payments, err := f.store.ListPaymentsForUser(ctx, "seller")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.Empty(t, f.payouts.transfers)
}

func TestWithdrawValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "seller", access.RoleProvider)
	f.fund(t, "seller", "1000.00", "fund_1")

	cases := []struct {
		name  string
		in    WithdrawInput
		field string
	}{
		{name: "below minimum", in: WithdrawInput{UserID: "seller", Amount: decimal.RequireFromString("499.99"), BankCode: "035", AccountNumber: "0123456789"}, field: "amount"},
		{name: "bank code", in: WithdrawInput{UserID: "seller", Amount: decimal.RequireFromString("600"), BankCode: "35", AccountNumber: "0123456789"}, field: "bankCode"},
		{name: "account number", in: WithdrawInput{UserID: "seller", Amount: decimal.RequireFromString("600"), BankCode: "035", AccountNumber: "12345"}, field: "accountNumber"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Withdraw(ctx, tc.in)
			var verr *apperr.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestWithdrawSettlesOnConfirmation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "seller", access.RoleProvider)
	f.fund(t, "seller", "1000.00", "fund_1")

	p, err := f.svc.Withdraw(ctx, WithdrawInput{UserID: "seller", Amount: decimal.RequireFromString("600.00"), BankCode: "035", AccountNumber: "0123456789"})
	require.NoError(t, err)
	require.True(t, p.IsWithdrawal())
	require.Equal(t, repo.PaymentPending, p.Status)
	require.Len(t, f.payouts.transfers, 1)
	require.Equal(t, p.TransactionRef, f.payouts.transfers[0].Reference)
	require.Equal(t, "SILINK withdrawal", f.payouts.transfers[0].Narration)

	// Pending withdrawals do not touch the balance.
	require.True(t, balance(t, f, "seller").Equal(decimal.RequireFromString("1000.00")))

	res, err := f.svc.ConfirmPayment(ctx, Confirmation{TransactionRef: p.TransactionRef, Outcome: OutcomeSuccessful})
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.True(t, balance(t, f, "seller").Equal(decimal.RequireFromString("400.00")))
}

func TestWithdrawOverdrawAtSettlementFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "seller", access.RoleProvider)
	f.fund(t, "seller", "1000.00", "fund_1")

	first, err := f.svc.Withdraw(ctx, WithdrawInput{UserID: "seller", Amount: decimal.RequireFromString("700.00"), BankCode: "035", AccountNumber: "0123456789"})
	require.NoError(t, err)
	second, err := f.svc.Withdraw(ctx, WithdrawInput{UserID: "seller", Amount: decimal.RequireFromString("700.00"), BankCode: "035", AccountNumber: "0123456789"})
	require.NoError(t, err)

	res, err := f.svc.ConfirmPayment(ctx, Confirmation{TransactionRef: first.TransactionRef, Outcome: OutcomeSuccessful})
	require.NoError(t, err)
	require.Equal(t, repo.PaymentCompleted, res.Payment.Status)

	res, err = f.svc.ConfirmPayment(ctx, Confirmation{TransactionRef: second.TransactionRef, Outcome: OutcomeSuccessful})
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, repo.PaymentFailed, res.Payment.Status)
	require.True(t, balance(t, f, "seller").Equal(decimal.RequireFromString("300.00")))
}

func TestWithdrawPayoutFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "seller", access.RoleProvider)
	f.fund(t, "seller", "1000.00", "fund_1")
	f.payouts.err = errors.New("gateway down")

	_, err := f.svc.Withdraw(ctx, WithdrawInput{UserID: "seller", Amount: decimal.RequireFromString("600.00"), BankCode: "035", AccountNumber: "0123456789"})
	var xerr *apperr.ExternalError
	require.ErrorAs(t, err, &xerr)
	require.Equal(t, "flutterwave", xerr.Service)

	ref := f.payouts.transfers[0].Reference
	p, err := f.store.GetPaymentByRef(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, repo.PaymentFailed, p.Status)
	require.True(t, balance(t, f, "seller").Equal(decimal.RequireFromString("1000.00")))
}

func TestGetOrCreateVirtualAccountConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1", access.RoleStudent)

	const callers = 8
	accounts := make([]*repo.VirtualAccount, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			accounts[i], errs[i] = f.svc.GetOrCreateVirtualAccount(ctx, "u1")
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, accounts[0].AccountNumber, accounts[i].AccountNumber)
	}
	require.Regexp(t, `^\d{10}$`, accounts[0].AccountNumber)
	require.Equal(t, "SILINK/ADA OBI", accounts[0].AccountName)
	require.Equal(t, DefaultBankName, accounts[0].BankName)

	_, err := f.svc.GetOrCreateVirtualAccount(ctx, "nobody")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCancelPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payer := f.user(t, "payer", access.RoleStudent)
	other := f.user(t, "other", access.RoleStudent)

	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{PayerID: "payer", Amount: decimal.RequireFromString("200"), TransactionRef: "tx_c"})
	require.NoError(t, err)

	_, err = f.svc.CancelPayment(ctx, other, "tx_c")
	require.ErrorIs(t, err, apperr.ErrForbidden)

	p, err := f.svc.CancelPayment(ctx, payer, "tx_c")
	require.NoError(t, err)
	require.Equal(t, repo.PaymentCancelled, p.Status)

	_, err = f.svc.CancelPayment(ctx, payer, "tx_c")
	require.ErrorIs(t, err, apperr.ErrConflict)

	res, err := f.svc.ConfirmPayment(ctx, Confirmation{TransactionRef: "tx_c", Outcome: OutcomeSuccessful})
	require.NoError(t, err)
	require.False(t, res.Applied)
}

func TestPaymentStatusVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	payer := f.user(t, "payer", access.RoleStudent)
	seller := f.user(t, "seller", access.RoleProvider)
	stranger := f.user(t, "stranger", access.RoleStudent)
	admin := f.user(t, "admin", access.RoleAdmin)

	receiver := seller.UserID
	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{PayerID: payer.UserID, ReceiverID: &receiver, Amount: decimal.RequireFromString("100"), TransactionRef: "tx_v"})
	require.NoError(t, err)

	for _, caller := range []access.Principal{payer, seller, admin} {
		p, err := f.svc.PaymentStatus(ctx, caller, "tx_v")
		require.NoError(t, err)
		require.Equal(t, "tx_v", p.TransactionRef)
	}

	_, err = f.svc.PaymentStatus(ctx, stranger, "tx_v")
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.PaymentStatus(ctx, stranger, "tx_missing")
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.PaymentStatus(ctx, admin, "tx_missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	list, err := f.svc.Payments(ctx, seller)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestAdminOperationsRequireRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	student := f.user(t, "student", access.RoleStudent)
	provider := f.user(t, "provider", access.RoleProvider)
	admin := f.user(t, "admin", access.RoleAdmin)

	_, err := f.svc.Analytics(ctx, student)
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.SetUserStatus(ctx, student, provider.UserID, false)
	require.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.ListUsers(ctx, provider, "")
	require.ErrorIs(t, err, apperr.ErrForbidden)

	stats, err := f.svc.Analytics(ctx, admin)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.TotalUsers)

	u, err := f.svc.SetUserStatus(ctx, admin, provider.UserID, false)
	require.NoError(t, err)
	require.False(t, u.IsActive)

	_, err = f.svc.SetUserStatus(ctx, admin, admin.UserID, false)
	var verr *apperr.ValidationError
	require.ErrorAs(t, err, &verr)

	users, err := f.svc.ListUsers(ctx, admin, "provider")
	require.NoError(t, err)
	require.Len(t, users, 1)
	users, err = f.svc.ListUsers(ctx, admin, "all")
	require.NoError(t, err)
	require.Len(t, users, 3)
	_, err = f.svc.ListUsers(ctx, admin, "wizard")
	require.ErrorAs(t, err, &verr)
}

func TestAnalyticsUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cache := &memoryCache{}
	f.svc.cache = cache
	admin := f.user(t, "admin", access.RoleAdmin)

	first, err := f.svc.Analytics(ctx, admin)
	require.NoError(t, err)
	require.Equal(t, 1, cache.sets)

	f.user(t, "late", access.RoleStudent)
	second, err := f.svc.Analytics(ctx, admin)
	require.NoError(t, err)
	require.Equal(t, 1, cache.sets)
	require.Equal(t, first.TotalUsers, second.TotalUsers)
}

func TestParseOutcome(t *testing.T) {
	for status, want := range map[string]Outcome{
		"successful": OutcomeSuccessful,
		"SUCCESS":    OutcomeSuccessful,
		"failed":     OutcomeFailed,
		"cancelled":  OutcomeFailed,
	} {
		got, ok := ParseOutcome(status)
		require.True(t, ok, status)
		require.Equal(t, want, got, status)
	}
	_, ok := ParseOutcome("pending")
	require.False(t, ok)
}

func TestGetOrCreateVirtualAccountRedrawsTakenNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1", access.RoleStudent)
	f.user(t, "u2", access.RoleStudent)

	numbers := []string{"1111111111", "1111111111", "2222222222"}
	f.svc.newAccountNumber = func() (string, error) {
		n := numbers[0]
		numbers = numbers[1:]
		return n, nil
	}

	first, err := f.svc.GetOrCreateVirtualAccount(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "1111111111", first.AccountNumber)

	second, err := f.svc.GetOrCreateVirtualAccount(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, "2222222222", second.AccountNumber)
	require.Empty(t, numbers)
}

func TestGetOrCreateVirtualAccountGivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "u1", access.RoleStudent)
	f.user(t, "u2", access.RoleStudent)

	calls := 0
	f.svc.newAccountNumber = func() (string, error) {
		calls++
		return "1111111111", nil
	}
	_, err := f.svc.GetOrCreateVirtualAccount(ctx, "u1")
	require.NoError(t, err)

	_, err = f.svc.GetOrCreateVirtualAccount(ctx, "u2")
	require.ErrorIs(t, err, apperr.ErrConflict)
	require.Equal(t, 1+accountNumberAttempts, calls)
}

// accountlessStore reports an account for every user without ever creating the row.
type accountlessStore struct {
	*repo.SQLiteRepository
}

func (s accountlessStore) GetVirtualAccount(_ context.Context, userID string) (*repo.VirtualAccount, error) {
	return &repo.VirtualAccount{UserID: userID, AccountNumber: "0000000000"}, nil
}

func TestConfirmPaymentWithMissingAccountStaysPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "payer", access.RoleStudent)

	_, err := f.svc.RecordPayment(ctx, RecordPaymentInput{PayerID: "payer", Amount: decimal.RequireFromString("250.00"), TransactionRef: "tx_missing_acct"})
	require.NoError(t, err)

	broken := New(accountlessStore{f.store}, nil, nil, DefaultConfig(), metrics.Registry("silink_test"), logging.Discard())
	res, err := broken.ConfirmPayment(ctx, Confirmation{TransactionRef: "tx_missing_acct", Outcome: OutcomeSuccessful})
	require.ErrorIs(t, err, apperr.ErrConflict)
	require.False(t, res.Found)

	p, err := f.store.GetPaymentByRef(ctx, "tx_missing_acct")
	require.NoError(t, err)
	require.Equal(t, repo.PaymentPending, p.Status)

	res, err = f.svc.ConfirmPayment(ctx, Confirmation{TransactionRef: "tx_missing_acct", Outcome: OutcomeSuccessful})
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.True(t, balance(t, f, "payer").Equal(decimal.RequireFromString("250.00")))
}
