// Package ledger owns virtual accounts and the payment state machine.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"silink/internal/access"
	"silink/internal/metrics"
	"silink/internal/repo"

	"github.com/shopspring/decimal"
)

// DefaultBankName is the partner bank shown on virtual accounts.
const DefaultBankName = "Wema Bank"

const (
	analyticsKey      = "silink:analytics"
	analyticsTTL      = 30 * time.Second
	accountNamePrefix = "SILINK/"
)

// Store is the slice of the repository the ledger needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*repo.User, error)
	ListUsersByRole(ctx context.Context, role access.Role) ([]repo.User, error)
	UpdateUserStatus(ctx context.Context, id string, active bool) error

	GetVirtualAccount(ctx context.Context, userID string) (*repo.VirtualAccount, error)
	InsertVirtualAccountIfAbsent(ctx context.Context, acct repo.VirtualAccount) (*repo.VirtualAccount, error)

	InsertPayment(ctx context.Context, p repo.Payment) (*repo.Payment, error)
	GetPaymentByRef(ctx context.Context, ref string) (*repo.Payment, error)
	ListPaymentsForUser(ctx context.Context, userID string) ([]repo.Payment, error)
	TransitionPayment(ctx context.Context, t repo.Transition) (*repo.Payment, bool, error)

	Analytics(ctx context.Context) (*repo.Analytics, error)
}

// Cache stores JSON snapshots with a TTL.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Config tunes ledger thresholds.
type Config struct {
	FundingMinimum  decimal.Decimal
	WithdrawMinimum decimal.Decimal
	Currency        string
	BankName        string
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		FundingMinimum:  decimal.NewFromInt(100),
		WithdrawMinimum: decimal.NewFromInt(500),
		Currency:        repo.DefaultCurrency,
		BankName:        DefaultBankName,
	}
}

// Service implements the ledger and admin operations.
type Service struct {
	store   Store
	payouts Payouts
	cache   Cache
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger

	newAccountNumber func() (string, error)
}

// New creates a ledger service. payouts and cache may be nil.
func New(store Store, payouts Payouts, cache Cache, cfg Config, metrics *metrics.Metrics, logger *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.Currency == "" {
		cfg.Currency = def.Currency
	}
	if cfg.BankName == "" {
		cfg.BankName = def.BankName
	}
	if cfg.FundingMinimum.IsZero() {
		cfg.FundingMinimum = def.FundingMinimum
	}
	if cfg.WithdrawMinimum.IsZero() {
		cfg.WithdrawMinimum = def.WithdrawMinimum
	}
	return &Service{
		store:   store,
		payouts: payouts,
		cache:   cache,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger.With("component", "ledger"),

		newAccountNumber: generateAccountNumber,
	}
}
