// Package flutterwave talks to the Flutterwave v3 API and receives its webhooks.
package flutterwave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"silink/internal/ledger"
	"silink/internal/metrics"
)

const defaultBaseURL = "https://api.flutterwave.com"

// ErrInvalidCredential indicates Flutterwave rejected the secret key.
var ErrInvalidCredential = errors.New("flutterwave invalid credential")

// Config holds Flutterwave client configuration.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// Client provides typed access to the Flutterwave REST API.
type Client struct {
	logger    *slog.Logger
	baseURL   string
	secretKey string
	http      *http.Client
	metrics   *metrics.Metrics
}

var _ ledger.Payouts = (*Client)(nil)

// New creates a new Flutterwave client.
func New(cfg Config, logger *slog.Logger, metrics *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:    logger.With("component", "flutterwave"),
		baseURL:   base,
		secretKey: cfg.SecretKey,
		http:      &http.Client{Timeout: timeout},
		metrics:   metrics,
	}
}

// envelope mirrors Flutterwave's standard response shape.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type transferRequest struct {
	AccountBank   string      `json:"account_bank"`
	AccountNumber string      `json:"account_number"`
	Amount        json.Number `json:"amount"`
	Narration     string      `json:"narration"`
	Currency      string      `json:"currency"`
	Reference     string      `json:"reference"`
	DebitCurrency string      `json:"debit_currency"`
}

type transferData struct {
	ID        json.Number `json:"id"`
	Reference string      `json:"reference"`
	Status    string      `json:"status"`
}

// InitiateTransfer queues a bank payout keyed by the transfer reference.
func (c *Client) InitiateTransfer(ctx context.Context, t ledger.Transfer) (*ledger.TransferReceipt, error) {
	req := transferRequest{
		AccountBank:   t.BankCode,
		AccountNumber: t.AccountNumber,
		Amount:        json.Number(t.Amount.StringFixed(2)),
		Narration:     t.Narration,
		Currency:      t.Currency,
		Reference:     t.Reference,
		DebitCurrency: t.Currency,
	}
	env, err := c.postJSON(ctx, "/v3/transfers", req)
	if err != nil {
		return nil, err
	}

	var data transferData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("decode transfer: %w", err)
		}
	}
	c.logger.Info("transfer queued", "reference", t.Reference, "transfer_id", data.ID.String(), "status", data.Status)
	return &ledger.TransferReceipt{ID: data.ID.String(), Status: data.Status}, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	var env envelope
	if err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body), &env); err != nil {
		return nil, err
	}
	if !strings.EqualFold(env.Status, "success") {
		message := strings.TrimSpace(env.Message)
		if message == "" {
			message = "flutterwave operation failed"
		}
		return nil, fmt.Errorf("flutterwave %s error: %s", endpoint, message)
	}
	return &env, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader, dest any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "silink/flutterwave-client")
	if c.secretKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		c.metrics.GatewayRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("flutterwave request: %w", err)
	}
	defer res.Body.Close()

	statusLabel := strconv.Itoa(res.StatusCode)
	c.metrics.GatewayRequests.WithLabelValues(endpoint, statusLabel).Inc()
	c.metrics.GatewayLatency.WithLabelValues(endpoint, statusLabel).Observe(time.Since(start).Seconds())

	bodyBytes, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode >= 400 {
		return classifyHTTPError(res.StatusCode, bodyBytes)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func classifyHTTPError(status int, body []byte) error {
	var env envelope
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		message = env.Message
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%w: %s", ErrInvalidCredential, message)
	}
	return fmt.Errorf("flutterwave http %d: %s", status, message)
}
