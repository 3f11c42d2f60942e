package flutterwave

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"silink/internal/ledger"
	"silink/internal/metrics"
)

const (
	signatureHeader = "verif-hash"
	maxWebhookBody  = 1 << 20
)

// ConfirmationProcessor applies gateway confirmations.
type ConfirmationProcessor interface {
	ConfirmPayment(ctx context.Context, c ledger.Confirmation) (ledger.Result, error)
}

// WebhookHandler verifies Flutterwave webhook deliveries and forwards confirmations.
type WebhookHandler struct {
	logger     *slog.Logger
	metrics    *metrics.Metrics
	secretHash string
	processor  ConfirmationProcessor
}

// NewWebhookHandler creates a new webhook handler. An empty secretHash disables verification.
func NewWebhookHandler(logger *slog.Logger, metrics *metrics.Metrics, secretHash string, processor ConfirmationProcessor) *WebhookHandler {
	return &WebhookHandler{
		logger:     logger.With("component", "flutterwave_webhook"),
		metrics:    metrics,
		secretHash: strings.TrimSpace(secretHash),
		processor:  processor,
	}
}

// payload covers the flat legacy shape and the v3 event shape with a data object.
type payload struct {
	Event  string       `json:"event"`
	Status string       `json:"status"`
	TxRef  string       `json:"tx_ref"`
	FlwRef string       `json:"flw_ref"`
	Data   *payloadData `json:"data"`
}

type payloadData struct {
	Status    string `json:"status"`
	TxRef     string `json:"tx_ref"`
	FlwRef    string `json:"flw_ref"`
	Reference string `json:"reference"`
	ID        any    `json:"id"`
}

// confirmation extracts the reference, gateway reference and status of the event.
func (p payload) confirmation() (ref, gatewayRef, status string) {
	ref, gatewayRef, status = p.TxRef, p.FlwRef, p.Status
	if p.Data == nil {
		return
	}
	if ref == "" {
		ref = p.Data.TxRef
	}
	if ref == "" {
		// transfer.completed events carry the payout reference here
		ref = p.Data.Reference
	}
	if gatewayRef == "" {
		gatewayRef = p.Data.FlwRef
	}
	if gatewayRef == "" && p.Data.ID != nil {
		if b, err := json.Marshal(p.Data.ID); err == nil {
			gatewayRef = strings.Trim(string(b), `"`)
		}
	}
	if status == "" {
		status = p.Data.Status
	}
	return
}

// ServeHTTP satisfies http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.authorised(r) {
		h.metrics.Errors.WithLabelValues("flutterwave_webhook_auth").Inc()
		h.metrics.WebhookEvents.WithLabelValues("unauthorized").Inc()
		writeStatus(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	defer r.Body.Close()
	if err != nil {
		h.metrics.Errors.WithLabelValues("flutterwave_webhook").Inc()
		writeStatus(w, http.StatusBadRequest, "failed to read body")
		return
	}

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		h.metrics.WebhookEvents.WithLabelValues("malformed").Inc()
		writeStatus(w, http.StatusBadRequest, "invalid payload")
		return
	}
	ref, gatewayRef, status := p.confirmation()
	if strings.TrimSpace(ref) == "" {
		h.metrics.WebhookEvents.WithLabelValues("malformed").Inc()
		writeStatus(w, http.StatusBadRequest, "missing tx_ref")
		return
	}

	outcome, final := ledger.ParseOutcome(status)
	if !final {
		h.logger.Info("ignoring non-final webhook", "event", p.Event, "tx_ref", ref, "status", status)
		h.metrics.WebhookEvents.WithLabelValues("ignored").Inc()
		writeStatus(w, http.StatusOK, "success")
		return
	}

	res, err := h.processor.ConfirmPayment(r.Context(), ledger.Confirmation{
		TransactionRef: ref,
		GatewayRef:     gatewayRef,
		Outcome:        outcome,
	})
	if err != nil {
		h.logger.Error("failed processing webhook", "error", err, "event", p.Event, "tx_ref", ref)
		h.metrics.Errors.WithLabelValues("flutterwave_webhook_process").Inc()
		h.metrics.WebhookEvents.WithLabelValues("error").Inc()
		writeStatus(w, http.StatusInternalServerError, "failed to process")
		return
	}

	switch {
	case !res.Found:
		h.metrics.WebhookEvents.WithLabelValues("unknown_ref").Inc()
	case res.Applied:
		h.metrics.WebhookEvents.WithLabelValues("applied").Inc()
	default:
		h.metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
	}
	writeStatus(w, http.StatusOK, "success")
}

func (h *WebhookHandler) authorised(r *http.Request) bool {
	if h.secretHash == "" {
		return true
	}
	got := strings.TrimSpace(r.Header.Get(signatureHeader))
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.secretHash)) == 1
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
