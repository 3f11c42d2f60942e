package httpserver

import (
	"net/http"

	"silink/internal/apperr"
	"silink/internal/ledger"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type recordPaymentRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	ReceiverID     *string         `json:"receiverId"`
	Currency       string          `json:"currency"`
	TransactionRef string          `json:"transactionRef"`
	Description    *string         `json:"description"`
}

type withdrawRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	BankCode      string          `json:"bankCode"`
	AccountNumber string          `json:"accountNumber"`
	Narration     string          `json:"narration"`
}

type userStatusRequest struct {
	IsActive *bool `json:"isActive"`
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.deps.Ledger.Payments(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.deps.Ledger.RecordPayment(r.Context(), ledger.RecordPaymentInput{
		PayerID:        principal(r).UserID,
		ReceiverID:     req.ReceiverID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		TransactionRef: req.TransactionRef,
		Description:    req.Description,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Ledger.PaymentStatus(r.Context(), principal(r), chi.URLParam(r, "txRef"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Ledger.CancelPayment(r.Context(), principal(r), chi.URLParam(r, "txRef"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.deps.Ledger.Withdraw(r.Context(), ledger.WithdrawInput{
		UserID:        principal(r).UserID,
		Amount:        req.Amount,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		Narration:     req.Narration,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, p)
}

func (s *Server) handleVirtualAccount(w http.ResponseWriter, r *http.Request) {
	acct, err := s.deps.Ledger.GetOrCreateVirtualAccount(r.Context(), principal(r).UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	out, err := s.deps.Ledger.Analytics(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.deps.Ledger.ListUsers(r.Context(), principal(r), r.URL.Query().Get("role"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleSetUserStatus(w http.ResponseWriter, r *http.Request) {
	var req userStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.IsActive == nil {
		s.writeError(w, r, apperr.Invalid("isActive", "is required"))
		return
	}
	u, err := s.deps.Ledger.SetUserStatus(r.Context(), principal(r), chi.URLParam(r, "id"), *req.IsActive)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
