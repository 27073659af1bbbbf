package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/budget-service/internal/auth"
	"github.com/Dan9191/budget-service/internal/export"
	"github.com/Dan9191/budget-service/internal/middleware"
	"github.com/Dan9191/budget-service/internal/models"
	"github.com/Dan9191/budget-service/internal/service"
	"github.com/Dan9191/budget-service/internal/storage"
)

// Options tunes presentation details of the handler.
type Options struct {
	Currency     string
	CookieSecure bool
}

type Handler struct {
	ledger *service.LedgerService
	auth   *service.AuthService
	tokens *auth.TokenManager
	log    *logrus.Logger
	opts   Options
}

func NewHandler(ledger *service.LedgerService, authSvc *service.AuthService, tokens *auth.TokenManager, log *logrus.Logger, opts Options) *Handler {
	return &Handler{ledger: ledger, auth: authSvc, tokens: tokens, log: log, opts: opts}
}

type recordRequest struct {
	Type        string          `json:"type" validate:"required,oneof=income expense"`
	Amount      decimal.Decimal `json:"amount" validate:"positive_decimal,amount_limits"`
	Description string          `json:"description" validate:"max=500"`
	Date        string          `json:"date"`
}

type deleteRequest struct {
	TID int64 `json:"tid" validate:"gt=0"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type transactionsResponse struct {
	Transactions   []models.Transaction `json:"transactions"`
	CurrentBalance decimal.Decimal      `json:"currentBalance"`
}

type recordResponse struct {
	Message        string             `json:"message"`
	Transaction    models.Transaction `json:"transaction"`
	CurrentBalance decimal.Decimal    `json:"currentBalance"`
}

type deleteResponse struct {
	Message        string          `json:"message"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
}

type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// ListTransactions returns every transaction with the current balance.
// Optional sort and order query parameters reorder the response only.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ledger.Snapshot(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to load transactions")
		return
	}

	txs := snap.Transactions
	if key := r.URL.Query().Get("sort"); key != "" {
		order := r.URL.Query().Get("order")
		if order == "" {
			order = models.OrderAsc
		}
		if txs, err = models.SortTransactions(txs, key, order); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid sort parameters", Error: err.Error()})
			return
		}
	}

	writeJSON(w, http.StatusOK, transactionsResponse{Transactions: txs, CurrentBalance: snap.Balance})
}

// CreateTransaction records an income or expense
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid transaction data", Error: err.Error()})
		return
	}

	tx, balance, err := h.ledger.Record(r.Context(), service.RecordInput{
		Type:        req.Type,
		Amount:      req.Amount,
		Description: req.Description,
		Date:        req.Date,
	})
	if err != nil {
		h.writeServiceError(w, err, "Invalid transaction data")
		return
	}

	writeJSON(w, http.StatusCreated, recordResponse{Message: "Transaction added", Transaction: tx, CurrentBalance: balance})
}

// DeleteTransaction removes a transaction by tid
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	var req deleteRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid transaction id", Error: err.Error()})
		return
	}

	balance, err := h.ledger.Delete(r.Context(), req.TID)
	if err != nil {
		h.writeServiceError(w, err, "Invalid transaction id")
		return
	}

	writeJSON(w, http.StatusOK, deleteResponse{Message: "Transaction deleted successfully", CurrentBalance: balance})
}

// Summary returns income and expense totals
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Summary(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to load summary")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// PrintStatement renders the ledger as a printable HTML page
func (h *Handler) PrintStatement(w http.ResponseWriter, r *http.Request) {
	snap, err := h.ledger.Snapshot(r.Context())
	if err != nil {
		h.writeServiceError(w, err, "Failed to load transactions")
		return
	}

	var buf bytes.Buffer
	if err := export.WriteHTML(&buf, snap, export.Options{Currency: h.opts.Currency}); err != nil {
		h.writeServiceError(w, err, "Failed to render statement")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// ItsMe reports the identity carried by the auth cookie
func (h *Handler) ItsMe(w http.ResponseWriter, r *http.Request) {
	claims, err := h.tokens.Verify(middleware.TokenFromRequest(r))
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Not authenticated"})
	case err != nil:
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Invalid or expired token", Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"message": "Authenticated", "user": claims})
	}
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Invalid login request", Error: err.Error()})
		return
	}

	token, expiresAt, err := h.auth.Login(req.Username, req.Password)
	if errors.Is(err, service.ErrInvalidLogin) {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Invalid username or password"})
		return
	}
	if err != nil {
		h.writeServiceError(w, err, "Login failed")
		return
	}

	http.SetCookie(w, h.cookie(token, expiresAt))
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logged in", "expiresAt": expiresAt.UTC()})
}

// Logout clears the auth cookie
func (h *Handler) Logout(w http.ResponseWriter, _ *http.Request) {
	c := h.cookie("", time.Unix(0, 0))
	c.MaxAge = -1
	http.SetCookie(w, c)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Health is a liveness probe
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) cookie(value string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}

// writeServiceError maps service and storage errors to status codes.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error, badRequestMessage string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Transaction not found"})
	case errors.Is(err, service.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: badRequestMessage, Error: err.Error()})
	case errors.Is(err, storage.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: "Storage unavailable", Error: err.Error()})
	default:
		h.log.WithError(err).Error("Unhandled request error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
