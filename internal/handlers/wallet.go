package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/agora/internal/models"
	"github.com/BradenHooton/agora/internal/services"
	pkghttp "github.com/BradenHooton/agora/pkg/http"
	"github.com/shopspring/decimal"
)

// WalletServiceInterface defines wallet and purchase operations.
type WalletServiceInterface interface {
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error)
	ListPurchases(ctx context.Context, userID string, limit, offset int) ([]*models.Purchase, error)
	ListSales(ctx context.Context, userID string, limit, offset int) ([]*models.Purchase, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*services.WalletUpdate, error)
	Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (*services.WalletUpdate, error)
	InitiatePurchase(ctx context.Context, buyerID, listingID string) (*models.PurchaseIntent, error)
	ConfirmPurchase(ctx context.Context, buyerID, reference, code string) (*models.Purchase, error)
}

// WalletHandler serves balances, ledger history and the purchase flow.
type WalletHandler struct {
	service WalletServiceInterface
	logger  *slog.Logger
}

func NewWalletHandler(service WalletServiceInterface, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{service: service, logger: logger}
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"positive_amount"`
}

type InitiatePurchaseRequest struct {
	ListingID string `json:"listing_id" validate:"required"`
}

type ConfirmPurchaseRequest struct {
	Reference string `json:"transaction_reference" validate:"required"`
	Code      string `json:"code" validate:"required,numeric,min=4,max=10"`
}

// GetWallet handles GET /wallet
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), userID)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, wallet)
}

// Transactions handles GET /wallet/transactions
func (h *WalletHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	page := pkghttp.ParsePage(r)
	txs, err := h.service.ListTransactions(r.Context(), userID, page.Limit, page.Offset)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, txs)
}

// Purchases handles GET /wallet/purchases
func (h *WalletHandler) Purchases(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	page := pkghttp.ParsePage(r)
	purchases, err := h.service.ListPurchases(r.Context(), userID, page.Limit, page.Offset)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, purchases)
}

// Sales handles GET /wallet/sales
func (h *WalletHandler) Sales(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	page := pkghttp.ParsePage(r)
	sales, err := h.service.ListSales(r.Context(), userID, page.Limit, page.Offset)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, sales)
}

// Deposit handles POST /wallet/deposit
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.service.Deposit)
}

// Withdraw handles POST /wallet/withdraw
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.service.Withdraw)
}

func (h *WalletHandler) move(w http.ResponseWriter, r *http.Request, op func(context.Context, string, decimal.Decimal) (*services.WalletUpdate, error)) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req AmountRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	update, err := op(r.Context(), userID, req.Amount)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, update)
}

// InitiatePurchase handles POST /purchases. The confirmation code is emailed
// to the buyer; only the reference is returned.
func (h *WalletHandler) InitiatePurchase(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req InitiatePurchaseRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	intent, err := h.service.InitiatePurchase(r.Context(), buyerID, strings.TrimSpace(req.ListingID))
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusAccepted, intent)
}

// ConfirmPurchase handles POST /purchases/confirm
func (h *WalletHandler) ConfirmPurchase(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req ConfirmPurchaseRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	purchase, err := h.service.ConfirmPurchase(r.Context(), buyerID, strings.TrimSpace(req.Reference), req.Code)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, purchase)
}
