package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet balance is authoritative; transactions are the audit trail.
type Wallet struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CanAfford reports whether the wallet covers amount.
func (w *Wallet) CanAfford(amount decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(amount)
}

type TransactionType string

const (
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
	TransactionPurchase   TransactionType = "PURCHASE"
	TransactionSale       TransactionType = "SALE"
	TransactionRefund     TransactionType = "REFUND"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

// Transaction amounts are signed: positive credits, negative debits.
// ReferenceID correlates the PURCHASE and SALE rows of one trade and is
// deliberately not unique.
type Transaction struct {
	ID          string            `json:"id"`
	WalletID    string            `json:"wallet_id"`
	Amount      decimal.Decimal   `json:"amount"`
	Type        TransactionType   `json:"transaction_type"`
	Status      TransactionStatus `json:"status"`
	ReferenceID string            `json:"reference_id"`
	Description *string           `json:"description,omitempty"`
	ListingID   *string           `json:"listing_id,omitempty"`
	CreatedAt   time.Time         `json:"timestamp"`
}

// Purchase is written once per successful confirmation.
type Purchase struct {
	ID            string          `json:"id"`
	ListingID     string          `json:"listing_id"`
	BuyerID       string          `json:"buyer_id"`
	SellerID      string          `json:"seller_id"`
	TransactionID string          `json:"transaction_id"`
	Price         decimal.Decimal `json:"purchase_price"`
	PurchasedAt   time.Time       `json:"purchased_at"`
}

// PurchaseIntent is returned by purchase initiation. It never carries the code.
type PurchaseIntent struct {
	Reference string          `json:"transaction_reference"`
	ListingID string          `json:"listing_id"`
	Amount    decimal.Decimal `json:"amount"`
	SellerID  string          `json:"seller_id"`
	ExpiresAt time.Time       `json:"expires_at"`
}
