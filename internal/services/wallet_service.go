package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/agora/internal/models"
	pkglogger "github.com/BradenHooton/agora/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerTx is the transaction-bound view of the ledger. Every Lock* call
// holds a row lock until the surrounding InTx returns.
type LedgerTx interface {
	LockCode(ctx context.Context, userID string, purpose models.CodePurpose, reference string) (*models.OneTimeCode, error)
	ConsumeCode(ctx context.Context, id string) (bool, error)
	LockListing(ctx context.Context, id string) (*models.Listing, error)
	SetListingStatus(ctx context.Context, id string, status models.ListingStatus) error
	LockWallets(ctx context.Context, userIDs ...string) (map[string]*models.Wallet, error)
	AdjustBalance(ctx context.Context, walletID string, delta decimal.Decimal) (*models.Wallet, error)
	InsertTransaction(ctx context.Context, t *models.Transaction) (*models.Transaction, error)
	InsertPurchase(ctx context.Context, p *models.Purchase) (*models.Purchase, error)
}

// LedgerRepository owns wallets, transactions and purchases.
type LedgerRepository interface {
	GetWallet(ctx context.Context, userID string) (*models.Wallet, error)
	ListTransactions(ctx context.Context, walletID string, limit, offset int) ([]*models.Transaction, error)
	ListPurchases(ctx context.Context, userID string, asSeller bool, limit, offset int) ([]*models.Purchase, error)
	InTx(ctx context.Context, fn func(LedgerTx) error) error
}

// ListingReader reads listings outside a ledger transaction.
type ListingReader interface {
	GetByID(ctx context.Context, id string) (*models.Listing, error)
}

// CodeIssuer issues one-time codes and checks submissions against them.
type CodeIssuer interface {
	Issue(ctx context.Context, user *models.User, purpose models.CodePurpose, binding models.CodeBinding) (*models.OneTimeCode, error)
	Matches(code *models.OneTimeCode, submitted string) bool
	RecordMismatch(ctx context.Context, code *models.OneTimeCode) (bool, error)
}

// WalletUpdate is the result of a deposit or withdrawal.
type WalletUpdate struct {
	Wallet      *models.Wallet      `json:"wallet"`
	Transaction *models.Transaction `json:"transaction"`
}

// WalletService moves money between wallets.
type WalletService struct {
	ledger      LedgerRepository
	listings    ListingReader
	users       UserLookup
	codes       CodeIssuer
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewWalletService(ledger LedgerRepository, listings ListingReader, users UserLookup, codes CodeIssuer, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *WalletService {
	return &WalletService{
		ledger:      ledger,
		listings:    listings,
		users:       users,
		codes:       codes,
		logger:      logger,
		auditLogger: auditLogger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return models.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) || amount.GreaterThan(MaxPrice) {
		return validationError("amount must have at most two decimal places and fit 10 integer digits")
	}
	return nil
}

func (s *WalletService) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	return s.ledger.GetWallet(ctx, userID)
}

func (s *WalletService) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]*models.Transaction, error) {
	wallet, err := s.ledger.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListTransactions(ctx, wallet.ID, limit, offset)
}

func (s *WalletService) ListPurchases(ctx context.Context, userID string, limit, offset int) ([]*models.Purchase, error) {
	return s.ledger.ListPurchases(ctx, userID, false, limit, offset)
}

func (s *WalletService) ListSales(ctx context.Context, userID string, limit, offset int) ([]*models.Purchase, error) {
	return s.ledger.ListPurchases(ctx, userID, true, limit, offset)
}

// Deposit credits amount to the user's wallet.
func (s *WalletService) Deposit(ctx context.Context, userID string, amount decimal.Decimal) (*WalletUpdate, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	return s.move(ctx, userID, amount, models.TransactionDeposit, "Deposit")
}

// Withdraw debits amount from the user's wallet.
func (s *WalletService) Withdraw(ctx context.Context, userID string, amount decimal.Decimal) (*WalletUpdate, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}
	return s.move(ctx, userID, amount.Neg(), models.TransactionWithdrawal, "Withdrawal")
}

func (s *WalletService) move(ctx context.Context, userID string, delta decimal.Decimal, kind models.TransactionType, description string) (*WalletUpdate, error) {
	var update WalletUpdate
	err := s.ledger.InTx(ctx, func(tx LedgerTx) error {
		wallets, err := tx.LockWallets(ctx, userID)
		if err != nil {
			return err
		}
		wallet := wallets[userID]
		if delta.IsNegative() && !wallet.CanAfford(delta.Neg()) {
			return models.ErrInsufficientFunds
		}

		if update.Wallet, err = tx.AdjustBalance(ctx, wallet.ID, delta); err != nil {
			return err
		}
		update.Transaction, err = tx.InsertTransaction(ctx, &models.Transaction{
			WalletID:    wallet.ID,
			Amount:      delta,
			Type:        kind,
			Status:      models.TransactionCompleted,
			ReferenceID: uuid.New().String(),
			Description: &description,
			CreatedAt:   s.now(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(pkglogger.AuditEvent{
		Category:  pkglogger.AuditLedger,
		EventType: "wallet_" + string(kind),
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"amount": delta.StringFixed(2), "reference": update.Transaction.ReferenceID},
	})
	return &update, nil
}

// InitiatePurchase checks the listing and the buyer's funds, then emails a
// payment code bound to a fresh reference, the listing and its price.
func (s *WalletService) InitiatePurchase(ctx context.Context, buyerID, listingID string) (*models.PurchaseIntent, error) {
	listing, err := s.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.Status != models.ListingActive {
		return nil, models.ErrListingUnavailable
	}
	if listing.SellerID == buyerID {
		return nil, models.ErrSelfPurchase
	}

	wallet, err := s.ledger.GetWallet(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if !wallet.CanAfford(listing.Price) {
		return nil, models.ErrInsufficientFunds
	}

	buyer, err := s.users.GetByID(ctx, buyerID)
	if err != nil {
		return nil, err
	}

	reference := uuid.New().String()
	price := listing.Price
	code, err := s.codes.Issue(ctx, buyer, models.PurposePayment, models.CodeBinding{
		Reference: &reference,
		TargetID:  &listing.ID,
		Amount:    &price,
	})
	if err != nil {
		return nil, fmt.Errorf("issue payment code: %w", err)
	}

	s.logger.Info("purchase initiated",
		slog.String("buyer_id", buyerID),
		slog.String("listing_id", listing.ID),
		slog.String("reference", reference))

	return &models.PurchaseIntent{
		Reference: reference,
		ListingID: listing.ID,
		Amount:    price,
		SellerID:  listing.SellerID,
		ExpiresAt: code.ExpiresAt,
	}, nil
}

// ConfirmPurchase settles a purchase in one transaction. The code, listing
// and both wallets are locked before anything is written, so a concurrent
// confirmation of the same reference waits and then sees the code used.
// A wrong code rolls the transaction back and is then counted against the
// code, so repeated guesses burn it.
func (s *WalletService) ConfirmPurchase(ctx context.Context, buyerID, reference, submitted string) (*models.Purchase, error) {
	if _, err := uuid.Parse(reference); err != nil {
		return nil, models.ErrInvalidCode
	}

	var (
		purchase   *models.Purchase
		mismatched *models.OneTimeCode
	)
	err := s.ledger.InTx(ctx, func(tx LedgerTx) error {
		code, err := tx.LockCode(ctx, buyerID, models.PurposePayment, reference)
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrInvalidCode
		}
		if err != nil {
			return err
		}
		now := s.now()
		switch {
		case code.Used:
			return models.ErrCodeAlreadyUsed
		case code.IsExpired(now):
			return models.ErrExpiredCode
		case !s.codes.Matches(code, submitted):
			mismatched = code
			return models.ErrCodeMismatch
		case code.TargetID == nil || code.Amount == nil:
			return models.ErrInvalidCode
		}

		listing, err := tx.LockListing(ctx, *code.TargetID)
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrListingUnavailable
		}
		if err != nil {
			return err
		}
		if listing.Status != models.ListingActive {
			return models.ErrListingUnavailable
		}
		if !listing.Price.Equal(*code.Amount) {
			return models.ErrPriceChanged
		}

		wallets, err := tx.LockWallets(ctx, buyerID, listing.SellerID)
		if err != nil {
			return err
		}
		buyerWallet, sellerWallet := wallets[buyerID], wallets[listing.SellerID]
		if !buyerWallet.CanAfford(listing.Price) {
			return models.ErrInsufficientFunds
		}

		purchase, err = s.settle(ctx, tx, listing, buyerWallet, sellerWallet, reference, now)
		if err != nil {
			return err
		}

		won, err := tx.ConsumeCode(ctx, code.ID)
		if err != nil {
			return err
		}
		if !won {
			return models.ErrCodeAlreadyUsed
		}
		return nil
	})
	if mismatched != nil {
		if _, recErr := s.codes.RecordMismatch(ctx, mismatched); recErr != nil {
			s.logger.Error("failed to record code mismatch",
				slog.String("reference", reference),
				slog.Any("error", recErr))
		}
	}
	if err != nil {
		s.auditLogger.Log(pkglogger.AuditEvent{
			Category:      pkglogger.AuditLedger,
			EventType:     "purchase_confirm_failed",
			UserID:        buyerID,
			FailureReason: err.Error(),
			Metadata:      map[string]string{"reference": reference},
		})
		return nil, err
	}

	s.auditLogger.Log(pkglogger.AuditEvent{
		Category:  pkglogger.AuditLedger,
		EventType: "purchase_settled",
		UserID:    buyerID,
		TargetID:  purchase.SellerID,
		Success:   true,
		Metadata: map[string]string{
			"reference":  reference,
			"listing_id": purchase.ListingID,
			"amount":     purchase.Price.StringFixed(2),
		},
	})
	return purchase, nil
}

// settle performs the writes of a purchase: both balance moves, both ledger
// rows sharing the reference and timestamp, the purchase row and the SOLD flip.
func (s *WalletService) settle(ctx context.Context, tx LedgerTx, listing *models.Listing, buyer, seller *models.Wallet, reference string, at time.Time) (*models.Purchase, error) {
	price := listing.Price
	buyDesc := fmt.Sprintf("Purchase of '%s'", listing.Title)
	sellDesc := fmt.Sprintf("Sale of '%s'", listing.Title)

	if _, err := tx.AdjustBalance(ctx, buyer.ID, price.Neg()); err != nil {
		return nil, err
	}
	debit, err := tx.InsertTransaction(ctx, &models.Transaction{
		WalletID:    buyer.ID,
		Amount:      price.Neg(),
		Type:        models.TransactionPurchase,
		Status:      models.TransactionCompleted,
		ReferenceID: reference,
		Description: &buyDesc,
		ListingID:   &listing.ID,
		CreatedAt:   at,
	})
	if err != nil {
		return nil, err
	}

	if _, err := tx.AdjustBalance(ctx, seller.ID, price); err != nil {
		return nil, err
	}
	if _, err := tx.InsertTransaction(ctx, &models.Transaction{
		WalletID:    seller.ID,
		Amount:      price,
		Type:        models.TransactionSale,
		Status:      models.TransactionCompleted,
		ReferenceID: reference,
		Description: &sellDesc,
		ListingID:   &listing.ID,
		CreatedAt:   at,
	}); err != nil {
		return nil, err
	}

	purchase, err := tx.InsertPurchase(ctx, &models.Purchase{
		ListingID:     listing.ID,
		BuyerID:       buyer.UserID,
		SellerID:      seller.UserID,
		TransactionID: debit.ID,
		Price:         price,
		PurchasedAt:   at,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.SetListingStatus(ctx, listing.ID, models.ListingSold); err != nil {
		return nil, err
	}
	return purchase, nil
}
