package repositories

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/BradenHooton/agora/internal/database"
	"github.com/BradenHooton/agora/internal/models"
	"github.com/BradenHooton/agora/internal/services"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerRepository owns wallets, transactions and purchases. Money-moving
// work runs through InTx so every row touched is locked in one transaction.
type LedgerRepository struct {
	db *database.DB
}

func NewLedgerRepository(db *database.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

const walletColumns = `id, user_id, balance, created_at, updated_at`

func scanWalletRow(scanner rowScanner) (*models.Wallet, error) {
	var w models.Wallet
	if err := scanner.Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &w, nil
}

const transactionColumns = `id, wallet_id, amount, transaction_type, status, reference_id, description, listing_id, created_at`

func scanTransactionRow(scanner rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	err := scanner.Scan(
		&t.ID, &t.WalletID, &t.Amount, &t.Type, &t.Status, &t.ReferenceID,
		&t.Description, &t.ListingID, &t.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &t, nil
}

const purchaseColumns = `id, listing_id, buyer_id, seller_id, transaction_id, purchase_price, purchased_at`

func scanPurchaseRow(scanner rowScanner) (*models.Purchase, error) {
	var p models.Purchase
	err := scanner.Scan(&p.ID, &p.ListingID, &p.BuyerID, &p.SellerID, &p.TransactionID, &p.Price, &p.PurchasedAt)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &p, nil
}

// ensureWallet creates the user's wallet if it does not exist yet.
func ensureWallet(ctx context.Context, q database.Querier, userID string) error {
	_, err := q.Exec(ctx, `
		INSERT INTO wallets (id, user_id, balance) VALUES ($1, $2, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.New().String(), userID)
	return database.MapPostgresError(err)
}

// GetWallet returns the user's wallet, creating an empty one on first access.
func (r *LedgerRepository) GetWallet(ctx context.Context, userID string) (*models.Wallet, error) {
	if err := ensureWallet(ctx, r.db.Pool, userID); err != nil {
		return nil, err
	}
	return scanWalletRow(r.db.Pool.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID))
}

func (r *LedgerRepository) ListTransactions(ctx context.Context, walletID string, limit, offset int) ([]*models.Transaction, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE wallet_id = $1 ORDER BY created_at DESC, id LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return scanRows(rows, scanTransactionRow)
}

// ListPurchases returns purchases where userID is the buyer, or the seller when asSeller is set.
func (r *LedgerRepository) ListPurchases(ctx context.Context, userID string, asSeller bool, limit, offset int) ([]*models.Purchase, error) {
	column := "buyer_id"
	if asSeller {
		column = "seller_id"
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+purchaseColumns+` FROM purchases
		WHERE `+column+` = $1 ORDER BY purchased_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases: %w", err)
	}
	return scanRows(rows, scanPurchaseRow)
}

// InTx runs fn with a transaction-bound ledger. Any error rolls everything back.
func (r *LedgerRepository) InTx(ctx context.Context, fn func(services.LedgerTx) error) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		return fn(&ledgerTx{tx: tx})
	})
}

type ledgerTx struct {
	tx pgx.Tx
}

// LockCode locks the newest code for the reference, used or not, so a replay
// can be told apart from an unknown reference.
func (l *ledgerTx) LockCode(ctx context.Context, userID string, purpose models.CodePurpose, reference string) (*models.OneTimeCode, error) {
	return scanCodeRow(l.tx.QueryRow(ctx, `
		SELECT `+codeColumns+` FROM one_time_codes
		WHERE user_id = $1 AND purpose = $2 AND reference = $3
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, userID, purpose, reference))
}

func (l *ledgerTx) ConsumeCode(ctx context.Context, id string) (bool, error) {
	return consumeCode(ctx, l.tx, id)
}

func (l *ledgerTx) LockListing(ctx context.Context, id string) (*models.Listing, error) {
	return scanListingRow(l.tx.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1 FOR UPDATE`, id))
}

func (l *ledgerTx) SetListingStatus(ctx context.Context, id string, status models.ListingStatus) error {
	_, err := l.tx.Exec(ctx, `UPDATE listings SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
	return database.MapPostgresError(err)
}

// LockWallets locks the wallets of userIDs in ascending user id order so two
// trades between the same pair can never deadlock.
func (l *ledgerTx) LockWallets(ctx context.Context, userIDs ...string) (map[string]*models.Wallet, error) {
	ordered := slices.Clone(userIDs)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	wallets := make(map[string]*models.Wallet, len(ordered))
	for _, userID := range ordered {
		if err := ensureWallet(ctx, l.tx, userID); err != nil {
			return nil, err
		}
		w, err := scanWalletRow(l.tx.QueryRow(ctx, `
			SELECT `+walletColumns+` FROM wallets WHERE user_id = $1 FOR UPDATE
		`, userID))
		if err != nil {
			return nil, err
		}
		wallets[userID] = w
	}
	return wallets, nil
}

// AdjustBalance adds delta to the wallet. The balance CHECK constraint turns
// an overdraft into ErrInsufficientFunds.
func (l *ledgerTx) AdjustBalance(ctx context.Context, walletID string, delta decimal.Decimal) (*models.Wallet, error) {
	return scanWalletRow(l.tx.QueryRow(ctx, `
		UPDATE wallets SET balance = balance + $1, updated_at = NOW() WHERE id = $2
		RETURNING `+walletColumns,
		delta, walletID,
	))
}

func (l *ledgerTx) InsertTransaction(ctx context.Context, t *models.Transaction) (*models.Transaction, error) {
	t.ID = uuid.New().String()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return scanTransactionRow(l.tx.QueryRow(ctx, `
		INSERT INTO transactions (id, wallet_id, amount, transaction_type, status, reference_id, description, listing_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+transactionColumns,
		t.ID, t.WalletID, t.Amount, t.Type, t.Status, t.ReferenceID, t.Description, t.ListingID, t.CreatedAt,
	))
}

func (l *ledgerTx) InsertPurchase(ctx context.Context, p *models.Purchase) (*models.Purchase, error) {
	p.ID = uuid.New().String()
	purchase, err := scanPurchaseRow(l.tx.QueryRow(ctx, `
		INSERT INTO purchases (id, listing_id, buyer_id, seller_id, transaction_id, purchase_price, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+purchaseColumns,
		p.ID, p.ListingID, p.BuyerID, p.SellerID, p.TransactionID, p.Price, p.PurchasedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("record purchase: %w", err)
	}
	return purchase, nil
}
