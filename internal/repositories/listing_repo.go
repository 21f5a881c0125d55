package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/agora/internal/database"
	"github.com/BradenHooton/agora/internal/models"
	"github.com/google/uuid"
)

type ListingRepository struct {
	db *database.DB
}

func NewListingRepository(db *database.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

const listingColumns = `id, seller_id, title, description, price, status, slug, created_at, updated_at`

func scanListingRow(scanner rowScanner) (*models.Listing, error) {
	var l models.Listing
	err := scanner.Scan(
		&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Price, &l.Status, &l.Slug,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &l, nil
}

func (r *ListingRepository) Create(ctx context.Context, listing *models.Listing) (*models.Listing, error) {
	listing.ID = uuid.New().String()
	now := time.Now().UTC()
	listing.CreatedAt = now
	listing.UpdatedAt = now

	return scanListingRow(r.db.Pool.QueryRow(ctx, `
		INSERT INTO listings (id, seller_id, title, description, price, status, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+listingColumns,
		listing.ID, listing.SellerID, listing.Title, listing.Description, listing.Price,
		listing.Status, listing.Slug, listing.CreatedAt, listing.UpdatedAt,
	))
}

func (r *ListingRepository) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	return scanListingRow(r.db.Pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id))
}

func (r *ListingRepository) ListByStatus(ctx context.Context, status models.ListingStatus, limit, offset int) ([]*models.Listing, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	return scanRows(rows, scanListingRow)
}

func (r *ListingRepository) ListBySeller(ctx context.Context, sellerID string, limit, offset int) ([]*models.Listing, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE seller_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, sellerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	return scanRows(rows, scanListingRow)
}

// Transition moves the listing from -> to only if it is still in from.
// A concurrent change yields ErrInvalidTransition.
func (r *ListingRepository) Transition(ctx context.Context, id string, from, to models.ListingStatus) (*models.Listing, error) {
	listing, err := scanListingRow(r.db.Pool.QueryRow(ctx, `
		UPDATE listings SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING `+listingColumns,
		to, id, from,
	))
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrInvalidTransition
	}
	return listing, err
}
