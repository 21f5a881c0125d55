package services

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BradenHooton/agora/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListingRepository stores marketplace listings.
type ListingRepository interface {
	Create(ctx context.Context, listing *models.Listing) (*models.Listing, error)
	GetByID(ctx context.Context, id string) (*models.Listing, error)
	ListByStatus(ctx context.Context, status models.ListingStatus, limit, offset int) ([]*models.Listing, error)
	ListBySeller(ctx context.Context, sellerID string, limit, offset int) ([]*models.Listing, error)
	Transition(ctx context.Context, id string, from, to models.ListingStatus) (*models.Listing, error)
}

// MaxPrice is the largest price a NUMERIC(12,2) column holds.
var MaxPrice = decimal.RequireFromString("9999999999.99")

// CreateListingInput describes a new listing.
type CreateListingInput struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Publish     bool
}

// CatalogService manages listings and their status machine.
type CatalogService struct {
	repo   ListingRepository
	logger *slog.Logger
}

func NewCatalogService(repo ListingRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: logger}
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// slugify builds a unique, URL-safe slug from title.
func slugify(title string) string {
	base := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(title), "-"), "-")
	if len(base) > 60 {
		base = strings.TrimRight(base[:60], "-")
	}
	if base == "" {
		base = "listing"
	}
	return base + "-" + uuid.New().String()[:8]
}

func (s *CatalogService) CreateListing(ctx context.Context, sellerID string, in CreateListingInput) (*models.Listing, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validationError("title is required")
	}
	if !in.Price.IsPositive() {
		return nil, models.ErrInvalidAmount
	}
	if in.Price.GreaterThan(MaxPrice) || !in.Price.Equal(in.Price.Round(2)) {
		return nil, validationError("price must have at most two decimal places and fit 10 integer digits")
	}

	status := models.ListingDraft
	if in.Publish {
		status = models.ListingActive
	}

	listing, err := s.repo.Create(ctx, &models.Listing{
		SellerID:    sellerID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price,
		Status:      status,
		Slug:        slugify(title),
	})
	if err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}

	s.logger.Info("listing created",
		slog.String("listing_id", listing.ID),
		slog.String("status", string(listing.Status)))
	return listing, nil
}

// GetListing returns the listing. Drafts are visible to their seller only.
func (s *CatalogService) GetListing(ctx context.Context, viewerID, id string) (*models.Listing, error) {
	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if listing.Status == models.ListingDraft && listing.SellerID != viewerID {
		return nil, models.ErrNotFound
	}
	return listing, nil
}

func (s *CatalogService) ListActiveListings(ctx context.Context, limit, offset int) ([]*models.Listing, error) {
	return s.repo.ListByStatus(ctx, models.ListingActive, limit, offset)
}

func (s *CatalogService) ListMyListings(ctx context.Context, sellerID string, limit, offset int) ([]*models.Listing, error) {
	return s.repo.ListBySeller(ctx, sellerID, limit, offset)
}

// transition applies from -> to after the ownership check in allow.
func (s *CatalogService) transition(ctx context.Context, id string, to models.ListingStatus, allow func(*models.Listing) error) (*models.Listing, error) {
	listing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := allow(listing); err != nil {
		return nil, err
	}
	if !listing.Status.CanTransition(to) {
		return nil, models.ErrInvalidTransition
	}

	updated, err := s.repo.Transition(ctx, id, listing.Status, to)
	if err != nil {
		return nil, err
	}
	s.logger.Info("listing status changed",
		slog.String("listing_id", id),
		slog.String("from", string(listing.Status)),
		slog.String("to", string(to)))
	return updated, nil
}

func sellerOnly(sellerID string) func(*models.Listing) error {
	return func(l *models.Listing) error {
		if l.SellerID != sellerID {
			return models.ErrForbidden
		}
		return nil
	}
}

// PublishListing moves a draft to ACTIVE.
func (s *CatalogService) PublishListing(ctx context.Context, sellerID, id string) (*models.Listing, error) {
	return s.transition(ctx, id, models.ListingActive, sellerOnly(sellerID))
}

// WithdrawListing lets the seller take an ACTIVE listing off the market.
func (s *CatalogService) WithdrawListing(ctx context.Context, sellerID, id string) (*models.Listing, error) {
	return s.transition(ctx, id, models.ListingWithdrawn, sellerOnly(sellerID))
}

// FlagListing is an admin moderation action on an ACTIVE listing.
func (s *CatalogService) FlagListing(ctx context.Context, id string) (*models.Listing, error) {
	return s.transition(ctx, id, models.ListingFlagged, func(*models.Listing) error { return nil })
}
