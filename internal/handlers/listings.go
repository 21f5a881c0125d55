package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/agora/internal/models"
	"github.com/BradenHooton/agora/internal/services"
	pkghttp "github.com/BradenHooton/agora/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// CatalogServiceInterface defines listing operations.
type CatalogServiceInterface interface {
	CreateListing(ctx context.Context, sellerID string, in services.CreateListingInput) (*models.Listing, error)
	GetListing(ctx context.Context, viewerID, id string) (*models.Listing, error)
	ListActiveListings(ctx context.Context, limit, offset int) ([]*models.Listing, error)
	ListMyListings(ctx context.Context, sellerID string, limit, offset int) ([]*models.Listing, error)
	PublishListing(ctx context.Context, sellerID, id string) (*models.Listing, error)
	WithdrawListing(ctx context.Context, sellerID, id string) (*models.Listing, error)
	FlagListing(ctx context.Context, id string) (*models.Listing, error)
}

// ListingHandler serves the marketplace catalog.
type ListingHandler struct {
	service CatalogServiceInterface
	logger  *slog.Logger
}

func NewListingHandler(service CatalogServiceInterface, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{service: service, logger: logger}
}

type CreateListingRequest struct {
	Title       string          `json:"title" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=5000"`
	Price       decimal.Decimal `json:"price" validate:"positive_amount"`
	Publish     bool            `json:"publish"`
}

// Create handles POST /listings
func (h *ListingHandler) Create(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req CreateListingRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	listing, err := h.service.CreateListing(r.Context(), sellerID, services.CreateListingInput{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		Price:       req.Price,
		Publish:     req.Publish,
	})
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, listing)
}

// Get handles GET /listings/{id}
func (h *ListingHandler) Get(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := callerID(w, r)
	if !ok {
		return
	}

	listing, err := h.service.GetListing(r.Context(), viewerID, chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, listing)
}

// ListActive handles GET /listings
func (h *ListingHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	page := pkghttp.ParsePage(r)
	listings, err := h.service.ListActiveListings(r.Context(), page.Limit, page.Offset)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, listings)
}

// ListMine handles GET /listings/mine
func (h *ListingHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	sellerID, ok := callerID(w, r)
	if !ok {
		return
	}

	page := pkghttp.ParsePage(r)
	listings, err := h.service.ListMyListings(r.Context(), sellerID, page.Limit, page.Offset)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, listings)
}

// Publish handles POST /listings/{id}/publish
func (h *ListingHandler) Publish(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.PublishListing)
}

// Withdraw handles POST /listings/{id}/withdraw
func (h *ListingHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.WithdrawListing)
}

func (h *ListingHandler) transition(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (*models.Listing, error)) {
	sellerID, ok := callerID(w, r)
	if !ok {
		return
	}

	listing, err := op(r.Context(), sellerID, chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, listing)
}
