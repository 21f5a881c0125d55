package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ListingStatus string

const (
	ListingDraft     ListingStatus = "DRAFT"
	ListingActive    ListingStatus = "ACTIVE"
	ListingSold      ListingStatus = "SOLD"
	ListingWithdrawn ListingStatus = "WITHDRAWN"
	ListingFlagged   ListingStatus = "FLAGGED"
)

// listingTransitions is the one-way status machine. Terminal states have no entry.
var listingTransitions = map[ListingStatus][]ListingStatus{
	ListingDraft:  {ListingActive},
	ListingActive: {ListingSold, ListingWithdrawn, ListingFlagged},
}

// CanTransition reports whether from -> to is a defined transition.
func (s ListingStatus) CanTransition(to ListingStatus) bool {
	for _, next := range listingTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is defined.
func (s ListingStatus) IsTerminal() bool {
	return len(listingTransitions[s]) == 0
}

type Listing struct {
	ID          string          `json:"id"`
	SellerID    string          `json:"seller_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Status      ListingStatus   `json:"status"`
	Slug        string          `json:"slug"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
