package models

import "errors"

// Error kinds. Every domain error wraps exactly one of these so that the
// HTTP layer can map it to a stable machine-readable code.
var (
	ErrBadRequest     = errors.New("validation error")
	ErrNotFound       = errors.New("resource not found")
	ErrForbidden      = errors.New("permission denied")
	ErrConflict       = errors.New("conflict")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInternalServer = errors.New("internal server error")
)

// Account state errors
var (
	ErrAccountLocked    = errors.New("account is temporarily locked")
	ErrAccountDisabled  = wrap(ErrForbidden, "account is disabled")
	ErrEmailNotVerified = wrap(ErrForbidden, "email address not verified")
)

// One-time code errors
var (
	ErrInvalidCode           = wrap(ErrBadRequest, "no pending code for this reference")
	ErrExpiredCode           = wrap(ErrBadRequest, "code has expired")
	ErrCodeMismatch          = wrap(ErrBadRequest, "code does not match")
	ErrCodeExpiredOrNotFound = wrap(ErrConflict, "code expired, already used or not found")
	ErrCodeAlreadyUsed       = wrap(ErrConflict, "code already used")
)

// Ledger and catalog errors
var (
	ErrInvalidAmount      = wrap(ErrBadRequest, "amount must be positive")
	ErrInsufficientFunds  = wrap(ErrConflict, "insufficient funds")
	ErrListingUnavailable = wrap(ErrConflict, "listing is not available for purchase")
	ErrSelfPurchase       = wrap(ErrBadRequest, "cannot purchase your own listing")
	ErrInvalidTransition  = wrap(ErrConflict, "invalid listing status transition")
	ErrPriceChanged       = wrap(ErrConflict, "listing price changed since purchase was initiated")
)

// Trust graph errors
var (
	ErrSelfRelation        = wrap(ErrBadRequest, "cannot target yourself")
	ErrAlreadyBlocked      = wrap(ErrConflict, "user already blocked")
	ErrFriendshipExists    = wrap(ErrConflict, "friendship already exists")
	ErrBlockedRelationship = wrap(ErrForbidden, "a block exists between these users")
	ErrSenderBlocked       = wrap(ErrForbidden, "you have blocked this user, unblock them to send messages")
)

// kindError carries a human message while matching its kind with errors.Is.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func wrap(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Kind returns the taxonomy kind of err, defaulting to ErrInternalServer.
func Kind(err error) error {
	for _, k := range []error{ErrBadRequest, ErrNotFound, ErrForbidden, ErrConflict, ErrUnauthorized, ErrAccountLocked} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternalServer
}
