package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CodePurpose keeps codes from crossing flows: a reset code is never a payment code.
type CodePurpose string

const (
	PurposeEmailVerification CodePurpose = "EMAIL_VERIFICATION"
	PurposePasswordReset     CodePurpose = "PASSWORD_RESET"
	PurposePayment           CodePurpose = "PAYMENT"
)

// CodeBinding ties a code to the operation it authorises. Payment codes bind
// the transaction reference, the listing and the quoted amount.
type CodeBinding struct {
	Reference *string
	TargetID  *string
	Amount    *decimal.Decimal
}

// OneTimeCode is a short-lived numeric code bound to a subject and purpose.
// A code that collects too many FailedAttempts is burned by marking it Used.
type OneTimeCode struct {
	ID             string           `json:"id"`
	UserID         string           `json:"user_id"`
	Purpose        CodePurpose      `json:"purpose"`
	CodeHash       string           `json:"-"`
	Reference      *string          `json:"reference,omitempty"`
	TargetID       *string          `json:"target_id,omitempty"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Used           bool             `json:"used"`
	FailedAttempts int              `json:"-"`
	CreatedAt      time.Time        `json:"created_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
}

func (c *OneTimeCode) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// IsValid reports whether the code may still be consumed at now.
func (c *OneTimeCode) IsValid(now time.Time) bool {
	return !c.Used && !c.IsExpired(now)
}
