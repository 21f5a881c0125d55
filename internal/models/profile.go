package models

import "time"

type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "UNVERIFIED"
	VerificationPending    VerificationStatus = "PENDING"
	VerificationVerified   VerificationStatus = "VERIFIED"
	VerificationRejected   VerificationStatus = "REJECTED"
)

func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationUnverified, VerificationPending, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// Profile is 1:1 with User.
type Profile struct {
	UserID             string             `json:"user_id"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	IsVerified         bool               `json:"is_verified"`
	EmailVerified      bool               `json:"email_verified"`
	VerificationNotes  *string            `json:"verification_notes,omitempty"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// Normalize recomputes derived fields. Call before every write.
func (p *Profile) Normalize() {
	p.IsVerified = p.VerificationStatus == VerificationVerified
}
