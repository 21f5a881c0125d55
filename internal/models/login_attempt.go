package models

import "time"

// LoginAttempt is keyed by the submitted username, not a user id, so attempts
// against unknown or deleted accounts are tracked too. Cleared attempts were
// absorbed by an unlock and no longer count toward any trigger.
type LoginAttempt struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	Success   bool      `json:"success"`
	Flagged   bool      `json:"flagged"`
	Cleared   bool      `json:"cleared"`
	Timestamp time.Time `json:"timestamp"`
}

// ThreatStatus is the result of evaluating a username's recent attempts.
type ThreatStatus struct {
	Username  string     `json:"username"`
	Locked    bool       `json:"locked"`
	Reason    string     `json:"reason,omitempty"`
	UnblockAt *time.Time `json:"unblock_at,omitempty"`
}
