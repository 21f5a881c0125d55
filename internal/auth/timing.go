package auth

import (
	"crypto/rand"
	"math/big"
	"time"
)

// TimingConfig controls the delay applied to failed logins.
type TimingConfig struct {
	BaseDelay   time.Duration
	RandomDelay time.Duration
}

// TimingDelay pads failed authentications so unknown usernames and wrong
// passwords take about the same time.
type TimingDelay struct {
	config TimingConfig
	sleep  func(time.Duration)
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config, sleep: time.Sleep}
}

func (td *TimingDelay) target() time.Duration {
	total := td.config.BaseDelay
	if td.config.RandomDelay > 0 {
		if n, err := rand.Int(rand.Reader, big.NewInt(int64(td.config.RandomDelay))); err == nil {
			total += time.Duration(n.Int64())
		}
	}
	return total
}

// WaitFrom sleeps until at least the target delay has elapsed since start.
// Successful attempts return immediately.
func (td *TimingDelay) WaitFrom(start time.Time, success bool) {
	if success || td == nil {
		return
	}
	if remaining := td.target() - time.Since(start); remaining > 0 {
		td.sleep(remaining)
	}
}
