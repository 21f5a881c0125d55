package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/agora/internal/config"
	"github.com/BradenHooton/agora/internal/models"
)

// LoginAttemptRepository stores the per-username attempt history.
type LoginAttemptRepository interface {
	Record(ctx context.Context, attempt *models.LoginAttempt) error
	ListSince(ctx context.Context, username string, since time.Time) ([]*models.LoginAttempt, error)
	FlagSince(ctx context.Context, username string, since time.Time) (int64, error)
	ClearFlags(ctx context.Context, username string) (int64, error)
	DeleteForUsername(ctx context.Context, username string) (int64, error)
	ListFlaggedUsernames(ctx context.Context, since time.Time) ([]string, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Threat reasons
const (
	ReasonExcessiveFailures = "Excessive failed login attempts"
	ReasonRapidAttempts     = "Too many rapid login attempts"
	ReasonMultipleIPs       = "Multiple IP addresses used for login"
	ReasonFlagged           = "Suspicious login activity detected"
)

// ThreatService is the per-username login gate. Every login first calls
// Check, then reports its outcome through Evaluate.
type ThreatService struct {
	repo   LoginAttemptRepository
	cfg    config.ThreatConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewThreatService(repo LoginAttemptRepository, cfg config.ThreatConfig, logger *slog.Logger) *ThreatService {
	return &ThreatService{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Check reports whether username is currently locked. Flags whose auto-unblock
// time has passed are cleared here.
func (s *ThreatService) Check(ctx context.Context, username string) (*models.ThreatStatus, error) {
	now := s.now()
	attempts, err := s.repo.ListSince(ctx, username, now.Add(-s.cfg.Window))
	if err != nil {
		return nil, fmt.Errorf("load login attempts: %w", err)
	}

	var lastFlagged *time.Time
	for _, a := range attempts {
		if a.Flagged {
			ts := a.Timestamp
			lastFlagged = &ts
		}
	}

	status := &models.ThreatStatus{Username: username}
	if lastFlagged == nil {
		return status, nil
	}

	unblockAt := lastFlagged.Add(s.cfg.AutoUnblock)
	if now.Before(unblockAt) {
		status.Locked = true
		status.Reason = ReasonFlagged
		status.UnblockAt = &unblockAt
		return status, nil
	}

	if _, err := s.repo.ClearFlags(ctx, username); err != nil {
		return nil, fmt.Errorf("clear expired flags: %w", err)
	}
	s.logger.Info("login lock expired", slog.String("username", username))
	return status, nil
}

// Evaluate records an attempt and runs the triggers against the uncleared
// attempts that preceded it. When any trigger fires, every uncleared attempt
// in the window is flagged and the returned status is locked.
func (s *ThreatService) Evaluate(ctx context.Context, username, ip, userAgent string, success bool) (*models.ThreatStatus, error) {
	now := s.now()
	since := now.Add(-s.cfg.Window)

	history, err := s.repo.ListSince(ctx, username, since)
	if err != nil {
		return nil, fmt.Errorf("load login attempts: %w", err)
	}
	prior := uncleared(history)

	if err := s.repo.Record(ctx, &models.LoginAttempt{
		Username:  username,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   success,
		Timestamp: now,
	}); err != nil {
		return nil, fmt.Errorf("record login attempt: %w", err)
	}

	status := &models.ThreatStatus{Username: username}
	reason := s.trigger(prior, ip)
	if reason == "" {
		return status, nil
	}

	if _, err := s.repo.FlagSince(ctx, username, since); err != nil {
		return nil, fmt.Errorf("flag login attempts: %w", err)
	}

	unblockAt := now.Add(s.cfg.AutoUnblock)
	status.Locked = true
	status.Reason = reason
	status.UnblockAt = &unblockAt

	s.logger.Warn("suspicious login activity",
		slog.String("username", username),
		slog.String("reason", reason),
		slog.Int("attempts_in_window", len(prior)+1))
	return status, nil
}

// uncleared drops attempts absorbed by an earlier unlock.
func uncleared(attempts []*models.LoginAttempt) []*models.LoginAttempt {
	live := make([]*models.LoginAttempt, 0, len(attempts))
	for _, a := range attempts {
		if !a.Cleared {
			live = append(live, a)
		}
	}
	return live
}

// trigger returns the first matching reason, or "" when prior looks benign.
func (s *ThreatService) trigger(prior []*models.LoginAttempt, ip string) string {
	failures := 0
	for _, a := range prior {
		if !a.Success {
			failures++
		}
	}
	if failures >= s.cfg.MaxFailed-1 {
		return ReasonExcessiveFailures
	}

	if len(prior) >= s.cfg.MaxRapid {
		span := prior[len(prior)-1].Timestamp.Sub(prior[0].Timestamp)
		if span < s.cfg.RapidWindow {
			return ReasonRapidAttempts
		}
	}

	if ip != "" {
		ips := make(map[string]struct{})
		for _, a := range prior {
			if a.IPAddress != "" {
				ips[a.IPAddress] = struct{}{}
			}
		}
		ips[ip] = struct{}{}
		if len(ips) >= s.cfg.SuspiciousIPCount {
			return ReasonMultipleIPs
		}
	}
	return ""
}

// Unlock clears every flag for username. The cleared history no longer counts
// toward the triggers, so the next login starts from a clean window.
func (s *ThreatService) Unlock(ctx context.Context, username string) (int64, error) {
	n, err := s.repo.ClearFlags(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("clear flags: %w", err)
	}
	s.logger.Info("login flags cleared", slog.String("username", username), slog.Int64("attempts", n))
	return n, nil
}

// DeleteHistory removes every recorded attempt for username.
func (s *ThreatService) DeleteHistory(ctx context.Context, username string) (int64, error) {
	n, err := s.repo.DeleteForUsername(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("delete login attempts: %w", err)
	}
	s.logger.Info("login history deleted", slog.String("username", username), slog.Int64("attempts", n))
	return n, nil
}

// ListLocked returns the current status of every username flagged inside the window.
func (s *ThreatService) ListLocked(ctx context.Context) ([]*models.ThreatStatus, error) {
	usernames, err := s.repo.ListFlaggedUsernames(ctx, s.now().Add(-s.cfg.Window))
	if err != nil {
		return nil, fmt.Errorf("list flagged usernames: %w", err)
	}

	statuses := make([]*models.ThreatStatus, 0, len(usernames))
	for _, username := range usernames {
		status, err := s.Check(ctx, username)
		if err != nil {
			return nil, err
		}
		if status.Locked {
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

// PurgeHistory drops unflagged attempts older than the retention period.
func (s *ThreatService) PurgeHistory(ctx context.Context) (int64, error) {
	return s.repo.DeleteOlderThan(ctx, s.now().Add(-s.cfg.AttemptRetention))
}
