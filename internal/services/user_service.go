package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/agora/internal/models"
	pkglogger "github.com/BradenHooton/agora/pkg/logger"
)

// UserRepository is the credential store.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	SetActive(ctx context.Context, id string, active bool) error
	MarkEmailVerified(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// ProfileRepository stores the 1:1 profile rows.
type ProfileRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.Profile, error)
	Update(ctx context.Context, p *models.Profile) (*models.Profile, error)
}

// UserService covers profile reads and admin account management.
type UserService struct {
	users       UserRepository
	profiles    ProfileRepository
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

func NewUserService(users UserRepository, profiles ProfileRepository, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *UserService {
	return &UserService{
		users:       users,
		profiles:    profiles,
		logger:      logger,
		auditLogger: auditLogger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return s.profiles.GetByUserID(ctx, userID)
}

// SetVerificationStatus moves a profile through the identity verification
// states. IsVerified is derived from the status on write.
func (s *UserService) SetVerificationStatus(ctx context.Context, adminID, userID string, status models.VerificationStatus, notes string) (*models.Profile, error) {
	if !status.Valid() {
		return nil, validationError(fmt.Sprintf("unknown verification status %q", status))
	}

	profile, err := s.profiles.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	profile.VerificationStatus = status
	if notes = strings.TrimSpace(notes); notes != "" {
		profile.VerificationNotes = &notes
	}
	if status == models.VerificationVerified {
		now := s.now()
		profile.VerifiedAt = &now
	} else {
		profile.VerifiedAt = nil
	}

	updated, err := s.profiles.Update(ctx, profile)
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(pkglogger.AuditEvent{
		Category:  pkglogger.AuditAdmin,
		EventType: "verification_status_changed",
		UserID:    adminID,
		TargetID:  userID,
		Success:   true,
		Metadata:  map[string]string{"status": string(status)},
	})
	return updated, nil
}

// SetActive enables or disables an account.
func (s *UserService) SetActive(ctx context.Context, adminID, userID string, active bool) error {
	if adminID == userID && !active {
		return fmt.Errorf("%w: cannot disable your own account", models.ErrBadRequest)
	}
	if err := s.users.SetActive(ctx, userID, active); err != nil {
		return err
	}

	s.logger.Info("account status changed",
		slog.String("user_id", userID),
		slog.Bool("active", active))
	s.auditLogger.Log(pkglogger.AuditEvent{
		Category:  pkglogger.AuditAdmin,
		EventType: "account_status_changed",
		UserID:    adminID,
		TargetID:  userID,
		Success:   true,
		Metadata:  map[string]string{"active": fmt.Sprint(active)},
	})
	return nil
}
