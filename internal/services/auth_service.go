package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/agora/internal/auth"
	"github.com/BradenHooton/agora/internal/models"
	pkgauth "github.com/BradenHooton/agora/pkg/auth"
	pkglogger "github.com/BradenHooton/agora/pkg/logger"
)

// CodeService issues and validates one-time codes.
type CodeService interface {
	CodeIssuer
	Validate(ctx context.Context, userID string, purpose models.CodePurpose, submitted string, reference *string) (*models.OneTimeCode, error)
}

// LoginGate is the login threat state machine.
type LoginGate interface {
	Check(ctx context.Context, username string) (*models.ThreatStatus, error)
	Evaluate(ctx context.Context, username, ip, userAgent string, success bool) (*models.ThreatStatus, error)
}

// LockedError carries the lock details for a rejected login.
type LockedError struct {
	Status *models.ThreatStatus
}

func (e *LockedError) Error() string {
	if e.Status != nil && e.Status.UnblockAt != nil {
		return fmt.Sprintf("%s, try again after %s", e.Status.Reason, e.Status.UnblockAt.Format(time.RFC3339))
	}
	return models.ErrAccountLocked.Error()
}

func (e *LockedError) Unwrap() error { return models.ErrAccountLocked }

var errInvalidCredentials = fmt.Errorf("%w: invalid username or password", models.ErrUnauthorized)

// dummyHash is compared against when the username does not exist so both
// paths pay for a bcrypt comparison.
var dummyHash = sync.OnceValue(func() string {
	hash, _ := pkgauth.HashPassword("not-a-real-password-0")
	return hash
})

// AuthResponse is returned by Login and Refresh.
type AuthResponse struct {
	*auth.TokenPair
	User *models.User `json:"user"`
}

// AuthService handles registration, verification, login and password reset.
type AuthService struct {
	users       UserRepository
	codes       CodeService
	gate        LoginGate
	tm          *auth.TokenManager
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewAuthService(users UserRepository, codes CodeService, gate LoginGate, tm *auth.TokenManager, timing *auth.TimingDelay, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		users:       users,
		codes:       codes,
		gate:        gate,
		tm:          tm,
		timing:      timing,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Register creates an inactive account and emails an EMAIL_VERIFICATION code.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	username = pkgauth.NormalizeUsername(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if err := pkgauth.ValidateUsername(username); err != nil {
		return nil, validationError(err.Error())
	}
	if email == "" {
		return nil, validationError("email is required")
	}
	if err := pkgauth.ValidatePassword(password); err != nil {
		var pve *pkgauth.PasswordValidationError
		if errors.As(err, &pve) {
			s.logger.Debug("password rejected", slog.Any("rules", pve.Errors))
			return nil, validationError(strings.Join(pve.Errors, "; "))
		}
		return nil, validationError(err.Error())
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username already taken", models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", models.ErrConflict)
	} else if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, err
	}

	// The account exists even if delivery fails; the user can ask for a resend.
	if _, err := s.codes.Issue(ctx, user, models.PurposeEmailVerification, models.CodeBinding{}); err != nil {
		s.logger.Error("failed to send verification code",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}

	s.logger.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("email", pkglogger.SanitizedEmail(email)))
	return user, nil
}

// VerifyEmail consumes an EMAIL_VERIFICATION code and activates the account.
func (s *AuthService) VerifyEmail(ctx context.Context, username, code string) error {
	user, err := s.users.GetByUsername(ctx, pkgauth.NormalizeUsername(username))
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrCodeExpiredOrNotFound
	}
	if err != nil {
		return err
	}
	if user.IsActive {
		return fmt.Errorf("%w: email already verified", models.ErrConflict)
	}

	if _, err := s.codes.Validate(ctx, user.ID, models.PurposeEmailVerification, code, nil); err != nil {
		return err
	}
	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return err
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "email_verified",
		UserID:    user.ID,
		Username:  user.Username,
		Success:   true,
	})
	return nil
}

// ResendVerification issues a fresh code. Unknown or active accounts are
// ignored so the endpoint cannot be used to enumerate usernames.
func (s *AuthService) ResendVerification(ctx context.Context, username string) error {
	user, err := s.users.GetByUsername(ctx, pkgauth.NormalizeUsername(username))
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.IsActive {
		return nil
	}
	_, err = s.codes.Issue(ctx, user, models.PurposeEmailVerification, models.CodeBinding{})
	return err
}

// Login runs the threat gate, checks credentials and issues a token pair.
func (s *AuthService) Login(ctx context.Context, username, password, ip, userAgent string) (*AuthResponse, error) {
	start := time.Now()
	username = pkgauth.NormalizeUsername(username)
	if username == "" || password == "" {
		return nil, errInvalidCredentials
	}

	status, err := s.gate.Check(ctx, username)
	if err != nil {
		return nil, err
	}
	if status.Locked {
		s.auditFailure(username, ip, userAgent, "account_locked")
		return nil, &LockedError{Status: status}
	}

	user, err := s.authenticate(ctx, username, password)
	if err != nil && !errors.Is(err, errInvalidCredentials) {
		return nil, err
	}
	ok := err == nil
	s.timing.WaitFrom(start, ok)

	status, evalErr := s.gate.Evaluate(ctx, username, ip, userAgent, ok)
	if evalErr != nil {
		return nil, evalErr
	}
	if status.Locked {
		s.auditFailure(username, ip, userAgent, "threat_detected")
		return nil, &LockedError{Status: status}
	}
	if !ok {
		s.auditFailure(username, ip, userAgent, "invalid_credentials")
		return nil, errInvalidCredentials
	}

	if !user.IsActive {
		s.auditFailure(username, ip, userAgent, "email_not_verified")
		return nil, models.ErrEmailNotVerified
	}

	pair, err := s.tm.GeneratePair(user)
	if err != nil {
		return nil, err
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "login_success",
		UserID:    user.ID,
		Username:  user.Username,
		IPAddress: ip,
		UserAgent: userAgent,
		Success:   true,
	})
	return &AuthResponse{TokenPair: pair, User: user}, nil
}

func (s *AuthService) authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		_ = pkgauth.ComparePassword(dummyHash(), password)
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, errInvalidCredentials
	}
	return user, nil
}

func (s *AuthService) auditFailure(username, ip, userAgent, reason string) {
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		Username:      username,
		IPAddress:     ip,
		UserAgent:     userAgent,
		Success:       false,
		FailureReason: reason,
	})
}

// Refresh exchanges a refresh token for a new pair.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.tm.ValidateToken(refreshToken, models.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: user no longer exists", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, models.ErrAccountDisabled
	}

	pair, err := s.tm.GeneratePair(user)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{TokenPair: pair, User: user}, nil
}

// RequestPasswordReset emails a PASSWORD_RESET code. Unknown emails succeed silently.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, models.ErrNotFound) {
		s.logger.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.codes.Issue(ctx, user, models.PurposePasswordReset, models.CodeBinding{})
	return err
}

// ResetPassword consumes a PASSWORD_RESET code and sets a new password.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		var pve *pkgauth.PasswordValidationError
		if errors.As(err, &pve) {
			return validationError(strings.Join(pve.Errors, "; "))
		}
		return validationError(err.Error())
	}

	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrCodeExpiredOrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := s.codes.Validate(ctx, user.ID, models.PurposePasswordReset, code, nil); err != nil {
		return err
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}

	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType: "password_reset",
		UserID:    user.ID,
		Username:  user.Username,
		Success:   true,
	})
	return nil
}
