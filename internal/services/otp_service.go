package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/BradenHooton/agora/internal/config"
	"github.com/BradenHooton/agora/internal/models"
	"github.com/pquerna/otp"
)

// CodeRepository stores hashed one-time codes.
type CodeRepository interface {
	Create(ctx context.Context, code *models.OneTimeCode) (*models.OneTimeCode, error)
	LatestUnused(ctx context.Context, userID string, purpose models.CodePurpose, reference *string) (*models.OneTimeCode, error)
	Consume(ctx context.Context, id string) (bool, error)
	RecordFailure(ctx context.Context, id string, maxAttempts int) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

var codeSpace = big.NewInt(1_000_000)

// generateCode returns six uniformly random digits.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return otp.DigitsSix.Format(int32(n.Int64())), nil
}

// hashCode returns the hex HMAC-SHA256 of code keyed by secret.
func hashCode(secret []byte, code string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(code))
	return hex.EncodeToString(mac.Sum(nil))
}

// OTPService issues and validates six-digit codes bound to a user and purpose.
type OTPService struct {
	repo        CodeRepository
	mailer      Mailer
	expiry      time.Duration
	secret      []byte
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
	generate    func() (string, error)
}

func NewOTPService(repo CodeRepository, mailer Mailer, cfg config.OTPConfig, logger *slog.Logger) *OTPService {
	return &OTPService{
		repo:        repo,
		mailer:      mailer,
		expiry:      cfg.Expiry,
		secret:      []byte(cfg.Secret),
		maxAttempts: cfg.MaxAttempts,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		generate:    generateCode,
	}
}

// Issue creates a code for user and emails it. The plaintext is never returned.
func (s *OTPService) Issue(ctx context.Context, user *models.User, purpose models.CodePurpose, binding models.CodeBinding) (*models.OneTimeCode, error) {
	plain, err := s.generate()
	if err != nil {
		return nil, err
	}

	now := s.now()
	code, err := s.repo.Create(ctx, &models.OneTimeCode{
		UserID:    user.ID,
		Purpose:   purpose,
		CodeHash:  hashCode(s.secret, plain),
		Reference: binding.Reference,
		TargetID:  binding.TargetID,
		Amount:    binding.Amount,
		CreatedAt: now,
		ExpiresAt: now.Add(s.expiry),
	})
	if err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}

	email, err := buildCodeEmail(user.Email, purpose, plain, code.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := s.mailer.Send(ctx, email); err != nil {
		return nil, fmt.Errorf("deliver code: %w", err)
	}

	s.logger.Info("one-time code issued",
		slog.String("user_id", user.ID),
		slog.String("purpose", string(purpose)))
	return code, nil
}

// Validate consumes the newest unused code for user and purpose if submitted
// matches it. Only one concurrent caller can consume a given code. Each
// mismatch counts against the code until it is burned.
func (s *OTPService) Validate(ctx context.Context, userID string, purpose models.CodePurpose, submitted string, reference *string) (*models.OneTimeCode, error) {
	code, err := s.repo.LatestUnused(ctx, userID, purpose, reference)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrCodeExpiredOrNotFound
	}
	if err != nil {
		return nil, err
	}
	if code.IsExpired(s.now()) {
		return nil, models.ErrCodeExpiredOrNotFound
	}
	if !s.Matches(code, submitted) {
		if _, err := s.RecordMismatch(ctx, code); err != nil {
			return nil, err
		}
		return nil, models.ErrCodeMismatch
	}

	won, err := s.repo.Consume(ctx, code.ID)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, models.ErrCodeExpiredOrNotFound
	}
	code.Used = true
	return code, nil
}

// Matches compares a submitted code against the stored hash in constant time.
func (s *OTPService) Matches(code *models.OneTimeCode, submitted string) bool {
	return hmac.Equal([]byte(hashCode(s.secret, submitted)), []byte(code.CodeHash))
}

// RecordMismatch counts a failed submission against code and reports whether
// the code has been burned.
func (s *OTPService) RecordMismatch(ctx context.Context, code *models.OneTimeCode) (bool, error) {
	burned, err := s.repo.RecordFailure(ctx, code.ID, s.maxAttempts)
	if err != nil {
		return false, fmt.Errorf("record code mismatch: %w", err)
	}
	if burned {
		s.logger.Warn("one-time code burned after repeated mismatches",
			slog.String("user_id", code.UserID),
			slog.String("purpose", string(code.Purpose)))
	}
	return burned, nil
}

// PurgeExpired deletes codes that expired before now.
func (s *OTPService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
