package repositories

import (
	"context"
	"time"

	"github.com/BradenHooton/agora/internal/database"
	"github.com/BradenHooton/agora/internal/models"
)

type ProfileRepository struct {
	db *database.DB
}

func NewProfileRepository(db *database.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `user_id, verification_status, is_verified, email_verified, verification_notes, verified_at, updated_at`

func scanProfileRow(scanner rowScanner) (*models.Profile, error) {
	var p models.Profile
	err := scanner.Scan(
		&p.UserID, &p.VerificationStatus, &p.IsVerified, &p.EmailVerified,
		&p.VerificationNotes, &p.VerifiedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &p, nil
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID string) (*models.Profile, error) {
	return scanProfileRow(r.db.Pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
}

// Update writes the verification fields. IsVerified is always recomputed from
// the status before the write.
func (r *ProfileRepository) Update(ctx context.Context, p *models.Profile) (*models.Profile, error) {
	p.Normalize()
	p.UpdatedAt = time.Now().UTC()

	return scanProfileRow(r.db.Pool.QueryRow(ctx, `
		UPDATE profiles
		SET verification_status = $1, is_verified = $2, verification_notes = $3, verified_at = $4, updated_at = $5
		WHERE user_id = $6
		RETURNING `+profileColumns,
		p.VerificationStatus, p.IsVerified, p.VerificationNotes, p.VerifiedAt, p.UpdatedAt, p.UserID,
	))
}
