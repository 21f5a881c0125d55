package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/BradenHooton/agora/internal/database"
	"github.com/BradenHooton/agora/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CodeRepository stores hashed one-time codes.
type CodeRepository struct {
	db *database.DB
}

func NewCodeRepository(db *database.DB) *CodeRepository {
	return &CodeRepository{db: db}
}

const codeColumns = `id, user_id, purpose, code_hash, reference, target_id, amount, used, failed_attempts, created_at, expires_at`

func scanCodeRow(scanner rowScanner) (*models.OneTimeCode, error) {
	var c models.OneTimeCode
	err := scanner.Scan(
		&c.ID, &c.UserID, &c.Purpose, &c.CodeHash, &c.Reference, &c.TargetID, &c.Amount,
		&c.Used, &c.FailedAttempts, &c.CreatedAt, &c.ExpiresAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &c, nil
}

func (r *CodeRepository) Create(ctx context.Context, code *models.OneTimeCode) (*models.OneTimeCode, error) {
	code.ID = uuid.New().String()

	return scanCodeRow(r.db.Pool.QueryRow(ctx, `
		INSERT INTO one_time_codes (id, user_id, purpose, code_hash, reference, target_id, amount, used, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, $9)
		RETURNING `+codeColumns,
		code.ID, code.UserID, code.Purpose, code.CodeHash, code.Reference, code.TargetID, code.Amount,
		code.CreatedAt, code.ExpiresAt,
	))
}

// LatestUnused returns the newest unused code for the subject, purpose and
// reference, expired or not. A nil reference matches codes without one.
func (r *CodeRepository) LatestUnused(ctx context.Context, userID string, purpose models.CodePurpose, reference *string) (*models.OneTimeCode, error) {
	return scanCodeRow(r.db.Pool.QueryRow(ctx, `
		SELECT `+codeColumns+` FROM one_time_codes
		WHERE user_id = $1 AND purpose = $2 AND used = false
		  AND reference IS NOT DISTINCT FROM $3::uuid
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, purpose, reference))
}

// Consume marks the code used if nobody else has. It reports whether this
// caller won.
func (r *CodeRepository) Consume(ctx context.Context, id string) (bool, error) {
	return consumeCode(ctx, r.db.Pool, id)
}

func consumeCode(ctx context.Context, q database.Querier, id string) (bool, error) {
	result, err := q.Exec(ctx, `UPDATE one_time_codes SET used = true WHERE id = $1 AND used = false`, id)
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return result.RowsAffected() == 1, nil
}

// RecordFailure counts a mismatched submission against the code and burns it
// once maxAttempts is reached. It reports whether the code is now unusable.
func (r *CodeRepository) RecordFailure(ctx context.Context, id string, maxAttempts int) (bool, error) {
	var burned bool
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE one_time_codes
		SET failed_attempts = failed_attempts + 1,
		    used = failed_attempts + 1 >= $2
		WHERE id = $1 AND used = false
		RETURNING used
	`, id, maxAttempts).Scan(&burned)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, database.MapPostgresError(err)
	}
	return burned, nil
}

// DeleteExpired removes codes that expired before the cutoff.
func (r *CodeRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM one_time_codes WHERE expires_at < $1`, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
