package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/agora/internal/database"
	"github.com/BradenHooton/agora/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const loginAttemptColumns = `id, username, ip_address, user_agent, success, flagged, cleared, timestamp`

// LoginAttemptRepository persists the per-username attempt history the threat
// evaluator works from.
type LoginAttemptRepository struct {
	db *database.DB
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{db: db}
}

func scanLoginAttemptRow(scanner rowScanner) (*models.LoginAttempt, error) {
	var a models.LoginAttempt
	if err := scanner.Scan(&a.ID, &a.Username, &a.IPAddress, &a.UserAgent, &a.Success, &a.Flagged, &a.Cleared, &a.Timestamp); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &a, nil
}

// Record stores an attempt. ID and Timestamp are filled in when empty.
func (r *LoginAttemptRepository) Record(ctx context.Context, attempt *models.LoginAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = time.Now().UTC()
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO login_attempts (id, username, ip_address, user_agent, success, flagged, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, attempt.ID, attempt.Username, attempt.IPAddress, attempt.UserAgent, attempt.Success, attempt.Flagged, attempt.Timestamp)
	return database.MapPostgresError(err)
}

// ListSince returns attempts for username at or after since, oldest first.
func (r *LoginAttemptRepository) ListSince(ctx context.Context, username string, since time.Time) ([]*models.LoginAttempt, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+loginAttemptColumns+`
		FROM login_attempts
		WHERE username = $1 AND timestamp >= $2
		ORDER BY timestamp ASC
	`, username, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query login attempts: %w", err)
	}
	return scanRows(rows, scanLoginAttemptRow)
}

// FlagSince marks every uncleared attempt in the window as flagged.
func (r *LoginAttemptRepository) FlagSince(ctx context.Context, username string, since time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `
		UPDATE login_attempts SET flagged = true
		WHERE username = $1 AND timestamp >= $2 AND flagged = false AND cleared = false
	`, username, since)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// ClearFlags unflags every attempt for username and marks the whole history
// cleared. It returns how many attempts were flagged.
func (r *LoginAttemptRepository) ClearFlags(ctx context.Context, username string) (int64, error) {
	var unflagged int64
	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE login_attempts SET flagged = false, cleared = true
			WHERE username = $1 AND flagged = true
		`, username)
		if err != nil {
			return database.MapPostgresError(err)
		}
		unflagged = result.RowsAffected()

		_, err = tx.Exec(ctx, `
			UPDATE login_attempts SET cleared = true WHERE username = $1 AND cleared = false
		`, username)
		return database.MapPostgresError(err)
	})
	if err != nil {
		return 0, err
	}
	return unflagged, nil
}

func (r *LoginAttemptRepository) DeleteForUsername(ctx context.Context, username string) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM login_attempts WHERE username = $1`, username)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}

// ListFlaggedUsernames returns usernames with flagged attempts since the cutoff.
func (r *LoginAttemptRepository) ListFlaggedUsernames(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT DISTINCT username FROM login_attempts
		WHERE flagged = true AND timestamp >= $1
		ORDER BY username
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query flagged usernames: %w", err)
	}
	defer rows.Close()

	usernames := make([]string, 0)
	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return nil, fmt.Errorf("failed to scan username: %w", err)
		}
		usernames = append(usernames, username)
	}
	return usernames, rows.Err()
}

// DeleteOlderThan purges unflagged history past retention.
func (r *LoginAttemptRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `
		DELETE FROM login_attempts WHERE timestamp < $1 AND flagged = false
	`, before)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
