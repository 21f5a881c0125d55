package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/agora/internal/database"
	"github.com/BradenHooton/agora/internal/models"
	"github.com/google/uuid"
)

// TrustRepository stores block and friendship edges.
type TrustRepository struct {
	db *database.DB
}

func NewTrustRepository(db *database.DB) *TrustRepository {
	return &TrustRepository{db: db}
}

func scanBlockRow(scanner rowScanner) (*models.UserBlock, error) {
	var b models.UserBlock
	if err := scanner.Scan(&b.ID, &b.BlockerID, &b.BlockedID, &b.CreatedAt); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &b, nil
}

const friendshipColumns = `id, sender_id, receiver_id, status, created_at, updated_at`

func scanFriendshipRow(scanner rowScanner) (*models.Friendship, error) {
	var f models.Friendship
	if err := scanner.Scan(&f.ID, &f.SenderID, &f.ReceiverID, &f.Status, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &f, nil
}

// AreRelated is the single symmetric lookup for both edge kinds.
func (r *TrustRepository) AreRelated(ctx context.Context, rel models.Relation, a, b string) (bool, error) {
	var query string
	switch rel {
	case models.RelationBlock:
		query = `SELECT EXISTS (
			SELECT 1 FROM user_blocks
			WHERE (blocker_id = $1 AND blocked_id = $2) OR (blocker_id = $2 AND blocked_id = $1))`
	case models.RelationFriend:
		query = `SELECT EXISTS (
			SELECT 1 FROM friendships
			WHERE status = 'ACCEPTED'
			  AND ((sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)))`
	default:
		return false, fmt.Errorf("unknown relation %d", rel)
	}

	var related bool
	if err := r.db.Pool.QueryRow(ctx, query, a, b).Scan(&related); err != nil {
		return false, database.MapPostgresError(err)
	}
	return related, nil
}

// BlockState reports both directions of the block relation in one round trip.
func (r *TrustRepository) BlockState(ctx context.Context, senderID, receiverID string) (models.BlockState, error) {
	var state models.BlockState
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM user_blocks WHERE blocker_id = $1 AND blocked_id = $2),
			EXISTS (SELECT 1 FROM user_blocks WHERE blocker_id = $2 AND blocked_id = $1)
	`, senderID, receiverID).Scan(&state.SenderBlockedReceiver, &state.ReceiverBlockedSender)
	if err != nil {
		return models.BlockState{}, database.MapPostgresError(err)
	}
	return state, nil
}

func (r *TrustRepository) CreateBlock(ctx context.Context, blockerID, blockedID string) (*models.UserBlock, error) {
	block, err := scanBlockRow(r.db.Pool.QueryRow(ctx, `
		INSERT INTO user_blocks (id, blocker_id, blocked_id) VALUES ($1, $2, $3)
		RETURNING id, blocker_id, blocked_id, created_at
	`, uuid.New().String(), blockerID, blockedID))
	if errors.Is(err, models.ErrConflict) {
		return nil, models.ErrAlreadyBlocked
	}
	return block, err
}

// DeleteBlock removes blocker's edge to blocked. Missing edges yield ErrNotFound.
func (r *TrustRepository) DeleteBlock(ctx context.Context, blockerID, blockedID string) error {
	result, err := r.db.Pool.Exec(ctx, `
		DELETE FROM user_blocks WHERE blocker_id = $1 AND blocked_id = $2
	`, blockerID, blockedID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *TrustRepository) ListBlocked(ctx context.Context, blockerID string) ([]*models.UserBlock, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, blocker_id, blocked_id, created_at FROM user_blocks
		WHERE blocker_id = $1 ORDER BY created_at DESC
	`, blockerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	return scanRows(rows, scanBlockRow)
}

func (r *TrustRepository) CreateFriendRequest(ctx context.Context, senderID, receiverID string) (*models.Friendship, error) {
	friendship, err := scanFriendshipRow(r.db.Pool.QueryRow(ctx, `
		INSERT INTO friendships (id, sender_id, receiver_id, status)
		VALUES ($1, $2, $3, 'PENDING')
		RETURNING `+friendshipColumns,
		uuid.New().String(), senderID, receiverID,
	))
	if errors.Is(err, models.ErrConflict) {
		return nil, models.ErrFriendshipExists
	}
	return friendship, err
}

// FriendshipBetween returns the edge between a and b in either direction.
func (r *TrustRepository) FriendshipBetween(ctx context.Context, a, b string) (*models.Friendship, error) {
	return scanFriendshipRow(r.db.Pool.QueryRow(ctx, `
		SELECT `+friendshipColumns+` FROM friendships
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at DESC LIMIT 1
	`, a, b))
}

func (r *TrustRepository) GetFriendship(ctx context.Context, id string) (*models.Friendship, error) {
	return scanFriendshipRow(r.db.Pool.QueryRow(ctx, `SELECT `+friendshipColumns+` FROM friendships WHERE id = $1`, id))
}

func (r *TrustRepository) UpdateFriendshipStatus(ctx context.Context, id string, status models.FriendshipStatus) (*models.Friendship, error) {
	return scanFriendshipRow(r.db.Pool.QueryRow(ctx, `
		UPDATE friendships SET status = $1, updated_at = NOW() WHERE id = $2
		RETURNING `+friendshipColumns,
		status, id,
	))
}

// ListFriendships returns userID's edges with the given status in either direction.
func (r *TrustRepository) ListFriendships(ctx context.Context, userID string, status models.FriendshipStatus) ([]*models.Friendship, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+friendshipColumns+` FROM friendships
		WHERE (sender_id = $1 OR receiver_id = $1) AND status = $2
		ORDER BY updated_at DESC
	`, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query friendships: %w", err)
	}
	return scanRows(rows, scanFriendshipRow)
}

// DeleteFriendshipsBetween removes every edge between a and b.
func (r *TrustRepository) DeleteFriendshipsBetween(ctx context.Context, a, b string) (int64, error) {
	result, err := r.db.Pool.Exec(ctx, `
		DELETE FROM friendships
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
	`, a, b)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return result.RowsAffected(), nil
}
