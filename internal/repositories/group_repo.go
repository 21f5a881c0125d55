package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/agora/internal/database"
	"github.com/BradenHooton/agora/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"
)

type GroupRepository struct {
	db *database.DB
}

func NewGroupRepository(db *database.DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// Member ids are aggregated as a text array literal and parsed by pq.StringArray.
const groupSelect = `
	SELECT g.id, g.name, g.description, g.creator_id, g.created_at,
	       COALESCE((SELECT array_agg(gm.user_id::text ORDER BY gm.joined_at)
	                 FROM group_members gm WHERE gm.group_id = g.id), '{}')::text
	FROM groups g`

func scanGroupRow(scanner rowScanner) (*models.Group, error) {
	var (
		g       models.Group
		members pq.StringArray
	)
	if err := scanner.Scan(&g.ID, &g.Name, &g.Description, &g.CreatorID, &g.CreatedAt, &members); err != nil {
		return nil, database.MapPostgresError(err)
	}
	g.MemberIDs = []string(members)
	return &g, nil
}

// Create inserts the group and its initial members. The creator is always a member.
func (r *GroupRepository) Create(ctx context.Context, group *models.Group) (*models.Group, error) {
	group.ID = uuid.New().String()
	group.CreatedAt = time.Now().UTC()
	if !group.IsMember(group.CreatorID) {
		group.MemberIDs = append([]string{group.CreatorID}, group.MemberIDs...)
	}

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO groups (id, name, description, creator_id, created_at) VALUES ($1, $2, $3, $4, $5)
		`, group.ID, group.Name, group.Description, group.CreatorID, group.CreatedAt)
		if err != nil {
			return database.MapPostgresError(err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO group_members (group_id, user_id)
			SELECT $1, member FROM unnest($2::uuid[]) AS member
			ON CONFLICT DO NOTHING
		`, group.ID, pq.Array(group.MemberIDs))
		return database.MapPostgresError(err)
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, group.ID)
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (*models.Group, error) {
	return scanGroupRow(r.db.Pool.QueryRow(ctx, groupSelect+` WHERE g.id = $1`, id))
}

// ListForUser returns groups userID belongs to.
func (r *GroupRepository) ListForUser(ctx context.Context, userID string) ([]*models.Group, error) {
	rows, err := r.db.Pool.Query(ctx, groupSelect+`
		WHERE EXISTS (SELECT 1 FROM group_members gm WHERE gm.group_id = g.id AND gm.user_id = $1)
		ORDER BY g.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	return scanRows(rows, scanGroupRow)
}

// AddMembers adds users to the group, ignoring existing members.
func (r *GroupRepository) AddMembers(ctx context.Context, groupID string, userIDs []string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO group_members (group_id, user_id)
		SELECT $1, member FROM unnest($2::uuid[]) AS member
		ON CONFLICT DO NOTHING
	`, groupID, pq.Array(userIDs))
	return database.MapPostgresError(err)
}

func (r *GroupRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	result, err := r.db.Pool.Exec(ctx, `
		DELETE FROM group_members WHERE group_id = $1 AND user_id = $2
	`, groupID, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *GroupRepository) CreateMessage(ctx context.Context, msg *models.GroupMessage) (*models.GroupMessage, error) {
	msg.ID = uuid.New().String()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO group_messages (id, group_id, sender_id, ciphertext, timestamp)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.GroupID, msg.SenderID, msg.Ciphertext, msg.Timestamp)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return msg, nil
}

func scanGroupMessageRow(scanner rowScanner) (*models.GroupMessage, error) {
	var m models.GroupMessage
	if err := scanner.Scan(&m.ID, &m.GroupID, &m.SenderID, &m.SenderUsername, &m.Ciphertext, &m.Timestamp); err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &m, nil
}

func (r *GroupRepository) ListMessages(ctx context.Context, groupID string) ([]*models.GroupMessage, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT m.id, m.group_id, m.sender_id, u.username, m.ciphertext, m.timestamp
		FROM group_messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.group_id = $1
		ORDER BY m.timestamp ASC, m.id ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to query group messages: %w", err)
	}
	return scanRows(rows, scanGroupMessageRow)
}
