package repositories

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/BradenHooton/agora/internal/database"
	"github.com/BradenHooton/agora/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// MessageRepository stores encrypted direct messages and their attachments.
type MessageRepository struct {
	db *database.DB
}

func NewMessageRepository(db *database.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// scanMessageRow reads a message joined with its optional attachment
// metadata. Attachment bytes are only loaded by GetAttachment.
func scanMessageRow(scanner rowScanner) (*models.Message, error) {
	var (
		m        models.Message
		attID    *string
		fileType *string
		filename *string
		size     *int64
		attAt    *time.Time
	)
	err := scanner.Scan(
		&m.ID, &m.SenderID, &m.SenderUsername, &m.ReceiverID, &m.Ciphertext, &m.Blocked, &m.Timestamp,
		&attID, &fileType, &filename, &size, &attAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if attID != nil {
		m.Attachment = &models.MediaAttachment{
			ID:               *attID,
			MessageID:        m.ID,
			FileType:         models.FileType(*fileType),
			OriginalFilename: *filename,
			Size:             *size,
			CreatedAt:        *attAt,
		}
	}
	return &m, nil
}

const messageSelect = `
	SELECT m.id, m.sender_id, u.username, m.receiver_id, m.ciphertext, m.blocked, m.timestamp,
	       a.id, a.file_type, a.original_filename, a.size, a.created_at
	FROM messages m
	JOIN users u ON u.id = m.sender_id
	LEFT JOIN media_attachments a ON a.message_id = m.id`

// Create inserts the message and its attachment, if any, in one transaction.
func (r *MessageRepository) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	msg.ID = uuid.New().String()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO messages (id, sender_id, receiver_id, ciphertext, blocked, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, msg.ID, msg.SenderID, msg.ReceiverID, msg.Ciphertext, msg.Blocked, msg.Timestamp)
		if err != nil {
			return database.MapPostgresError(err)
		}

		att := msg.Attachment
		if att == nil {
			return nil
		}
		att.ID = uuid.New().String()
		att.MessageID = msg.ID
		att.CreatedAt = msg.Timestamp
		_, err = tx.Exec(ctx, `
			INSERT INTO media_attachments (id, message_id, file_type, original_filename, size, ciphertext, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, att.ID, att.MessageID, att.FileType, att.OriginalFilename, att.Size, att.Ciphertext, att.CreatedAt)
		return database.MapPostgresError(err)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListConversation returns one page of q.ViewerID's view of the conversation,
// oldest first. Messages suppressed on the way to the viewer are never
// returned, and nothing from the peer is when q.HidePeer is set.
func (r *MessageRepository) ListConversation(ctx context.Context, q models.ConversationQuery) ([]*models.Message, error) {
	rows, err := r.db.Pool.Query(ctx, messageSelect+`
		WHERE ((m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1))
		  AND NOT (m.blocked AND m.receiver_id = $1)
		  AND NOT ($3 AND m.sender_id = $2)
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT $4 OFFSET $5
	`, q.ViewerID, q.PeerID, q.HidePeer, q.Limit, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	page, err := scanRows(rows, scanMessageRow)
	if err != nil {
		return nil, err
	}
	slices.Reverse(page)
	return page, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	return scanMessageRow(r.db.Pool.QueryRow(ctx, messageSelect+` WHERE m.id = $1`, id))
}

// Delete removes a message. Its attachment row cascades.
func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetAttachment returns the message owning the attachment, with the
// attachment ciphertext populated.
func (r *MessageRepository) GetAttachment(ctx context.Context, attachmentID string) (*models.Message, error) {
	msg, err := scanMessageRow(r.db.Pool.QueryRow(ctx, messageSelect+` WHERE a.id = $1`, attachmentID))
	if err != nil {
		return nil, err
	}

	err = r.db.Pool.QueryRow(ctx, `SELECT ciphertext FROM media_attachments WHERE id = $1`, attachmentID).
		Scan(&msg.Attachment.Ciphertext)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return msg, nil
}
