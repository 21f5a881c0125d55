package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/BradenHooton/agora/internal/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// MessageRepository stores encrypted direct messages.
type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) (*models.Message, error)
	ListConversation(ctx context.Context, q models.ConversationQuery) ([]*models.Message, error)
	GetAttachment(ctx context.Context, attachmentID string) (*models.Message, error)
	GetByID(ctx context.Context, id string) (*models.Message, error)
	Delete(ctx context.Context, id string) error
}

// GroupRepository stores groups, memberships and group messages.
type GroupRepository interface {
	Create(ctx context.Context, group *models.Group) (*models.Group, error)
	GetByID(ctx context.Context, id string) (*models.Group, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Group, error)
	AddMembers(ctx context.Context, groupID string, userIDs []string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	Delete(ctx context.Context, id string) error
	CreateMessage(ctx context.Context, msg *models.GroupMessage) (*models.GroupMessage, error)
	ListMessages(ctx context.Context, groupID string) ([]*models.GroupMessage, error)
}

// BlockChecker reports the block relation between two users.
type BlockChecker interface {
	BlockState(ctx context.Context, senderID, receiverID string) (models.BlockState, error)
}

// TextCipher encrypts message bodies and attachments at rest.
type TextCipher interface {
	EncryptText(text string) ([]byte, error)
	DecryptText(ciphertext []byte) (string, error)
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// Broadcaster pushes events to a user's live connections without blocking.
type Broadcaster interface {
	Publish(userID string, event *models.ChatEvent)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Publish(string, *models.ChatEvent) {}

// SendResult is the outcome of a direct send.
type SendResult struct {
	Outcome models.SendOutcome `json:"outcome"`
	Message *models.Message    `json:"message,omitempty"`
}

// AttachmentContent is a decrypted attachment ready to serve.
type AttachmentContent struct {
	Filename    string
	ContentType string
	Data        []byte
}

// MessagingService encrypts, stores and fans out direct and group messages.
type MessagingService struct {
	messages      MessageRepository
	groups        GroupRepository
	blocks        BlockChecker
	users         UserLookup
	cipher        TextCipher
	broadcaster   Broadcaster
	maxAttachment int64
	logger        *slog.Logger
}

func NewMessagingService(messages MessageRepository, groups GroupRepository, blocks BlockChecker, users UserLookup, cipher TextCipher, maxAttachment int64, logger *slog.Logger) *MessagingService {
	return &MessagingService{
		messages:      messages,
		groups:        groups,
		blocks:        blocks,
		users:         users,
		cipher:        cipher,
		broadcaster:   nopBroadcaster{},
		maxAttachment: maxAttachment,
		logger:        logger,
	}
}

// SetBroadcaster attaches the live channel. Sends before this are stored only.
func (s *MessagingService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", models.ErrBadRequest, msg)
}

// SendDirectMessage runs the per-send delivery state machine:
//   - sender blocked receiver: rejected, nothing stored
//   - receiver blocked sender: stored as blocked, echoed to the sender only
//   - otherwise: stored and published to both parties
func (s *MessagingService) SendDirectMessage(ctx context.Context, senderID, receiverID, text string, upload *models.AttachmentUpload) (*SendResult, error) {
	if text == "" && upload == nil {
		return nil, validationError("message text or attachment is required")
	}
	if receiverID == "" {
		return nil, validationError("receiver is required")
	}
	if receiverID == senderID {
		return nil, models.ErrSelfRelation
	}

	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, receiverID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, validationError("receiver does not exist")
		}
		return nil, err
	}

	state, err := s.blocks.BlockState(ctx, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("check block state: %w", err)
	}
	if state.SenderBlockedReceiver {
		return &SendResult{Outcome: models.OutcomeRejected}, models.ErrSenderBlocked
	}

	ciphertext, err := s.cipher.EncryptText(text)
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}

	msg := &models.Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Ciphertext: ciphertext,
		Blocked:    state.ReceiverBlockedSender,
	}
	if upload != nil {
		if msg.Attachment, err = s.sealAttachment(upload); err != nil {
			return nil, err
		}
	}

	stored, err := s.messages.Create(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	stored.Text = text
	stored.SenderUsername = sender.Username

	outcome := models.OutcomePersistedDelivered
	if stored.Blocked {
		outcome = models.OutcomePersistedSuppressed
	}

	s.publishDirect(stored, outcome)
	return &SendResult{Outcome: outcome, Message: stored}, nil
}

func (s *MessagingService) publishDirect(msg *models.Message, outcome models.SendOutcome) {
	forSender := *msg
	forSender.IsSender = true
	s.broadcaster.Publish(msg.SenderID, &models.ChatEvent{Type: models.EventDirectMessage, Message: &forSender})

	if outcome == models.OutcomePersistedDelivered {
		forReceiver := *msg
		forReceiver.IsSender = false
		s.broadcaster.Publish(msg.ReceiverID, &models.ChatEvent{Type: models.EventDirectMessage, Message: &forReceiver})
	}
}

func (s *MessagingService) sealAttachment(upload *models.AttachmentUpload) (*models.MediaAttachment, error) {
	if len(upload.Data) == 0 {
		return nil, validationError("attachment is empty")
	}
	if s.maxAttachment > 0 && int64(len(upload.Data)) > s.maxAttachment {
		return nil, validationError(fmt.Sprintf("attachment exceeds %d bytes", s.maxAttachment))
	}

	sealed, err := s.cipher.Seal(upload.Data)
	if err != nil {
		return nil, fmt.Errorf("encrypt attachment: %w", err)
	}

	name := filepath.Base(upload.Filename)
	if name == "." || name == "/" || name == "" {
		name = "attachment"
	}
	return &models.MediaAttachment{
		FileType:         ClassifyAttachment(name, upload.Data),
		OriginalFilename: name,
		Size:             int64(len(upload.Data)),
		Ciphertext:       sealed,
	}, nil
}

// ClassifyAttachment picks the stored file type from the content, falling
// back to the extension for formats content sniffing misses.
func ClassifyAttachment(filename string, data []byte) models.FileType {
	detected := mimetype.Detect(data)
	ext := strings.ToLower(filepath.Ext(filename))

	switch {
	case detected.Is("image/gif"):
		return models.FileTypeGIF
	case detected.Is("image/svg+xml") || ext == ".svg":
		return models.FileTypeSVG
	case strings.HasPrefix(detected.String(), "image/"):
		return models.FileTypeImage
	case strings.HasPrefix(detected.String(), "video/"):
		return models.FileTypeVideo
	default:
		return models.FileTypeFile
	}
}

// FetchConversation returns one page of the visible history between viewer
// and peer, newest page first and oldest first within the page. Messages from
// a peer the viewer blocked are hidden, as are messages that were suppressed
// on the way to the viewer. Undecryptable bodies are replaced per message.
func (s *MessagingService) FetchConversation(ctx context.Context, viewerID, peerID string, limit, offset int) ([]*models.Message, error) {
	if _, err := s.users.GetByID(ctx, peerID); err != nil {
		return nil, err
	}

	state, err := s.blocks.BlockState(ctx, viewerID, peerID)
	if err != nil {
		return nil, fmt.Errorf("check block state: %w", err)
	}

	page, err := s.messages.ListConversation(ctx, models.ConversationQuery{
		ViewerID: viewerID,
		PeerID:   peerID,
		HidePeer: state.SenderBlockedReceiver,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, err
	}

	for _, m := range page {
		text, err := s.cipher.DecryptText(m.Ciphertext)
		if err != nil {
			s.logger.Warn("undecryptable message", slog.String("message_id", m.ID))
			text = models.UndecryptableText
		}
		m.Text = text
		m.IsSender = m.SenderID == viewerID
	}
	return page, nil
}

// DeleteMessage removes a direct message authored by actorID, together with
// its attachment. The receiver gets ErrForbidden; anyone else, or a receiver
// the message was suppressed for, gets ErrNotFound.
func (s *MessagingService) DeleteMessage(ctx context.Context, actorID, messageID string) error {
	if _, err := uuid.Parse(messageID); err != nil {
		return models.ErrNotFound
	}

	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != actorID {
		if msg.ReceiverID == actorID && !msg.Blocked {
			return models.ErrForbidden
		}
		return models.ErrNotFound
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		return err
	}

	event := &models.ChatEvent{Type: models.EventMessageDeleted, MessageID: messageID}
	s.broadcaster.Publish(msg.SenderID, event)
	if !msg.Blocked {
		s.broadcaster.Publish(msg.ReceiverID, event)
	}
	s.logger.Info("message deleted",
		slog.String("message_id", messageID),
		slog.String("sender_id", actorID))
	return nil
}

// GetAttachment decrypts an attachment for its sender or receiver.
func (s *MessagingService) GetAttachment(ctx context.Context, viewerID, attachmentID string) (*AttachmentContent, error) {
	msg, err := s.messages.GetAttachment(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	if viewerID != msg.SenderID && viewerID != msg.ReceiverID {
		return nil, models.ErrForbidden
	}
	if msg.Blocked && viewerID == msg.ReceiverID {
		return nil, models.ErrNotFound
	}

	data, err := s.cipher.Open(msg.Attachment.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt attachment %s: %w", attachmentID, err)
	}
	return &AttachmentContent{
		Filename:    msg.Attachment.OriginalFilename,
		ContentType: attachmentContentType(msg.Attachment, data),
		Data:        data,
	}, nil
}

func attachmentContentType(att *models.MediaAttachment, data []byte) string {
	switch att.FileType {
	case models.FileTypeSVG:
		return "image/svg+xml"
	case models.FileTypeGIF:
		return "image/gif"
	case models.FileTypeFile:
		if byExt, ok := extensionMIMEs[strings.ToLower(filepath.Ext(att.OriginalFilename))]; ok {
			return byExt
		}
	}
	return mimetype.Detect(data).String()
}

var extensionMIMEs = map[string]string{
	".pdf":  "application/pdf",
	".json": "application/json",
	".txt":  "text/plain; charset=utf-8",
	".csv":  "text/csv",
	".zip":  "application/zip",
}

// CreateGroup creates a group owned by creatorID. Unknown member ids are rejected.
func (s *MessagingService) CreateGroup(ctx context.Context, creatorID, name string, description *string, memberIDs []string) (*models.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("group name is required")
	}
	if err := s.requireUsers(ctx, memberIDs); err != nil {
		return nil, err
	}

	group, err := s.groups.Create(ctx, &models.Group{
		Name:        name,
		Description: description,
		CreatorID:   creatorID,
		MemberIDs:   memberIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("create group: %w", err)
	}
	s.logger.Info("group created", slog.String("group_id", group.ID), slog.Int("members", len(group.MemberIDs)))
	return group, nil
}

func (s *MessagingService) requireUsers(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return validationError(fmt.Sprintf("user %s does not exist", id))
			}
			return err
		}
	}
	return nil
}

// memberGroup loads the group and requires userID to be a member.
func (s *MessagingService) memberGroup(ctx context.Context, userID, groupID string) (*models.Group, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsMember(userID) {
		return nil, models.ErrForbidden
	}
	return group, nil
}

func (s *MessagingService) GetGroup(ctx context.Context, userID, groupID string) (*models.Group, error) {
	return s.memberGroup(ctx, userID, groupID)
}

func (s *MessagingService) ListGroups(ctx context.Context, userID string) ([]*models.Group, error) {
	return s.groups.ListForUser(ctx, userID)
}

// AddGroupMembers adds users to the group. Only the creator may add.
func (s *MessagingService) AddGroupMembers(ctx context.Context, actorID, groupID string, userIDs []string) (*models.Group, error) {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group.CreatorID != actorID {
		return nil, models.ErrForbidden
	}
	if len(userIDs) == 0 {
		return nil, validationError("at least one user is required")
	}
	if err := s.requireUsers(ctx, userIDs); err != nil {
		return nil, err
	}
	if err := s.groups.AddMembers(ctx, groupID, userIDs); err != nil {
		return nil, err
	}
	return s.groups.GetByID(ctx, groupID)
}

// RemoveGroupMember removes userID. The creator may remove anyone but
// themselves; members may remove only themselves.
func (s *MessagingService) RemoveGroupMember(ctx context.Context, actorID, groupID, userID string) error {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if userID == group.CreatorID {
		return fmt.Errorf("%w: the group creator cannot be removed", models.ErrForbidden)
	}
	if actorID != group.CreatorID && actorID != userID {
		return models.ErrForbidden
	}
	if !group.IsMember(userID) {
		return models.ErrNotFound
	}
	return s.groups.RemoveMember(ctx, groupID, userID)
}

func (s *MessagingService) DeleteGroup(ctx context.Context, actorID, groupID string) error {
	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CreatorID != actorID {
		return models.ErrForbidden
	}
	return s.groups.Delete(ctx, groupID)
}

// SendGroupMessage stores an encrypted group message and publishes it to
// every member. Membership is the only check; blocks do not apply in groups.
func (s *MessagingService) SendGroupMessage(ctx context.Context, senderID, groupID, text string) (*models.GroupMessage, error) {
	if text == "" {
		return nil, validationError("message text is required")
	}
	group, err := s.memberGroup(ctx, senderID, groupID)
	if err != nil {
		return nil, err
	}
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, err
	}

	ciphertext, err := s.cipher.EncryptText(text)
	if err != nil {
		return nil, fmt.Errorf("encrypt message: %w", err)
	}
	stored, err := s.groups.CreateMessage(ctx, &models.GroupMessage{
		GroupID:    groupID,
		SenderID:   senderID,
		Ciphertext: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("store group message: %w", err)
	}
	stored.Text = text
	stored.SenderUsername = sender.Username

	for _, memberID := range group.MemberIDs {
		copied := *stored
		copied.IsSender = memberID == senderID
		s.broadcaster.Publish(memberID, &models.ChatEvent{Type: models.EventGroupMessage, GroupMessage: &copied})
	}
	stored.IsSender = true
	return stored, nil
}

func (s *MessagingService) FetchGroupMessages(ctx context.Context, viewerID, groupID string) ([]*models.GroupMessage, error) {
	if _, err := s.memberGroup(ctx, viewerID, groupID); err != nil {
		return nil, err
	}

	msgs, err := s.groups.ListMessages(ctx, groupID)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		text, err := s.cipher.DecryptText(m.Ciphertext)
		if err != nil {
			s.logger.Warn("undecryptable group message", slog.String("message_id", m.ID))
			text = models.UndecryptableText
		}
		m.Text = text
		m.IsSender = m.SenderID == viewerID
	}
	return msgs, nil
}

// NotifyBlocked is a BlockHook telling the blocker's live connections about the new block.
func (s *MessagingService) NotifyBlocked(_ context.Context, blockerID, blockedID string) error {
	s.broadcaster.Publish(blockerID, &models.ChatEvent{Type: models.EventBlocked, UserID: blockedID})
	return nil
}
