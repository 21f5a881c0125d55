package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/agora/internal/models"
	pkglogger "github.com/BradenHooton/agora/pkg/logger"
)

// TrustRepository stores block and friendship edges.
type TrustRepository interface {
	AreRelated(ctx context.Context, rel models.Relation, a, b string) (bool, error)
	BlockState(ctx context.Context, senderID, receiverID string) (models.BlockState, error)
	CreateBlock(ctx context.Context, blockerID, blockedID string) (*models.UserBlock, error)
	DeleteBlock(ctx context.Context, blockerID, blockedID string) error
	ListBlocked(ctx context.Context, blockerID string) ([]*models.UserBlock, error)
	CreateFriendRequest(ctx context.Context, senderID, receiverID string) (*models.Friendship, error)
	FriendshipBetween(ctx context.Context, a, b string) (*models.Friendship, error)
	GetFriendship(ctx context.Context, id string) (*models.Friendship, error)
	UpdateFriendshipStatus(ctx context.Context, id string, status models.FriendshipStatus) (*models.Friendship, error)
	ListFriendships(ctx context.Context, userID string, status models.FriendshipStatus) ([]*models.Friendship, error)
	DeleteFriendshipsBetween(ctx context.Context, a, b string) (int64, error)
}

// UserLookup resolves users by id.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// BlockHook runs after a block has been committed. Hook failures are logged
// and never undo the block.
type BlockHook func(ctx context.Context, blockerID, blockedID string) error

// TrustService manages the block and friendship graph.
type TrustService struct {
	repo        TrustRepository
	users       UserLookup
	hooks       []BlockHook
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

func NewTrustService(repo TrustRepository, users UserLookup, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *TrustService {
	return &TrustService{repo: repo, users: users, logger: logger, auditLogger: auditLogger}
}

// OnBlock registers post-commit block hooks. Call during wiring only.
func (s *TrustService) OnBlock(hooks ...BlockHook) {
	s.hooks = append(s.hooks, hooks...)
}

// AreRelated reports whether a and b share an edge of kind rel in either direction.
func (s *TrustService) AreRelated(ctx context.Context, rel models.Relation, a, b string) (bool, error) {
	return s.repo.AreRelated(ctx, rel, a, b)
}

// BlockState returns both directions of the block relation between sender and receiver.
func (s *TrustService) BlockState(ctx context.Context, senderID, receiverID string) (models.BlockState, error) {
	return s.repo.BlockState(ctx, senderID, receiverID)
}

func (s *TrustService) requireOther(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return models.ErrSelfRelation
	}
	if _, err := s.users.GetByID(ctx, targetID); err != nil {
		return err
	}
	return nil
}

// Block creates blocker -> blocked and then runs the registered hooks.
func (s *TrustService) Block(ctx context.Context, blockerID, blockedID string) (*models.UserBlock, error) {
	if err := s.requireOther(ctx, blockerID, blockedID); err != nil {
		return nil, err
	}

	block, err := s.repo.CreateBlock(ctx, blockerID, blockedID)
	if err != nil {
		return nil, err
	}

	s.auditLogger.Log(pkglogger.AuditEvent{
		Category:  pkglogger.AuditTrust,
		EventType: "user_blocked",
		UserID:    blockerID,
		TargetID:  blockedID,
		Success:   true,
	})

	for _, hook := range s.hooks {
		if err := hook(ctx, blockerID, blockedID); err != nil {
			s.logger.Error("block hook failed",
				slog.String("blocker_id", blockerID),
				slog.String("blocked_id", blockedID),
				slog.Any("error", err))
		}
	}
	return block, nil
}

func (s *TrustService) Unblock(ctx context.Context, blockerID, blockedID string) error {
	if err := s.repo.DeleteBlock(ctx, blockerID, blockedID); err != nil {
		return err
	}
	s.auditLogger.Log(pkglogger.AuditEvent{
		Category:  pkglogger.AuditTrust,
		EventType: "user_unblocked",
		UserID:    blockerID,
		TargetID:  blockedID,
		Success:   true,
	})
	return nil
}

func (s *TrustService) ListBlocked(ctx context.Context, blockerID string) ([]*models.UserBlock, error) {
	return s.repo.ListBlocked(ctx, blockerID)
}

// DropFriendships is a BlockHook removing any friendship between the pair.
func (s *TrustService) DropFriendships(ctx context.Context, blockerID, blockedID string) error {
	n, err := s.repo.DeleteFriendshipsBetween(ctx, blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("drop friendships: %w", err)
	}
	if n > 0 {
		s.logger.Info("friendship removed after block",
			slog.String("blocker_id", blockerID),
			slog.String("blocked_id", blockedID))
	}
	return nil
}

// SendFriendRequest creates a PENDING edge. A rejected request may be re-sent;
// a block in either direction forbids it.
func (s *TrustService) SendFriendRequest(ctx context.Context, senderID, receiverID string) (*models.Friendship, error) {
	if err := s.requireOther(ctx, senderID, receiverID); err != nil {
		return nil, err
	}

	blocked, err := s.repo.AreRelated(ctx, models.RelationBlock, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, models.ErrBlockedRelationship
	}

	existing, err := s.repo.FriendshipBetween(ctx, senderID, receiverID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return s.repo.CreateFriendRequest(ctx, senderID, receiverID)
	case err != nil:
		return nil, err
	case existing.Status == models.FriendshipRejected:
		if _, err := s.repo.DeleteFriendshipsBetween(ctx, senderID, receiverID); err != nil {
			return nil, err
		}
		return s.repo.CreateFriendRequest(ctx, senderID, receiverID)
	default:
		return nil, models.ErrFriendshipExists
	}
}

// RespondFriendRequest accepts or rejects a pending request addressed to userID.
func (s *TrustService) RespondFriendRequest(ctx context.Context, userID, friendshipID string, accept bool) (*models.Friendship, error) {
	f, err := s.repo.GetFriendship(ctx, friendshipID)
	if err != nil {
		return nil, err
	}
	if f.ReceiverID != userID {
		return nil, models.ErrNotFound
	}
	if f.Status != models.FriendshipPending {
		return nil, fmt.Errorf("%w: request already answered", models.ErrConflict)
	}

	status := models.FriendshipRejected
	if accept {
		status = models.FriendshipAccepted
	}
	return s.repo.UpdateFriendshipStatus(ctx, friendshipID, status)
}

func (s *TrustService) ListFriends(ctx context.Context, userID string) ([]*models.Friendship, error) {
	return s.repo.ListFriendships(ctx, userID, models.FriendshipAccepted)
}

// ListPendingRequests returns requests userID has received and not answered.
func (s *TrustService) ListPendingRequests(ctx context.Context, userID string) ([]*models.Friendship, error) {
	all, err := s.repo.ListFriendships(ctx, userID, models.FriendshipPending)
	if err != nil {
		return nil, err
	}
	incoming := make([]*models.Friendship, 0, len(all))
	for _, f := range all {
		if f.ReceiverID == userID {
			incoming = append(incoming, f)
		}
	}
	return incoming, nil
}

func (s *TrustService) RemoveFriend(ctx context.Context, userID, friendID string) error {
	friends, err := s.repo.AreRelated(ctx, models.RelationFriend, userID, friendID)
	if err != nil {
		return err
	}
	if !friends {
		return models.ErrNotFound
	}
	_, err = s.repo.DeleteFriendshipsBetween(ctx, userID, friendID)
	return err
}
