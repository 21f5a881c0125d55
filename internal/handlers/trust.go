package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/agora/internal/models"
	pkghttp "github.com/BradenHooton/agora/pkg/http"
	"github.com/go-chi/chi/v5"
)

// TrustServiceInterface defines block and friendship operations.
type TrustServiceInterface interface {
	Block(ctx context.Context, blockerID, blockedID string) (*models.UserBlock, error)
	Unblock(ctx context.Context, blockerID, blockedID string) error
	ListBlocked(ctx context.Context, blockerID string) ([]*models.UserBlock, error)
	SendFriendRequest(ctx context.Context, senderID, receiverID string) (*models.Friendship, error)
	RespondFriendRequest(ctx context.Context, userID, friendshipID string, accept bool) (*models.Friendship, error)
	ListFriends(ctx context.Context, userID string) ([]*models.Friendship, error)
	ListPendingRequests(ctx context.Context, userID string) ([]*models.Friendship, error)
	RemoveFriend(ctx context.Context, userID, friendID string) error
}

// TrustHandler serves the block list and friendships.
type TrustHandler struct {
	service TrustServiceInterface
	logger  *slog.Logger
}

func NewTrustHandler(service TrustServiceInterface, logger *slog.Logger) *TrustHandler {
	return &TrustHandler{service: service, logger: logger}
}

type TargetUserRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type RespondFriendRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

// Block handles POST /blocks
func (h *TrustHandler) Block(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req TargetUserRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	block, err := h.service.Block(r.Context(), userID, req.UserID)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, block)
}

// Unblock handles DELETE /blocks/{userID}
func (h *TrustHandler) Unblock(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.service.Unblock(r.Context(), userID, chi.URLParam(r, "userID")); err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListBlocked handles GET /blocks
func (h *TrustHandler) ListBlocked(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	blocks, err := h.service.ListBlocked(r.Context(), userID)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, blocks)
}

// SendFriendRequest handles POST /friends/requests
func (h *TrustHandler) SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req TargetUserRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	friendship, err := h.service.SendFriendRequest(r.Context(), userID, req.UserID)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusCreated, friendship)
}

// RespondFriendRequest handles POST /friends/requests/{id}/respond
func (h *TrustHandler) RespondFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req RespondFriendRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	friendship, err := h.service.RespondFriendRequest(r.Context(), userID, chi.URLParam(r, "id"), *req.Accept)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, friendship)
}

// PendingRequests handles GET /friends/requests
func (h *TrustHandler) PendingRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	requests, err := h.service.ListPendingRequests(r.Context(), userID)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, requests)
}

// ListFriends handles GET /friends
func (h *TrustHandler) ListFriends(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	friends, err := h.service.ListFriends(r.Context(), userID)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, friends)
}

// RemoveFriend handles DELETE /friends/{userID}
func (h *TrustHandler) RemoveFriend(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveFriend(r.Context(), userID, chi.URLParam(r, "userID")); err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
