package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/agora/internal/auth"
	"github.com/BradenHooton/agora/internal/models"
	pkghttp "github.com/BradenHooton/agora/pkg/http"
	"github.com/go-chi/chi/v5"
)

// UserServiceInterface defines the interface for user business logic
type UserServiceInterface interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	SetVerificationStatus(ctx context.Context, adminID, userID string, status models.VerificationStatus, notes string) (*models.Profile, error)
	SetActive(ctx context.Context, adminID, userID string, active bool) error
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	service UserServiceInterface
	logger  *slog.Logger
}

// NewUserHandler creates a new UserHandler
func NewUserHandler(service UserServiceInterface, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: service, logger: logger}
}

// UserResponse represents a user in the HTTP response. Email and account
// flags are only included for the account owner and admins.
type UserResponse struct {
	ID                 string                    `json:"id"`
	Username           string                    `json:"username"`
	Email              string                    `json:"email,omitempty"`
	IsActive           *bool                     `json:"is_active,omitempty"`
	Role               string                    `json:"role,omitempty"`
	IsVerified         bool                      `json:"is_verified"`
	VerificationStatus models.VerificationStatus `json:"verification_status,omitempty"`
	CreatedAt          string                    `json:"created_at"`
}

// userModelToResponse converts a user model to a response DTO
func userModelToResponse(user *models.User, profile *models.Profile, full bool) *UserResponse {
	resp := &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		CreatedAt: user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	if profile != nil {
		resp.IsVerified = profile.IsVerified
	}
	if full {
		active := user.IsActive
		resp.Email = user.Email
		resp.IsActive = &active
		resp.Role = user.Role()
		if profile != nil {
			resp.VerificationStatus = profile.VerificationStatus
		}
	}
	return resp
}

// canSeePrivate reports whether the caller owns userID or is an admin.
func canSeePrivate(r *http.Request, userID string) bool {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		return false
	}
	return claims.UserID == userID || claims.Role == models.RoleAdmin || claims.Role == models.RoleSuperadmin
}

// GetMe handles GET /users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	h.writeUser(w, r, userID, true)
}

// GetUser handles GET /users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "user id is required")
		return
	}
	h.writeUser(w, r, userID, canSeePrivate(r, userID))
}

func (h *UserHandler) writeUser(w http.ResponseWriter, r *http.Request, userID string, full bool) {
	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		// A missing profile only hides the verification badge.
		h.logger.Warn("profile lookup failed", slog.String("user_id", userID), slog.Any("error", err))
		profile = nil
	}

	pkghttp.WriteJSON(w, http.StatusOK, userModelToResponse(user, profile, full))
}

// GetProfile handles GET /users/me/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, profile)
}
