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

// masterKeyActor identifies operator actions in audit records.
const masterKeyActor = "master-key"

// ThreatAdminInterface defines the operator controls for login lockouts.
type ThreatAdminInterface interface {
	ListLocked(ctx context.Context) ([]*models.ThreatStatus, error)
	Unlock(ctx context.Context, username string) (int64, error)
	DeleteHistory(ctx context.Context, username string) (int64, error)
}

// ListingModerator flags listings out of the catalog.
type ListingModerator interface {
	FlagListing(ctx context.Context, id string) (*models.Listing, error)
}

// AdminHandler handles admin HTTP requests.
type AdminHandler struct {
	threats  ThreatAdminInterface
	users    UserServiceInterface
	listings ListingModerator
	logger   *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(threats ThreatAdminInterface, users UserServiceInterface, listings ListingModerator, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{threats: threats, users: users, listings: listings, logger: logger}
}

type SetVerificationRequest struct {
	Status models.VerificationStatus `json:"status" validate:"required,oneof=UNVERIFIED PENDING VERIFIED REJECTED"`
	Notes  string                    `json:"notes" validate:"max=1000"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// ClearedResponse reports how many login attempts an operation touched.
type ClearedResponse struct {
	Username string `json:"username"`
	Cleared  int64  `json:"cleared"`
}

func actorID(r *http.Request) string {
	if claims := auth.GetUserFromContext(r); claims != nil {
		return claims.UserID
	}
	if auth.IsMasterKeyRequest(r) {
		return masterKeyActor
	}
	return ""
}

// ListLocked handles GET /admin/threats
func (h *AdminHandler) ListLocked(w http.ResponseWriter, r *http.Request) {
	locked, err := h.threats.ListLocked(r.Context())
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, locked)
}

// Unlock handles POST /admin/threats/{username}/unlock
func (h *AdminHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	cleared, err := h.threats.Unlock(r.Context(), username)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	h.logger.Info("login lock cleared",
		slog.String("username", username),
		slog.String("actor", actorID(r)),
		slog.Int64("cleared", cleared))
	pkghttp.WriteJSON(w, http.StatusOK, ClearedResponse{Username: username, Cleared: cleared})
}

// DeleteHistory handles DELETE /admin/threats/{username}
func (h *AdminHandler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	deleted, err := h.threats.DeleteHistory(r.Context(), username)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	h.logger.Info("login history deleted",
		slog.String("username", username),
		slog.String("actor", actorID(r)),
		slog.Int64("deleted", deleted))
	pkghttp.WriteJSON(w, http.StatusOK, ClearedResponse{Username: username, Cleared: deleted})
}

// ListUsers handles GET /admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page := pkghttp.ParsePage(r)
	users, err := h.users.ListUsers(r.Context(), page.Limit, page.Offset)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	resp := make([]*UserResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, userModelToResponse(u, nil, true))
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// SetVerification handles PUT /admin/users/{id}/verification
func (h *AdminHandler) SetVerification(w http.ResponseWriter, r *http.Request) {
	var req SetVerificationRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	profile, err := h.users.SetVerificationStatus(r.Context(), actorID(r), chi.URLParam(r, "id"), req.Status, req.Notes)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, profile)
}

// SetActive handles PUT /admin/users/{id}/active
func (h *AdminHandler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.users.SetActive(r.Context(), actorID(r), chi.URLParam(r, "id"), *req.Active); err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FlagListing handles POST /admin/listings/{id}/flag
func (h *AdminHandler) FlagListing(w http.ResponseWriter, r *http.Request) {
	listing, err := h.listings.FlagListing(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	h.logger.Info("listing flagged", slog.String("listing_id", listing.ID), slog.String("actor", actorID(r)))
	pkghttp.WriteJSON(w, http.StatusOK, listing)
}
