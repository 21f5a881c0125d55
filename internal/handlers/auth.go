package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/agora/internal/models"
	"github.com/BradenHooton/agora/internal/services"
	pkghttp "github.com/BradenHooton/agora/pkg/http"
)

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	VerifyEmail(ctx context.Context, username, code string) error
	ResendVerification(ctx context.Context, username string) error
	Login(ctx context.Context, username, password, ip, userAgent string) (*services.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*services.AuthResponse, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
	logger   *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
		logger:   logger,
	}
}

// Request DTOs

type RegisterRequest struct {
	Username string `json:"username" validate:"required,max=32"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=128"`
}

type VerifyEmailRequest struct {
	Username string `json:"username" validate:"required"`
	Code     string `json:"code" validate:"required,numeric,min=4,max=10"`
}

type ResendVerificationRequest struct {
	Username string `json:"username" validate:"required"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required,max=32"`
	Password string `json:"password" validate:"required,max=128"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required,numeric,min=4,max=10"`
	NewPassword string `json:"new_password" validate:"required,max=128"`
}

// MessageResponse is a plain acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	user, err := h.service.Register(r.Context(),
		strings.TrimSpace(req.Username),
		strings.ToLower(strings.TrimSpace(req.Email)),
		req.Password)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, user)
}

// VerifyEmail handles POST /auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.VerifyEmail(r.Context(), strings.TrimSpace(req.Username), req.Code); err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "email verified"})
}

// ResendVerification handles POST /auth/resend-verification. The response
// does not reveal whether the username exists.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.ResendVerification(r.Context(), strings.TrimSpace(req.Username)); err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
		Message: "If the account is awaiting verification, a new code has been sent.",
	})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	ip := pkghttp.ExtractClientIP(r, h.ipConfig)
	resp, err := h.service.Login(r.Context(), strings.TrimSpace(req.Username), req.Password, ip, r.UserAgent())
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /auth/refresh
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	resp, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// RequestPasswordReset handles POST /auth/password-reset/request
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), strings.ToLower(strings.TrimSpace(req.Email))); err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
		Message: "If the email is registered, a reset code has been sent.",
	})
}

// ResetPassword handles POST /auth/password-reset/confirm
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeRequest(w, r, &req) {
		return
	}

	err := h.service.ResetPassword(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Code, req.NewPassword)
	if err != nil {
		pkghttp.WriteDomainError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "password updated"})
}
