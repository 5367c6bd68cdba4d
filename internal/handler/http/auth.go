package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/buymeagift/giftlist/internal/auth"
	"github.com/buymeagift/giftlist/internal/domain"
	"github.com/buymeagift/giftlist/internal/service"
	"github.com/buymeagift/giftlist/pkg/httputil"
	"github.com/buymeagift/giftlist/pkg/middleware"
)

// AuthService is the account and token surface used by the auth handlers.
type AuthService interface {
	Register(ctx context.Context, input service.RegisterInput) (*domain.User, *domain.TokenPair, error)
	Login(ctx context.Context, input service.LoginInput) (*domain.User, *domain.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	VerifyToken(token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	CheckPasswordResetToken(ctx context.Context, uidb64, token string) error
	CompletePasswordReset(ctx context.Context, input service.CompleteResetInput) error
	GetProfile(ctx context.Context, userID string) (*domain.User, error)
	ValidateAccessToken(token string) (*auth.Claims, error)
}

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service AuthService
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// SignupRequest is the JSON request body for user registration.
type SignupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

// LoginRequest is the JSON request body for user login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest is the JSON request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// VerifyTokenRequest is the JSON request body for token verification.
type VerifyTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// PasswordResetRequest is the JSON request body for requesting a reset link.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// CompleteResetRequest is the JSON request body for setting a new password.
type CompleteResetRequest struct {
	Password string `json:"password" validate:"required,min=8"`
	UIDB64   string `json:"uidb64" validate:"required"`
	Token    string `json:"token" validate:"required"`
}

// --- Response types ---

// AuthResponse is the user together with a fresh token pair.
type AuthResponse struct {
	User         *domain.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// ResetCheckResponse reports whether a reset link can still be used.
type ResetCheckResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// --- Handlers ---

// Signup handles POST /api/v1/auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, tokens, err := h.service.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: newAuthResponse(user, tokens)})
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, tokens, err := h.service.Login(r.Context(), service.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: newAuthResponse(user, tokens)})
}

// RefreshToken handles POST /api/v1/auth/token/refresh
func (h *AuthHandler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	tokens, err := h.service.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: tokens})
}

// VerifyToken handles POST /api/v1/auth/token/verify
func (h *AuthHandler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req VerifyTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.VerifyToken(req.Token); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]bool{"valid": true}})
}

// RequestPasswordReset handles POST /api/v1/auth/password-reset
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"message": "We have sent you a link to reset your password"},
	})
}

// CheckPasswordReset handles GET /api/v1/auth/password-reset/{uidb64}/{token}
func (h *AuthHandler) CheckPasswordReset(w http.ResponseWriter, r *http.Request) {
	uidb64 := chi.URLParam(r, "uidb64")
	token := chi.URLParam(r, "token")

	if err := h.service.CheckPasswordResetToken(r.Context(), uidb64, token); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, ResetCheckResponse{Message: "Invalid or expired token"})
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ResetCheckResponse{Success: true, Message: "valid token"})
}

// CompletePasswordReset handles PATCH /api/v1/auth/password-reset/complete
func (h *AuthHandler) CompletePasswordReset(w http.ResponseWriter, r *http.Request) {
	var req CompleteResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.service.CompletePasswordReset(r.Context(), service.CompleteResetInput{
		Password: req.Password,
		UIDB64:   req.UIDB64,
		Token:    req.Token,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]string{"message": "Password reset success"},
	})
}

// Me handles GET /api/v1/users/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetProfile(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: user})
}

func newAuthResponse(user *domain.User, tokens *domain.TokenPair) AuthResponse {
	return AuthResponse{
		User:         user,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}
}
