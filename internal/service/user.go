package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/buymeagift/giftlist/internal/auth"
	"github.com/buymeagift/giftlist/internal/domain"
	"github.com/buymeagift/giftlist/internal/notify"
	"github.com/buymeagift/giftlist/internal/repository"
	apperrors "github.com/buymeagift/giftlist/pkg/errors"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// minPasswordLength is the minimum password length required.
const minPasswordLength = 8

// resetPathPrefix is the public path password reset links point to.
const resetPathPrefix = "/api/v1/auth/password-reset/"

// UserEvents publishes user lifecycle events.
type UserEvents interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishPasswordResetRequested(ctx context.Context, userID string) error
}

// UserService implements the business logic for user and auth operations.
type UserService struct {
	userRepo         repository.UserRepository
	refreshTokenRepo repository.RefreshTokenRepository
	jwtManager       *auth.JWTManager
	events           UserEvents
	mailer           notify.Sender
	publicBaseURL    string
	hashCost         int
	logger           *slog.Logger
}

// NewUserService creates a new user service.
func NewUserService(
	userRepo repository.UserRepository,
	refreshTokenRepo repository.RefreshTokenRepository,
	jwtManager *auth.JWTManager,
	events UserEvents,
	mailer notify.Sender,
	publicBaseURL string,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		userRepo:         userRepo,
		refreshTokenRepo: refreshTokenRepo,
		jwtManager:       jwtManager,
		events:           events,
		mailer:           mailer,
		publicBaseURL:    strings.TrimRight(publicBaseURL, "/"),
		hashCost:         bcryptCost,
		logger:           logger,
	}
}

// --- Auth Input types ---

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Email    string
	Password string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email    string
	Password string
}

// CompleteResetInput holds the parameters for finishing a password reset.
type CompleteResetInput struct {
	Password string
	UIDB64   string
	Token    string
}

// --- Auth Operations ---

// Register creates a new user account, hashes the password, and returns tokens.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*domain.User, *domain.TokenPair, error) {
	email := normalizeEmail(input.Email)
	if email == "" {
		return nil, nil, apperrors.Validation("email", "This field is required.", nil)
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, nil, err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hashedPassword),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	tokens, err := s.generateTokenPair(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	if err := s.events.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
	)

	return user, tokens, nil
}

// Login authenticates a user with email and password, returning tokens.
func (s *UserService) Login(ctx context.Context, input LoginInput) (*domain.User, *domain.TokenPair, error) {
	if input.Email == "" || input.Password == "" {
		return nil, nil, apperrors.Unauthorized("Email or password is incorrect")
	}

	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(input.Email))
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.Unauthorized("Email or password is incorrect")
		}
		return nil, nil, fmt.Errorf("get user for login: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, nil, apperrors.Unauthorized("Email or password is incorrect")
	}

	if !user.IsActive {
		return nil, nil, apperrors.Unauthorized("account is deactivated")
	}

	tokens, err := s.generateTokenPair(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("generate tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
	)

	return user, tokens, nil
}

// RefreshToken rotates a refresh token: the presented one is revoked and a
// new pair is issued.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, apperrors.Validation("refresh_token", "This field is required.", nil)
	}

	claims, err := s.jwtManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}

	tokenHash := auth.HashToken(refreshToken)
	storedToken, err := s.refreshTokenRepo.GetByHash(ctx, tokenHash)
	if err != nil {
		return nil, apperrors.Unauthorized("refresh token not found")
	}

	if !storedToken.Usable(time.Now().UTC()) {
		return nil, apperrors.Unauthorized("refresh token has been revoked or has expired")
	}

	// Revoke is conditional on the token still being live, so a token
	// presented twice at once is honored only once.
	if err := s.refreshTokenRepo.Revoke(ctx, tokenHash); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("refresh token has been revoked or has expired")
		}
		return nil, fmt.Errorf("revoke refresh token: %w", err)
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.Unauthorized("user no longer exists")
	}
	if !user.IsActive {
		return nil, apperrors.Unauthorized("account is deactivated")
	}

	tokens, err := s.generateTokenPair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("generate tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "tokens refreshed",
		slog.String("user_id", user.ID),
	)

	return tokens, nil
}

// VerifyToken checks the signature and expiry of any token this service issued.
func (s *UserService) VerifyToken(token string) error {
	if token == "" {
		return apperrors.Validation("token", "This field is required.", nil)
	}
	if _, err := s.jwtManager.Verify(token); err != nil {
		return apperrors.Unauthorized("Token is invalid or expired")
	}
	return nil
}

// RequestPasswordReset emails a one-time reset link to a registered address.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperrors.Validation("email", "This field is required.", nil)
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.Validation("email", "User does not exist", apperrors.ErrNotFound)
		}
		return fmt.Errorf("get user for password reset: %w", err)
	}

	token, err := s.jwtManager.GeneratePasswordResetToken(user.ID, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}

	link := s.publicBaseURL + resetPathPrefix + auth.EncodeUID(user.ID) + "/" + token
	if err := s.mailer.Send(ctx, notify.PasswordResetMessage(user.Email, link)); err != nil {
		return fmt.Errorf("send password reset mail: %w", err)
	}

	if err := s.events.PublishPasswordResetRequested(ctx, user.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish password reset event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("user_id", user.ID),
	)

	return nil
}

// CheckPasswordResetToken reports whether a reset link is still usable.
func (s *UserService) CheckPasswordResetToken(ctx context.Context, uidb64, token string) error {
	if _, err := s.resolveResetToken(ctx, uidb64, token); err != nil {
		return apperrors.InvalidInput("Invalid or expired token")
	}
	return nil
}

// CompletePasswordReset sets a new password using a reset link's parameters
// and revokes every outstanding refresh token of the user.
func (s *UserService) CompletePasswordReset(ctx context.Context, input CompleteResetInput) error {
	if err := validatePassword(input.Password); err != nil {
		return err
	}

	user, err := s.resolveResetToken(ctx, input.UIDB64, input.Token)
	if err != nil {
		return apperrors.Unauthorized("The reset token is invalid")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, string(hashedPassword)); err != nil {
		return fmt.Errorf("update user password: %w", err)
	}

	if err := s.refreshTokenRepo.RevokeByUserID(ctx, user.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to revoke refresh tokens after password reset",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset completed",
		slog.String("user_id", user.ID),
	)

	return nil
}

// GetProfile retrieves a user by their ID.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	return user, nil
}

// ValidateAccessToken is the token check used by the auth middleware.
func (s *UserService) ValidateAccessToken(token string) (*auth.Claims, error) {
	return s.jwtManager.ValidateAccessToken(token)
}

// --- Helpers ---

func (s *UserService) resolveResetToken(ctx context.Context, uidb64, token string) (*domain.User, error) {
	userID, err := auth.DecodeUID(uidb64)
	if err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.jwtManager.ValidatePasswordResetToken(token, user.ID, user.PasswordHash); err != nil {
		return nil, err
	}

	return user, nil
}

// generateTokenPair creates an access/refresh token pair and stores the refresh token hash.
func (s *UserService) generateTokenPair(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	expiresAt := time.Now().UTC().Add(s.jwtManager.RefreshExpiry())
	if err := s.refreshTokenRepo.Create(ctx, user.ID, auth.HashToken(refreshToken), expiresAt); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.Validation("password",
			fmt.Sprintf("Ensure this field has at least %d characters.", minPasswordLength), nil)
	}
	return nil
}
