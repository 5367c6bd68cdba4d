package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "giftlist"

// TokenType distinguishes the purposes a signed token can be issued for.
type TokenType string

const (
	TokenAccess        TokenType = "access"
	TokenRefresh       TokenType = "refresh"
	TokenPasswordReset TokenType = "password_reset"
)

// ErrWrongTokenType is returned when a valid token is presented for the wrong purpose.
var ErrWrongTokenType = errors.New("wrong token type")

// Claims represents the JWT claims shared by every token type. Fingerprint
// is only set on password reset tokens and binds them to the password hash
// they were issued against.
type Claims struct {
	UserID      string    `json:"user_id"`
	Email       string    `json:"email,omitempty"`
	Type        TokenType `json:"typ"`
	Fingerprint string    `json:"fp,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager handles JWT token generation and validation.
type JWTManager struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	resetExpiry   time.Duration
	now           func() time.Time
}

// NewJWTManager creates a new JWT manager with the given secret and expiry durations.
func NewJWTManager(secret string, accessExpiry, refreshExpiry, resetExpiry time.Duration) *JWTManager {
	return &JWTManager{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
		resetExpiry:   resetExpiry,
		now:           time.Now,
	}
}

// RefreshExpiry is the lifetime of refresh tokens, used when persisting them.
func (m *JWTManager) RefreshExpiry() time.Duration { return m.refreshExpiry }

// GenerateAccessToken creates a signed access token for the user.
func (m *JWTManager) GenerateAccessToken(userID, email string) (string, error) {
	return m.sign(&Claims{UserID: userID, Email: email, Type: TokenAccess}, m.accessExpiry)
}

// GenerateRefreshToken creates a signed refresh token. Each call yields a
// distinct token so the stored hashes never collide.
func (m *JWTManager) GenerateRefreshToken(userID string) (string, error) {
	return m.sign(&Claims{UserID: userID, Type: TokenRefresh}, m.refreshExpiry)
}

// GeneratePasswordResetToken creates a reset token that stops validating once
// the user's password hash changes.
func (m *JWTManager) GeneratePasswordResetToken(userID, passwordHash string) (string, error) {
	return m.sign(&Claims{
		UserID:      userID,
		Type:        TokenPasswordReset,
		Fingerprint: Fingerprint(passwordHash),
	}, m.resetExpiry)
}

// ValidateAccessToken parses an access token, returning the claims.
func (m *JWTManager) ValidateAccessToken(tokenString string) (*Claims, error) {
	return m.parse(tokenString, TokenAccess)
}

// ValidateRefreshToken parses a refresh token, returning the claims.
func (m *JWTManager) ValidateRefreshToken(tokenString string) (*Claims, error) {
	return m.parse(tokenString, TokenRefresh)
}

// ValidatePasswordResetToken parses a reset token and checks it was issued
// for userID while the password hash was still passwordHash.
func (m *JWTManager) ValidatePasswordResetToken(tokenString, userID, passwordHash string) (*Claims, error) {
	claims, err := m.parse(tokenString, TokenPasswordReset)
	if err != nil {
		return nil, err
	}
	if claims.UserID != userID || claims.Fingerprint != Fingerprint(passwordHash) {
		return nil, fmt.Errorf("reset token does not match user")
	}
	return claims, nil
}

// Verify parses any token type issued by this manager.
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	return m.parse(tokenString, "")
}

func (m *JWTManager) sign(claims *Claims, ttl time.Duration) (string, error) {
	now := m.now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", claims.Type, err)
	}

	return signedToken, nil
}

func (m *JWTManager) parse(tokenString string, want TokenType) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if want != "" && claims.Type != want {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongTokenType, claims.Type, want)
	}

	return claims, nil
}

// Fingerprint is a short digest of a password hash.
func Fingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:8])
}

// HashToken returns the hex sha256 of a token for storage.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// EncodeUID encodes a user id for use in a reset link path segment.
func EncodeUID(userID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(userID))
}

// DecodeUID reverses EncodeUID.
func DecodeUID(uidb64 string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(uidb64)
	if err != nil {
		return "", fmt.Errorf("decode uid: %w", err)
	}
	return string(raw), nil
}
