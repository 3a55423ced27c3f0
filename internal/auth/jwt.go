// Package auth verifies the bearer credentials presented during the WebSocket
// handshake and can mint tokens for local testing.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when the handshake carries no credential.
	ErrMissingToken = errors.New("auth: missing token")
	// ErrInvalidToken covers malformed, expired and badly signed tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Claims is the decoded token payload. The subject lives in the "id" claim;
// tokens that only carry the registered "sub" claim are accepted as well.
type Claims struct {
	ID string `json:"id,omitempty"`
	jwt.RegisteredClaims
}

// SubjectID returns the identifier of the authenticated subject.
func (c *Claims) SubjectID() string {
	if c.ID != "" {
		return c.ID
	}
	return c.Subject
}

// JWTManager signs and verifies HMAC-SHA256 tokens.
type JWTManager struct {
	secretKey     []byte
	issuer        string
	tokenDuration time.Duration
}

// NewJWTManager creates a manager. An empty issuer disables the issuer check;
// a non-positive duration produces tokens without expiry.
func NewJWTManager(secretKey, issuer string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		issuer:        issuer,
		tokenDuration: tokenDuration,
	}
}

// Generate creates a signed token for subjectID.
func (m *JWTManager) Generate(subjectID string) (string, error) {
	if subjectID == "" {
		return "", errors.New("auth: subject id is required")
	}

	now := time.Now()
	claims := &Claims{
		ID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Subject:   subjectID,
		},
	}
	if m.tokenDuration > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.tokenDuration))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates tokenString and returns its claims. Every failure wraps
// ErrMissingToken or ErrInvalidToken.
func (m *JWTManager) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return m.secretKey, nil
		},
		opts...,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unreadable claims", ErrInvalidToken)
	}
	if claims.SubjectID() == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	return claims, nil
}
