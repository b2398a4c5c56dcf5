package tokengen

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTypeRefresh marks refresh tokens so they can never be replayed as
// access tokens.
const TokenTypeRefresh = "refresh"

// Claims carries the JWT claims embedded in issued tokens
type Claims struct {
	Username  string   `json:"username,omitempty"`
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	Active    bool     `json:"active,omitempty"`
	Verified  bool     `json:"verified,omitempty"`
	TokenType string   `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// UserClaims is the identity snapshot embedded into an access token
type UserClaims struct {
	UserID   string
	Email    string
	Username string
	Roles    []string
	Active   bool
	Verified bool
}

// Issuer signs and validates HS256 tokens. Access tokens carry the full
// identity snapshot; refresh tokens carry only the subject and a type marker
// and are revocable through the store, not the signature.
type Issuer struct {
	secret        []byte
	issuer        string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewIssuer creates an Issuer with the given signing secret and expiries
func NewIssuer(secret, issuer string, accessExpiry, refreshExpiry time.Duration) *Issuer {
	return &Issuer{
		secret:        []byte(secret),
		issuer:        issuer,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// AccessTokenExpiry returns the configured access token lifetime
func (g *Issuer) AccessTokenExpiry() time.Duration {
	return g.accessExpiry
}

// IssueAccessToken creates a signed short-lived access token for the user
func (g *Issuer) IssueAccessToken(user UserClaims) (string, time.Time, error) {
	now := time.Now().UTC()
	claims := Claims{
		Username: user.Username,
		Email:    user.Email,
		Roles:    user.Roles,
		Active:   user.Active,
		Verified: user.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(g.accessExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    g.issuer,
			Subject:   user.UserID,
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// IssueRefreshToken creates a signed long-lived refresh token. The signed
// value is also what gets persisted, so the store lookup is the source of
// truth for revocation.
func (g *Issuer) IssueRefreshToken(userID string) (string, time.Time, error) {
	now := time.Now().UTC()
	claims := Claims{
		TokenType: TokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(g.refreshExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    g.issuer,
			Subject:   userID,
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// ParseAccessToken verifies signature and expiry and returns the claims.
// Malformed, expired or mis-signed input returns an error, never a panic.
// A refresh token presented here is rejected by its type marker.
func (g *Issuer) ParseAccessToken(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.TokenType == TokenTypeRefresh {
		return nil, fmt.Errorf("refresh token used as access token")
	}

	return claims, nil
}
