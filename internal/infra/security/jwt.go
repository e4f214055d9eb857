package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

const (
	// TokenTypeAccess marks short-lived bearer tokens accepted by protected routes.
	TokenTypeAccess = "access"
	// TokenTypeRefresh marks long-lived tokens redeemable only at the refresh endpoint.
	TokenTypeRefresh = "refresh"
)

var (
	// ErrTokenInvalid indicates the token is malformed or its signature does not verify.
	ErrTokenInvalid = errors.New("jwt: invalid token")
	// ErrTokenExpired indicates the token is past its expiry.
	ErrTokenExpired = errors.New("jwt: token expired")
	// ErrUnexpectedTokenType indicates a token of the wrong type was presented.
	ErrUnexpectedTokenType = errors.New("jwt: unexpected token type")
)

// Claims carries the identity assertions embedded in issued tokens.
type Claims struct {
	Email  string `json:"email,omitempty"`
	Status string `json:"status,omitempty"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and validates HS256 tokens with a shared secret.
type TokenIssuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenIssuer constructs a TokenIssuer. The secret must be non-empty.
func NewTokenIssuer(secret string, issuer string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt: signing secret is required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("jwt: token lifetimes must be positive")
	}

	return &TokenIssuer{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL reports the configured access token lifetime.
func (t *TokenIssuer) AccessTTL() time.Duration {
	return t.accessTTL
}

// RefreshTTL reports the configured refresh token lifetime.
func (t *TokenIssuer) RefreshTTL() time.Duration {
	return t.refreshTTL
}

// IssueAccessToken signs a new access token for the subject.
func (t *TokenIssuer) IssueAccessToken(userID, email, status string, now time.Time) (string, *Claims, error) {
	return t.issue(userID, email, status, TokenTypeAccess, now, t.accessTTL)
}

// IssueRefreshToken signs a new refresh token for the subject.
func (t *TokenIssuer) IssueRefreshToken(userID, email, status string, now time.Time) (string, *Claims, error) {
	return t.issue(userID, email, status, TokenTypeRefresh, now, t.refreshTTL)
}

func (t *TokenIssuer) issue(userID, email, status, tokenType string, now time.Time, ttl time.Duration) (string, *Claims, error) {
	claims := &Claims{
		Email:  email,
		Status: status,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign %s token: %w", tokenType, err)
	}

	return signed, claims, nil
}

// Parse validates the signature and expiry of a token and checks its type claim.
func (t *TokenIssuer) Parse(raw string, expectedType string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrTokenInvalid, token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.Type != expectedType {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrUnexpectedTokenType, claims.Type, expectedType)
	}

	return claims, nil
}
