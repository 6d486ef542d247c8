package auth

import (
	"chat-hub/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "chat-hub"

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// Identity is the authenticated user behind a request or a connection.
type Identity struct {
	UserID      string
	DisplayName string
}

// Tokens issues and checks identity tokens. Credentials are verified
// elsewhere, the hub only trusts a signed identity.
type Tokens struct {
	secret   []byte
	duration time.Duration
}

func NewTokens(secret string, duration time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), duration: duration}
}

// GenerateToken creates a signed JWT for a specific user.
func (t *Tokens) GenerateToken(identity Identity) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID:      identity.UserID,
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	// HS256 (HMAC with SHA256)
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// ValidateToken parses and validates the signature and expiration of a JWT
// string. Every failure is reported as ErrInvalidToken.
func (t *Tokens) ValidateToken(tokenString string) (Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", errors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid || claims.UserID == "" {
		return Identity{}, errors.ErrInvalidToken
	}
	return Identity{UserID: claims.UserID, DisplayName: claims.DisplayName}, nil
}
