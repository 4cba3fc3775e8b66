// Package auth provides authentication primitives for the visa tracker:
// JWT session token generation and validation, bcrypt hashing of login
// secrets, unique-code generation, and account lockout state.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents JWT claims for an authenticated identity
type Claims struct {
	IdentityID string `json:"identity_id"`
	NaturalKey string `json:"natural_key"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken generates a new JWT token for an identity. The natural key is
// the applicant's passport number or the admin's username.
func GenerateToken(identityID, naturalKey, role, secret, issuer string, expiration time.Duration) (string, error) {
	claims := &Claims{
		IdentityID: identityID,
		NaturalKey: naturalKey,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}
