package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for malformed, expired or mis-signed tokens
var ErrInvalidToken = errors.New("invalid token")

const tokenTTL = 24 * time.Hour

// TokenService issues and verifies the HS256 session tokens used by the
// API middleware to identify the acting person.
type TokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService signing with the given secret
func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

type sessionClaims struct {
	PersonID string `json:"person_id"`
	jwt.RegisteredClaims
}

// Issue creates a signed token for the person
func (t *TokenService) Issue(personID string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		PersonID: personID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   personID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the person ID it was issued for
func (t *TokenService) Verify(tokenString string) (string, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.PersonID == "" {
		return "", ErrInvalidToken
	}
	return claims.PersonID, nil
}

// ExtractTokenFromHeader pulls the bearer token out of an Authorization header
func ExtractTokenFromHeader(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}
	return parts[1], nil
}
