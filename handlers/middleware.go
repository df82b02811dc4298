package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/labshare/assethub/services"
)

// AuthMiddleware validates session tokens and puts the acting person's ID
// into the gin context under "person_id".
type AuthMiddleware struct {
	Tokens *services.TokenService
}

func NewAuthMiddleware(tokens *services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{Tokens: tokens}
}

// RequireAuth rejects requests without a valid bearer token
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			c.Abort()
			return
		}

		token, err := services.ExtractTokenFromHeader(authHeader)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			c.Abort()
			return
		}

		personID, err := m.Tokens.Verify(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		c.Set("person_id", personID)
		c.Next()
	}
}

// OptionalAuth resolves the actor when a token is present but lets the
// request through either way. Handlers see an empty person_id for
// anonymous requests, which the evaluator treats as the everyone actor.
func (m *AuthMiddleware) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			if token, err := services.ExtractTokenFromHeader(authHeader); err == nil {
				if personID, err := m.Tokens.Verify(token); err == nil {
					c.Set("person_id", personID)
				}
			}
		}
		c.Next()
	}
}
