package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// OptionalAuth extracts the caller's user id from a Bearer token when one
// is presented. Anonymous callers pass through untouched; room operations
// that need host authority check the identity themselves.
func OptionalAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.Next()
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.Next()
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if sub, err := claims.GetSubject(); err == nil && sub != "" {
				c.Set("user_id", sub)
			}
		}
		c.Next()
	}
}

// UserID returns the authenticated user id from the context, if any.
func UserID(c *gin.Context) *string {
	if v, ok := c.Get("user_id"); ok {
		if id, ok := v.(string); ok {
			return &id
		}
	}
	return nil
}
