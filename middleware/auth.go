package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	ContextUserID      = "user_id"
	ContextIsOrganizer = "is_organizer"
)

// AuthRequired validates the bearer token and exposes the caller's identity
// on the gin context.
func AuthRequired(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}

		userID, ok := claims["user_id"].(float64)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			return
		}
		isOrganizer, _ := claims["is_organizer"].(bool)

		c.Set(ContextUserID, int64(userID))
		c.Set(ContextIsOrganizer, isOrganizer)
		c.Next()
	}
}

// RequireOrganizer gates organizer-only routes. Organizer capability is a
// property of the account, set at registration.
func RequireOrganizer() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !c.GetBool(ContextIsOrganizer) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Organizer account required"})
			return
		}
		c.Next()
	}
}

// UserID reads the authenticated caller's ID set by AuthRequired.
func UserID(c *gin.Context) int64 {
	return c.GetInt64(ContextUserID)
}
