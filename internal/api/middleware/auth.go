package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/avelar/songforge/internal/domain"
	"github.com/avelar/songforge/internal/logger"
	"github.com/avelar/songforge/internal/repository"
	"github.com/gin-gonic/gin"
)

const profileKey = "profile"

// Auth returns a middleware that authenticates requests by API key. The key
// arrives as a Bearer token; the resolved profile is stored on the Gin
// context and the user ID joins the request-scoped logger fields.
// Parameters:
//   - profiles: repository used to resolve API keys.
// Returns:
//   - gin.HandlerFunc: middleware handler.
func Auth(profiles *repository.ProfileRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing or malformed Authorization header",
			})
			return
		}

		profile, err := profiles.GetByAPIKey(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid API key",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Authentication failed",
			})
			return
		}

		ctx := logger.SetUserID(c.Request.Context(), profile.ID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(profileKey, profile)

		c.Next()
	}
}

// GetProfile extracts the authenticated profile from the Gin context.
// Parameters:
//   - c: Gin request context.
// Returns:
//   - *domain.Profile: authenticated profile, or nil outside the auth group.
func GetProfile(c *gin.Context) *domain.Profile {
	if v, exists := c.Get(profileKey); exists {
		if profile, ok := v.(*domain.Profile); ok {
			return profile
		}
	}
	return nil
}
