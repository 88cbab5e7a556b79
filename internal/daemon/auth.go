package daemon

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"townhall/internal/api"
)

const claimsKey = "claims"

// authMiddleware validates HS256 bearer tokens. An empty secret disables
// authentication and every request passes through.
func authMiddleware(secret, issuer string) gin.HandlerFunc {
	if strings.TrimSpace(secret) == "" {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		claims, err := api.ParseBearer(c.GetHeader("Authorization"), secret, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}
