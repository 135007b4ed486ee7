package auth

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"faceattend/internal/token"
)

// SessionAuth enforces bearer JWT tokens whose jti is still valid in the
// token store. Every failure path denies: a store error never admits a
// request.
func SessionAuth(signingKey, issuer string, tokens token.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		valid, err := tokens.IsValid(c.Request.Context(), claims.ID)
		if err != nil {
			log.Printf("token validity check failed for %s: %v", claims.ID, err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session check failed"})
			return
		}
		if !valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session revoked or expired"})
			return
		}

		if err := tokens.TouchLastUsed(c.Request.Context(), claims.ID); err != nil {
			// Usage tracking is advisory; the failure is surfaced in the log,
			// never silently dropped, and never blocks the request.
			log.Printf("touch last_used failed for %s: %v", claims.ID, err)
		}

		c.Set("claims", claims)
		c.Next()
	}
}

// ClaimsFrom extracts the authenticated claims set by SessionAuth.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get("claims")
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}

// RequireRole gates a route group to one role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok || claims.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}
