package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/helpdesk/internal/auth"
	"github.com/yoockh/helpdesk/internal/cache"
	"github.com/yoockh/helpdesk/internal/utils"
)

type apiError struct {
	Success bool       `json:"success"`
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
}

const (
	CtxUserID = "user_id"
	CtxRole   = "role"
	CtxName   = "name"
	CtxClaims = "claims"
)

// JWTAuth verifies the bearer token and rejects tokens revoked at logout.
// revoked may be nil.
func JWTAuth(issuer *auth.Issuer, revoked cache.Revocations) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
				Code:    utils.CodeUnauthorized,
				Message: "missing bearer token",
			})
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
				Code:    utils.CodeUnauthorized,
				Message: "missing bearer token",
			})
			return
		}

		claims, err := issuer.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
				Code:    utils.CodeUnauthorized,
				Message: "invalid token",
			})
			return
		}

		if revoked != nil && claims.ID != "" {
			gone, err := revoked.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, apiError{
					Code:    utils.CodeUnavailable,
					Message: "token check unavailable",
				})
				return
			}
			if gone {
				c.AbortWithStatusJSON(http.StatusUnauthorized, apiError{
					Code:    utils.CodeUnauthorized,
					Message: "token revoked",
				})
				return
			}
		}

		c.Set(CtxUserID, claims.Subject)
		c.Set(CtxRole, string(claims.Role))
		c.Set(CtxName, claims.Name)
		c.Set(CtxClaims, claims)
		c.Next()
	}
}
