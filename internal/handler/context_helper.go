package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/hakwonsoft/kinderbook-api/internal/middleware"
	"github.com/hakwonsoft/kinderbook-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// institutionScope resolves the institution an operation applies to. Staff
// of an institution are pinned to their own; the admin may address any via
// the query parameter.
func institutionScope(c *gin.Context) string {
	claims := claimsFromContext(c)
	if claims == nil {
		return ""
	}
	if claims.Role == models.RoleAdmin {
		if id := c.Query("institution_id"); id != "" {
			return id
		}
		return claims.InstitutionID
	}
	return claims.InstitutionID
}
