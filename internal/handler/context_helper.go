package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/special-week-api/internal/dto"
	"github.com/noah-isme/special-week-api/internal/middleware"
	"github.com/noah-isme/special-week-api/internal/models"
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

func actorFromContext(c *gin.Context) (dto.EnrollmentActor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return dto.EnrollmentActor{}, false
	}
	return dto.EnrollmentActor{UserID: claims.UserID, Admin: claims.Role == models.RoleAdmin}, true
}
