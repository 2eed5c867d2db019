package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edt-api/internal/middleware"
	"github.com/noah-isme/edt-api/internal/models"
)

func actorFromContext(c *gin.Context) *models.ActorClaims {
	value, exists := c.Get(middleware.ContextActorKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.ActorClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorID(c *gin.Context) string {
	if claims := actorFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func queryIntPtr(c *gin.Context, key string) *int {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &value
}

func queryBoolPtr(c *gin.Context, key string) *bool {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &value
}

func pagination(c *gin.Context) (int, int) {
	return queryInt(c, "page", 1), queryInt(c, "pageSize", 20)
}
