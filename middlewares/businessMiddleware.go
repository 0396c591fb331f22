package middlewares

import (
	"net/http"
	"strconv"

	"bitbucket.org/trimtech/booking_backend/utils"
	"github.com/gin-gonic/gin"
)

// BusinessMiddleware resolves the tenant from the x-business-id header and
// attaches it to the request context. Routes outside the exempt list reject
// requests that carry no tenant.
func BusinessMiddleware(exemptPaths ...string) gin.HandlerFunc {
	exempt := make(map[string]bool, len(exemptPaths))
	for _, p := range exemptPaths {
		exempt[p] = true
	}

	return func(c *gin.Context) {
		businessId := c.GetHeader("x-business-id")
		if businessId == "" {
			if exempt[c.FullPath()] || exempt[c.Request.URL.Path] {
				c.Next()
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "x-business-id header is required"})
			c.Abort()
			return
		}

		ctx := utils.SetBusinessIdInContext(c.Request.Context(), businessId)
		if v := c.GetHeader("x-user-id"); v != "" {
			if userId, err := strconv.Atoi(v); err == nil {
				ctx = utils.SetUserIdInContext(ctx, userId)
			}
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
