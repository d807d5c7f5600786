package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/haojie06/imagen-http/internal/model"
)

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, model.HealthResponse{
		Status:    "ok",
		Provider:  h.service.ProviderName(),
		RateLimit: h.service.RateLimited(),
	})
}
