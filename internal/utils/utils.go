package utils

import (
	"github.com/gin-gonic/gin"
	"github.com/haojie06/imagen-http/internal/model"
)

func GinFailedWithMessage(c *gin.Context, status int, message string) {
	c.JSON(status, model.ErrorResponse{
		Error: message,
	})
}
