package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/haojie06/imagen-http/internal/imagen"
	"github.com/haojie06/imagen-http/internal/model"
	"github.com/haojie06/imagen-http/internal/ratelimit"
	"github.com/haojie06/imagen-http/internal/utils"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

type Handler struct {
	service *imagen.Service
}

func NewHandler(service *imagen.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) GenerateImage(c *gin.Context) {
	var req model.GenerateImageRequest
	// only a missing key answers 400
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.GinFailedWithMessage(c, http.StatusInternalServerError, err.Error())
		return
	}

	out, err := h.service.Generate(c.Request.Context(), imagen.GenerateInput{
		Prompt:        *req.Prompt,
		IterativeMode: *req.IterativeMode,
		UserAPIKey:    req.UserAPIKey,
		ClientID:      utils.ClientIdentifier(c.Request),
	})
	if out != nil && out.RateLimit != nil {
		setRateLimitHeaders(c, out.RateLimit)
	}
	if err != nil {
		switch {
		case imagen.IsClientError(err):
			utils.GinFailedWithMessage(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, imagen.ErrTooManyRequests):
			utils.GinFailedWithMessage(c, http.StatusTooManyRequests, err.Error())
		default:
			utils.GinFailedWithMessage(c, http.StatusInternalServerError, err.Error())
		}
		return
	}
	if out.Cached {
		c.Header("X-Cache", "HIT")
	}
	c.JSON(http.StatusOK, out.Image)
}

func setRateLimitHeaders(c *gin.Context, result *ratelimit.Result) {
	c.Header(HeaderRateLimitLimit, strconv.FormatInt(result.Limit, 10))
	c.Header(HeaderRateLimitRemaining, strconv.FormatInt(result.Remaining, 10))
	c.Header(HeaderRateLimitReset, strconv.FormatInt(result.Reset, 10))
}
