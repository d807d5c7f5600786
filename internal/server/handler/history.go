package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/haojie06/imagen-http/internal/history"
	"github.com/haojie06/imagen-http/internal/imagen"
	"github.com/haojie06/imagen-http/internal/model"
	"github.com/haojie06/imagen-http/internal/utils"
)

func (h *Handler) ListHistory(c *gin.Context) {
	generations, err := h.service.History(c.Request.Context(), utils.ClientIdentifier(c.Request))
	if err != nil {
		h.historyFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, model.HistoryResponse{Generations: generations})
}

func (h *Handler) GetHistoryEntry(c *gin.Context) {
	generation, err := h.service.HistoryEntry(c.Request.Context(), utils.ClientIdentifier(c.Request), c.Param("id"))
	if err != nil {
		h.historyFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, generation)
}

func (h *Handler) ClearHistory(c *gin.Context) {
	if err := h.service.ClearHistory(c.Request.Context(), utils.ClientIdentifier(c.Request)); err != nil {
		h.historyFailed(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) historyFailed(c *gin.Context, err error) {
	switch {
	case errors.Is(err, history.ErrNotFound), errors.Is(err, imagen.ErrHistoryDisabled):
		utils.GinFailedWithMessage(c, http.StatusNotFound, err.Error())
	default:
		utils.GinFailedWithMessage(c, http.StatusInternalServerError, err.Error())
	}
}
