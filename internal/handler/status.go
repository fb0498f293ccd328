package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetStatus godoc
// @Summary      Current loop status
// @Description  Returns the live snapshot: last bar, equity, daily PnL, open position, governor lock and macro bias
// @Tags         status
// @Produce      json
// @Success      200  {object}  domain.StatusSnapshot
// @Failure      503  {object}  map[string]string
// @Router       /api/status [get]
func (h *Handler) GetStatus(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-status")
	defer span.End()

	if h.status == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "decision loop not running"})
		return
	}
	c.JSON(http.StatusOK, h.status.Status(ctx))
}

// GetMacroSnapshot godoc
// @Summary      Macro bias snapshot
// @Description  Returns the current composite macro bias with its inputs and answers
// @Tags         macro
// @Produce      json
// @Success      200  {object}  domain.MacroSnapshot
// @Failure      404  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/macro [get]
func (h *Handler) GetMacroSnapshot(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-macro")
	defer span.End()

	if h.macro == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "macro engine disabled"})
		return
	}
	snapshot, err := h.macro.Snapshot(ctx, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no macro snapshot available"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
