package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetDecisions godoc
// @Summary      Recent decisions
// @Description  Returns the most recent signal evaluations, newest first
// @Tags         decisions
// @Produce      json
// @Param        limit  query  int  false  "Number of decisions (default 50, max 500)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Router       /api/decisions [get]
func (h *Handler) GetDecisions(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-decisions")
	defer span.End()

	limit := limitQuery(c, 50, 500)
	decisions, err := h.decisions.RecentDecisions(ctx, h.pair, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pair":      h.pair,
		"decisions": decisions,
	})
}

// GetLatestDecision godoc
// @Summary      Latest decision
// @Description  Returns the newest signal evaluation for the configured pair
// @Tags         decisions
// @Produce      json
// @Success      200  {object}  domain.Decision
// @Failure      404  {object}  map[string]string
// @Router       /api/decisions/latest [get]
func (h *Handler) GetLatestDecision(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-latest-decision")
	defer span.End()

	dec, err := h.decisions.LatestDecision(ctx, h.pair)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if dec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no decisions recorded yet"})
		return
	}
	c.JSON(http.StatusOK, dec)
}

// GetTrades godoc
// @Summary      Recent closed trades
// @Description  Returns the most recent closed trades, newest first
// @Tags         trades
// @Produce      json
// @Param        limit  query  int  false  "Number of trades (default 50, max 500)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Router       /api/trades [get]
func (h *Handler) GetTrades(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-trades")
	defer span.End()

	limit := limitQuery(c, 50, 500)
	trades, err := h.trades.RecentTrades(ctx, h.pair, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pair":   h.pair,
		"trades": trades,
	})
}

// GetBars godoc
// @Summary      Recent bars
// @Description  Returns the most recent stored bars in ascending open-time order
// @Tags         bars
// @Produce      json
// @Param        limit  query  int  false  "Number of bars (default 200, max 2000)"  default(200)
// @Success      200  {object}  map[string]interface{}
// @Router       /api/bars [get]
func (h *Handler) GetBars(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-bars")
	defer span.End()

	limit := limitQuery(c, 200, 2000)
	bars, err := h.bars.GetBars(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pair": h.pair,
		"bars": bars,
	})
}
