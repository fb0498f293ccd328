package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ListBacktests godoc
// @Summary      List backtest runs
// @Description  Returns persisted backtest runs with their stats, newest first
// @Tags         backtests
// @Produce      json
// @Param        limit  query  int  false  "Number of runs (default 20, max 100)"  default(20)
// @Success      200  {object}  map[string]interface{}
// @Router       /api/backtests [get]
func (h *Handler) ListBacktests(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-backtests")
	defer span.End()

	limit := limitQuery(c, 20, 100)
	runs, err := h.backtests.ListRuns(ctx, h.pair, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetBacktest godoc
// @Summary      Get one backtest run
// @Tags         backtests
// @Produce      json
// @Param        id  path  int  true  "Run ID"
// @Success      200  {object}  domain.BacktestRun
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/backtests/{id} [get]
func (h *Handler) GetBacktest(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-backtest")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	span.SetAttributes(attribute.Int64("run_id", id))

	run, err := h.backtests.GetRun(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, run)
}

// GetBacktestEquity godoc
// @Summary      Get a backtest equity curve
// @Tags         backtests
// @Produce      json
// @Param        id  path  int  true  "Run ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/backtests/{id}/equity [get]
func (h *Handler) GetBacktestEquity(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-backtest-equity")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return
	}
	span.SetAttributes(attribute.Int64("run_id", id))

	curve, err := h.backtests.EquityCurve(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"run_id": id,
		"equity": curve,
	})
}
