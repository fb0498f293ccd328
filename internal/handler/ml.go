package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GetMLPredictions godoc
// @Summary      Recent ML predictions
// @Description  Returns recent classifier predictions with resolution status
// @Tags         ml
// @Produce      json
// @Param        limit  query  int  false  "Number of predictions (default 50, max 500)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Router       /api/ml/predictions [get]
func (h *Handler) GetMLPredictions(c *gin.Context) {
	if h.predictions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ml lane disabled"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-ml-predictions")
	defer span.End()

	limit := limitQuery(c, 50, 500)
	predictions, err := h.predictions.Predictions(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pair":        h.pair,
		"predictions": predictions,
	})
}

// TriggerMLTraining godoc
// @Summary      Trigger ML model training manually
// @Description  Runs an immediate ML training cycle and returns model training outcomes
// @Tags         ml
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/ml/train [post]
func (h *Handler) TriggerMLTraining(c *gin.Context) {
	if h.mlTrainer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ml training service unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.trigger-ml-training")
	defer span.End()

	results, err := h.mlTrainer.RunTraining(ctx, time.Now().UTC())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"trained": len(results),
		"results": results,
	})
}
