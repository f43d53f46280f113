package stats

import (
	"net/http"

	"pixelswap/pkg/config"
	"pixelswap/pkg/errutil"
	"pixelswap/pkg/middleware"
	"pixelswap/services/experiment"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	agg        *Aggregator
	dispatcher *Dispatcher
	secret     string
}

func NewHandler(agg *Aggregator, dispatcher *Dispatcher, cfg *config.Config) *Handler {
	return &Handler{agg: agg, dispatcher: dispatcher, secret: cfg.Auth.AdminSecret}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/admin/v1", middleware.SharedSecret(experiment.AdminSecretHeader, h.secret))
	g.POST("/stats/recompute", h.recompute)
	g.GET("/experiments/:id/stats", h.list)
}

type recomputeRequest struct {
	ExperimentID string `json:"experimentId"`
	Date         string `json:"date"`
}

func (h *Handler) recompute(c *gin.Context) {
	var req recomputeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("malformed request body", err))
		return
	}
	if req.ExperimentID == "" {
		c.Error(errutil.ValidationFailed("experimentId is required", nil,
			errutil.WithDetails(errutil.Detail{Field: "experimentId", Message: "is required"})))
		return
	}
	if req.Date == "" {
		req.Date = h.agg.Yesterday()
	}
	if err := parseDay(req.Date); err != nil {
		c.Error(err)
		return
	}

	if h.dispatcher.Queued() {
		if err := h.dispatcher.Dispatch(c.Request.Context(), req.ExperimentID, req.Date); err != nil {
			c.Error(errutil.Internal("failed to enqueue recompute", err))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"experimentId": req.ExperimentID, "date": req.Date, "queued": true})
		return
	}

	rows, err := h.agg.Recompute(c.Request.Context(), req.ExperimentID, req.Date)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"experimentId": req.ExperimentID, "date": req.Date, "rows": toRows(rows)})
}

func (h *Handler) list(c *gin.Context) {
	rows, err := h.agg.List(c.Request.Context(), c.Param("id"), c.Query("from"), c.Query("to"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": toRows(rows)})
}
