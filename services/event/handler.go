package event

import (
	"net/http"

	"pixelswap/pkg/config"
	"pixelswap/pkg/errutil"
	"pixelswap/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc     *Service
	origins []string
}

func NewHandler(svc *Service, cfg *config.Config) *Handler {
	return &Handler{svc: svc, origins: cfg.Storefront.AllowedOrigins}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/storefront/v1", middleware.PublicCORS(h.origins))
	g.OPTIONS("/events", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	g.POST("/events", h.record)
}

func (h *Handler) record(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		c.Error(errutil.BadRequest("malformed event", err))
		return
	}

	res, err := h.svc.Record(c.Request.Context(), in)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}
