package storefront

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"pixelswap/pkg/config"
	"pixelswap/pkg/errutil"
	"pixelswap/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc     *Service
	origins []string
	maxAge  time.Duration
}

func NewHandler(svc *Service, cfg *config.Config) *Handler {
	return &Handler{
		svc:     svc,
		origins: cfg.Storefront.AllowedOrigins,
		maxAge:  cfg.Storefront.CacheTTL,
	}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/storefront/v1", middleware.PublicCORS(h.origins))
	g.OPTIONS("/active-case", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	g.GET("/active-case", h.activeCase)
}

func (h *Handler) activeCase(c *gin.Context) {
	productID := strings.TrimSpace(c.Query("product_id"))
	if productID == "" {
		c.Error(errutil.BadRequest("product_id is required", nil))
		return
	}

	ac, err := h.svc.ActiveCase(c.Request.Context(), productID, strings.TrimSpace(c.Query("variant_id")))
	if err != nil {
		c.Error(errutil.Internal("failed to resolve active case", err))
		return
	}

	if h.maxAge > 0 {
		c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.maxAge.Seconds())))
	}
	c.JSON(http.StatusOK, ac)
}
