package experiment

import (
	"net/http"

	"pixelswap/pkg/config"
	"pixelswap/pkg/errutil"
	"pixelswap/pkg/middleware"

	"github.com/gin-gonic/gin"
)

const AdminSecretHeader = "X-Admin-Secret"

type Handler struct {
	svc    *Service
	secret string
}

func NewHandler(svc *Service, cfg *config.Config) *Handler {
	return &Handler{svc: svc, secret: cfg.Auth.AdminSecret}
}

func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/admin/v1/experiments", middleware.SharedSecret(AdminSecretHeader, h.secret))
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.POST("/:id/activate", h.activate)
	g.POST("/:id/pause", h.pause)
}

func (h *Handler) create(c *gin.Context) {
	var in CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.Error(errutil.BadRequest("malformed request body", err))
		return
	}
	exp, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, exp)
}

func (h *Handler) get(c *gin.Context) {
	exp, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, exp)
}

func (h *Handler) activate(c *gin.Context) {
	exp, err := h.svc.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, exp)
}

func (h *Handler) pause(c *gin.Context) {
	exp, err := h.svc.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, exp)
}
