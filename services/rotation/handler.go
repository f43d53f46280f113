package rotation

import (
	"errors"
	"net/http"

	"pixelswap/pkg/config"
	"pixelswap/pkg/errutil"
	"pixelswap/pkg/middleware"
	"pixelswap/services/experiment"

	"github.com/gin-gonic/gin"
)

const RotationSecretHeader = "X-Rotation-Secret"

type Handler struct {
	rotator        *Rotator
	rotationSecret string
	adminSecret    string
}

func NewHandler(rotator *Rotator, cfg *config.Config) *Handler {
	return &Handler{
		rotator:        rotator,
		rotationSecret: cfg.Auth.RotationSecret,
		adminSecret:    cfg.Auth.AdminSecret,
	}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/internal/rotations/run", middleware.SharedSecret(RotationSecretHeader, h.rotationSecret), h.run)

	admin := r.Group("/admin/v1/experiments", middleware.SharedSecret(experiment.AdminSecretHeader, h.adminSecret))
	admin.POST("/:id/override", h.override)
	admin.POST("/:id/complete", h.complete)
}

func (h *Handler) run(c *gin.Context) {
	summary, err := h.rotator.RunDue(c.Request.Context())
	if err != nil {
		c.Error(errutil.Internal("rotation run failed", err))
		return
	}
	c.JSON(http.StatusOK, summary)
}

type overrideRequest struct {
	ForceCase experiment.Case `json:"forceCase"`
}

func (h *Handler) override(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errutil.BadRequest("malformed request body", err))
		return
	}
	if !req.ForceCase.Valid() {
		c.Error(errutil.ValidationFailed("forceCase must be BASE or TEST", nil,
			errutil.WithDetails(errutil.Detail{Field: "forceCase", Message: "must be BASE or TEST"})))
		return
	}

	out, err := h.rotator.Override(c.Request.Context(), c.Param("id"), req.ForceCase)
	h.respond(c, out, err)
}

func (h *Handler) complete(c *gin.Context) {
	out, err := h.rotator.Complete(c.Request.Context(), c.Param("id"))
	h.respond(c, out, err)
}

func (h *Handler) respond(c *gin.Context, out Outcome, err error) {
	switch {
	case errors.Is(err, experiment.ErrNotFound):
		c.Error(errutil.NotFound("experiment not found", err))
	case errors.Is(err, ErrNotActive), errors.Is(err, experiment.ErrInvalidTransition):
		c.Error(errutil.UnprocessableEntity(err.Error(), err))
	case err != nil:
		c.Error(errutil.Internal("failed to load experiment", err))
	case out.Result == ResultSkipped:
		c.Error(errutil.Conflict("experiment is being rotated by another run", nil))
	case out.Result == ResultFailed:
		c.JSON(http.StatusBadGateway, out)
	default:
		c.JSON(http.StatusOK, out)
	}
}
