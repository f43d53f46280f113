package httpapi

import (
	"net/http"

	"pixelswap/pkg/config"
	"pixelswap/pkg/health"
	"pixelswap/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewEngine,
		func(e *gin.Engine) http.Handler { return e },
	),
)

// Route is implemented by every service handler that mounts endpoints.
type Route interface {
	Register(r gin.IRouter)
}

// AsRoute annotates a handler constructor so it joins the route group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

type Params struct {
	fx.In
	Config         *config.Config
	Health         health.HealthService
	TracerProvider trace.TracerProvider `optional:"true"`
	Routes         []Route              `group:"routes"`
}

func NewEngine(p Params) *gin.Engine {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	if p.TracerProvider != nil {
		r.Use(otelgin.Middleware(p.Config.AppName, otelgin.WithTracerProvider(p.TracerProvider)))
	}
	r.Use(
		middleware.RequestLogger(),
		middleware.Metrics(),
		middleware.Error(),
	)

	r.GET("/healthz", p.Health.Liveness)
	r.GET("/readyz", p.Health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	for _, route := range p.Routes {
		route.Register(r)
	}

	return r
}
