package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/jackmusick/bifrost-api-sub005/internal/config"
	"github.com/jackmusick/bifrost-api-sub005/internal/http/handler"
	httpmiddleware "github.com/jackmusick/bifrost-api-sub005/internal/http/middleware"
	"github.com/jackmusick/bifrost-api-sub005/internal/middleware"
)

// NewRouter wires Gin routes and middleware. Everything lives under the
// internal API prefix; the callback route is the only public one.
func NewRouter(
	cfg config.Config,
	connections *handler.ConnectionHandler,
	configs *handler.ConfigHandler,
	auth *httpmiddleware.Auth,
	rateLimiter *middleware.RateLimiter,
) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(httpmiddleware.ScopeContext())
	r.Use(otelgin.Middleware(cfg.ServiceName))

	api := r.Group(cfg.InternalAPIPrefix)

	oauth := api.Group("/oauth")
	{
		admin := oauth.Group("", auth.RequireAdmin)
		{
			admin.POST("/connections", connections.Create)
			admin.GET("/connections", connections.List)
			admin.GET("/connections/:name", connections.Get)
			admin.PUT("/connections/:name", connections.Update)
			admin.DELETE("/connections/:name", connections.Delete)
			admin.POST("/connections/:name/authorize", connections.Authorize)
			admin.POST("/connections/:name/cancel", connections.Cancel)
			admin.POST("/connections/:name/refresh", connections.RefreshOne)
			admin.GET("/refresh_job_status", connections.JobStatus)
			admin.POST("/refresh_job", connections.TriggerJob)
		}

		// Public: the provider's browser redirect lands on a UI page that
		// forwards code and state here.
		oauth.POST("/callback/:name", connections.Callback)

		oauth.GET("/credentials/:name", auth.RequireAuthenticated, connections.GetCredentials)
	}

	configGroup := api.Group("/config", auth.RequireAdmin)
	{
		configGroup.GET("", configs.List)
		configGroup.GET("/:key", configs.Get)
		configGroup.PUT("/:key", configs.Set)
		configGroup.DELETE("/:key", configs.Delete)
	}

	return r
}
