package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/admaesmo/aiddiag/internal/config"
	"github.com/admaesmo/aiddiag/internal/domain"
	"github.com/admaesmo/aiddiag/internal/http/handler"
	httpmiddleware "github.com/admaesmo/aiddiag/internal/http/middleware"
	"github.com/admaesmo/aiddiag/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, authHandler *handler.AuthHandler, auth *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/health", authHandler.Health)
	r.GET("/jwks.json", authHandler.JWKS)
	r.GET("/.well-known/jwks.json", authHandler.JWKS)

	v1 := r.Group("/api/v1/auth")
	{
		v1.POST("/signup", authHandler.SignUp)
		v1.POST("/signin", authHandler.SignIn)
		v1.POST("/refresh", authHandler.Refresh)

		v1.POST("/assign-role", auth.RequireRoles(domain.RoleAdmin), authHandler.AssignRole)
		v1.POST("/mfa/enable", auth.Authenticate, authHandler.EnableMFA)
		v1.POST("/password/reset", auth.Authenticate, authHandler.ResetPassword)
		v1.GET("/me", auth.Authenticate, authHandler.Me)
	}

	return r
}
