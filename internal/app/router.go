package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/handler"
	"dispatch/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	MatchHandler    *handler.MatchHandler
	RideHandler     *handler.RideHandler
	PresenceHandler *handler.PresenceHandler
	RedisClient     *redis.Client
	NewRelicApp     *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.MetricsMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check and metrics.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Matching.
		v1.POST("/match", deps.MatchHandler.FindMatch)
		v1.GET("/drivers/:id", deps.MatchHandler.GetDriver)

		// Ride lifecycle.
		rides := v1.Group("/rides")
		{
			rides.POST("", deps.RideHandler.CreateRide)
			rides.GET("/stream", deps.RideHandler.StreamByStatus)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.POST("/:id/accept", deps.RideHandler.AcceptRide)
			rides.POST("/:id/transition", deps.RideHandler.TransitionRide)
			rides.POST("/:id/updates", deps.RideHandler.PostUpdate)
			rides.GET("/:id/updates", deps.RideHandler.ListUpdates)
			rides.GET("/:id/stream", deps.RideHandler.StreamRide)
		}

		// Driver presence.
		presence := v1.Group("/presence")
		{
			presence.POST("/:id", deps.PresenceHandler.Publish)
			presence.DELETE("/:id", deps.PresenceHandler.Leave)
			presence.GET("/observe", deps.PresenceHandler.Observe)
		}
	}

	return router
}
