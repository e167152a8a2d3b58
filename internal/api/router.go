package api

import (
	"github.com/avelar/songforge/internal/api/handler"
	"github.com/avelar/songforge/internal/api/middleware"
	"github.com/avelar/songforge/internal/config"
	"github.com/avelar/songforge/internal/logger"
	"github.com/avelar/songforge/internal/repository"
	"github.com/avelar/songforge/internal/service"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RouterDeps bundles everything the router needs.
type RouterDeps struct {
	DB          *gorm.DB
	Profiles    *repository.ProfileRepository
	Generations *service.GenerationService
	Quota       *service.QuotaService
	Discovery   *service.DiscoveryService
	Events      *service.EventHub
	Logger      *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(cfg *config.Config, deps *RouterDeps) *gin.Engine {
	// Set Gin mode
	switch cfg.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
	}))

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps.DB)
	generationHandler := handler.NewGenerationHandler(deps.Generations)
	quotaHandler := handler.NewQuotaHandler(deps.Quota, deps.Profiles)
	eventsHandler := handler.NewEventsHandler(deps.Events, cfg.Events.HeartbeatInterval)

	// Health checks
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := r.Group("/api/v1")

	// The provider webhook authenticates nothing; task IDs are unguessable
	// and the handler only moves state forward.
	v1.POST("/generations/callback", generationHandler.Callback)

	authed := v1.Group("")
	authed.Use(middleware.Auth(deps.Profiles))
	{
		// Generations
		authed.POST("/generations", generationHandler.Create)
		authed.GET("/generations", generationHandler.List)
		authed.GET("/generations/:task_id", generationHandler.Get)

		// Quota
		authed.GET("/quota", quotaHandler.Status)
		authed.GET("/quota/credits", quotaHandler.CreditHistory)

		// Events
		authed.GET("/events", eventsHandler.Stream)

		// Discovery
		if deps.Discovery != nil {
			discoveryHandler := handler.NewDiscoveryHandler(deps.Discovery)
			authed.GET("/discovery/search", discoveryHandler.Search)
			authed.GET("/discovery/similar/:task_id/:track_id", discoveryHandler.Similar)
		}
	}

	return r
}
