package router

import (
	"database/sql"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/labshare/assethub/authz"
	"github.com/labshare/assethub/handlers"
	"github.com/labshare/assethub/internal/config"
	"github.com/labshare/assethub/lookup"
	"github.com/labshare/assethub/services"
)

func NewGinRouter(pg *sql.DB, rdb *redis.Client) *gin.Engine {
	r := gin.Default()

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Storage and authorization core
	_, resources, directory := authz.NewSimpleBackend(pg)
	defaults := authz.NewSimpleDefaultPolicyStore(pg)

	queue := lookup.NewUpdateQueue(pg, config.App.AuthLookupEnabled)
	cache := lookup.NewCache(pg, rdb)

	evaluator := authz.NewEvaluator(directory)
	evaluator.SetCache(cache)

	// Services
	tokenService := services.NewTokenService(config.App.JWTSecret)
	sharingService := services.NewSharingService(pg, queue)
	membershipService := services.NewMembershipService(pg, queue)

	// Handlers
	authHandler := handlers.NewAuthHandler(membershipService, tokenService)
	checkHandler := handlers.NewCheckHandler(evaluator, resources)
	resourceHandler := handlers.NewResourceHandler(sharingService, evaluator, resources)
	personHandler := handlers.NewPersonHandler(membershipService)
	adminHandler := handlers.NewAdminHandler(membershipService, sharingService, resources, defaults, queue)

	authMiddleware := handlers.NewAuthMiddleware(tokenService)

	// PUBLIC ENDPOINTS
	r.POST("/auth/register", authHandler.Register)
	r.POST("/auth/login", authHandler.Login)

	// Anonymous actors get the everyone identity, so reads and checks only
	// need optional auth.
	public := r.Group("/")
	public.Use(authMiddleware.OptionalAuth())
	{
		public.GET("/authorize/:type/:id", checkHandler.Check)
		public.GET("/authorize/:type/:id/access", checkHandler.Access)
		public.GET("/resources/:type/:id", resourceHandler.GetResource)
	}

	// PROTECTED ENDPOINTS
	protected := r.Group("/")
	protected.Use(authMiddleware.RequireAuth())
	{
		resourceRoutes := protected.Group("/resources")
		{
			resourceRoutes.POST("", resourceHandler.CreateResource)
			resourceRoutes.PATCH("/:type/:id", resourceHandler.UpdateResource)
			resourceRoutes.GET("/:type/:id/policy", resourceHandler.GetPolicy)
			resourceRoutes.PUT("/:type/:id/policy", resourceHandler.UpdatePolicy)
			resourceRoutes.POST("/:type/:id/permissions", resourceHandler.GrantPermission)
			resourceRoutes.DELETE("/:type/:id/permissions", resourceHandler.RevokePermission)
		}

		peopleRoutes := protected.Group("/people")
		{
			peopleRoutes.GET("/:id", personHandler.GetPerson)
			peopleRoutes.PATCH("/:id", personHandler.UpdateProfile)
			peopleRoutes.PUT("/:id/password", personHandler.UpdatePassword)
			peopleRoutes.PUT("/:id/admin", personHandler.SetAdmin)
		}

		membershipRoutes := protected.Group("/memberships")
		{
			membershipRoutes.POST("", personHandler.AddMembership)
			membershipRoutes.PUT("/:id/person", personHandler.ReassignMembership)
			membershipRoutes.POST("/:id/leave", personHandler.LeaveMembership)
		}

		adminRoutes := protected.Group("/admin")
		{
			adminRoutes.POST("/resolve-legacy-scopes", adminHandler.ResolveLegacyScopes)
			adminRoutes.GET("/lookup-queue", adminHandler.QueueStatus)
		}
	}

	return r
}
