package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prepdrill/prepdrill-backend/internal/config"
	"github.com/prepdrill/prepdrill-backend/internal/handler"
	"github.com/prepdrill/prepdrill-backend/internal/middleware"
	"github.com/prepdrill/prepdrill-backend/internal/response"
	"github.com/prepdrill/prepdrill-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth         *handler.AuthHandler
	Session      *handler.SessionHandler
	Attempt      *handler.AttemptHandler
	Subject      *handler.SubjectHandler
	DurationRule *handler.DurationRuleHandler
	WS           *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── 0. Public Group (No Auth) ─────────────────────────────────────
	publicAPI := router.Group("/api/v1")
	{
		// Subject catalog for the session start form; changes rarely.
		publicAPI.GET("/subjects", middleware.CacheControl(300), handlers.Subject.GetAll)
	}

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/login", handlers.Auth.UserLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		// Authenticated profile route
		auth.GET("/me", middleware.RequireUserJWT(authService), handlers.Auth.GetProfile)
	}

	// ─── 2. Quiz Group (User JWT) ──────────────────────────────────────
	quizAPI := router.Group("/api/v1/quiz")
	quizAPI.Use(middleware.RequireUserJWT(authService))
	{
		quizAPI.POST("/sessions", handlers.Session.Start)
		quizAPI.GET("/sessions/active", handlers.Session.GetActive)
		quizAPI.GET("/sessions/:session_id", handlers.Session.GetState)
		quizAPI.POST("/sessions/:session_id/answers", handlers.Session.RecordAnswer)
		quizAPI.POST("/sessions/:session_id/advance", handlers.Session.Advance)
		quizAPI.POST("/sessions/:session_id/goto", handlers.Session.GoTo)
		quizAPI.POST("/sessions/:session_id/submit", handlers.Session.Submit)
		quizAPI.DELETE("/sessions/:session_id", handlers.Session.Abandon)

		quizAPI.GET("/attempts", handlers.Attempt.List)
		quizAPI.GET("/attempts/:attempt_id", handlers.Attempt.Get)
	}

	// ─── 3. WebSocket Group (User WS Auth) ─────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireUserWSAuth(authService))
	{
		ws.GET("/quiz/sessions/:session_id/stream", handlers.WS.SessionStream)
	}

	// ─── 4. Admin Group (Admin JWT) ────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		// Duration rules
		adminAPI.GET("/duration-rules", handlers.DurationRule.List)
		adminAPI.PUT("/duration-rules", handlers.DurationRule.Upsert)
		adminAPI.DELETE("/duration-rules/:id", handlers.DurationRule.Delete)

		// Attempt overview
		adminAPI.GET("/attempts", handlers.Attempt.AdminList)

		// Subjects
		subjectsGroup := adminAPI.Group("/subjects")
		{
			subjectsGroup.GET("", handlers.Subject.GetAll)
			subjectsGroup.POST("", handlers.Subject.Create)
			subjectsGroup.PUT("/:id", handlers.Subject.Update)
			subjectsGroup.DELETE("/:id", handlers.Subject.Delete)
		}
	}

	return router
}
