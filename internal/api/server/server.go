package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/azzam1122112-dot/school-display/internal/binding"
	"github.com/azzam1122112-dot/school-display/internal/config"
	database "github.com/azzam1122112-dot/school-display/internal/db"
	"github.com/azzam1122112-dot/school-display/internal/revision"
	"github.com/azzam1122112-dot/school-display/internal/snapshot"
	"github.com/azzam1122112-dot/school-display/internal/store"
	"github.com/azzam1122112-dot/school-display/internal/ws"

	"github.com/azzam1122112-dot/school-display/internal/api/handlers"
	"github.com/azzam1122112-dot/school-display/internal/api/middleware"
)

// Deps bundles everything the router serves. cmd/server wires it once.
type Deps struct {
	Cfg         *config.Config
	DB          *database.Client
	Store       *store.Client
	Registry    *revision.Registry
	Signals     *revision.Signals
	Coordinator *snapshot.Coordinator
	Binding     *binding.Service
	Hub         *ws.Hub
	WSMetrics   *ws.Metrics
}

type Server struct {
	deps   Deps
	router *gin.Engine
}

func New(deps Deps) *Server {
	if !deps.Cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		deps:   deps,
		router: gin.New(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.SilentLogger(), gin.Recovery())

	// Displays are served cross-origin (kiosk pages on school domains).
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "If-None-Match"}
	corsConfig.ExposeHeaders = []string{"ETag", "X-Server-Time-MS", "X-Schedule-Revision", "Retry-After"}
	s.router.Use(cors.New(corsConfig))
}

func (s *Server) setupRoutes() {
	displayHandler := handlers.NewDisplayHandler(s.deps.Registry, s.deps.Coordinator, s.deps.Binding, s.deps.Cfg)
	metricsHandler := handlers.NewMetricsHandler(s.deps.WSMetrics, s.deps.Cfg)
	authHandler := handlers.NewAuthHandler(s.deps.DB.DB, []byte(s.deps.Cfg.Auth.JWTSecret))
	adminHandler := handlers.NewAdminHandler(s.deps.Registry, s.deps.Binding, s.deps.Signals)
	wsHandler := ws.NewHandler(s.deps.Hub, s.deps.Binding, s.deps.WSMetrics)

	// Health Check
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "school-display"})
	})

	// ==========================================
	// DISPLAY ROUTES (screen-token auth, rate limited)
	// ==========================================
	display := s.router.Group("/api/display")
	{
		limited := display.Group("/")
		limited.Use(middleware.RateLimit(s.deps.Store))
		{
			limited.GET("/status/:token/", displayHandler.Status)
			limited.GET("/snapshot/:token/", displayHandler.Snapshot)
		}

		// Public health surface: counters only, no auth by design.
		display.GET("/ws-metrics/", metricsHandler.WSMetrics)
	}

	// Push plane
	s.router.GET("/ws/display/", wsHandler.Serve)

	// ==========================================
	// ADMIN RECOVERY (JWT required)
	// ==========================================
	admin := s.router.Group("/api/admin")
	{
		admin.POST("/auth/login", authHandler.Login)

		protected := admin.Group("/")
		protected.Use(middleware.RequireAuth([]byte(s.deps.Cfg.Auth.JWTSecret)))
		{
			protected.POST("/revision", middleware.RequireRole("admin"), adminHandler.SetRevision)
			protected.POST("/schools/:id/refresh", middleware.RequireRole("admin", "support"), adminHandler.ForceRefresh)
			protected.POST("/screens/:id/unbind", middleware.RequireRole("admin", "support"), adminHandler.UnbindScreen)
		}
	}
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the server on the configured port
func (s *Server) Start(addr string) error {
	return s.router.Run(addr)
}
