package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raceroom/internal/auth"
	"raceroom/internal/cache"
	"raceroom/internal/config"
	"raceroom/internal/database"
	"raceroom/internal/handlers"
	"raceroom/internal/jobs"
	"raceroom/internal/middleware"
	"raceroom/internal/repository"
	"raceroom/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.GetDSN()); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize repository
	repo := repository.NewRepository(database.GetDB())

	// Initialize snapshot cache
	var snapshotCache cache.Cache
	if cfg.App.CacheBackend == "redis" {
		snapshotCache = cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		log.Printf("Snapshot cache: redis (%s)", cfg.Redis.Addr)
	} else {
		snapshotCache = cache.NewMemory()
		log.Println("Snapshot cache: in-memory")
	}

	// Initialize services
	categoryService := services.NewCategoryService(repo, snapshotCache, cfg.App.SnapshotTTL)
	raceService := services.NewRaceService(repo, snapshotCache, cfg.App.SnapshotTTL, categoryService)
	chatService := services.NewChatService(repo, raceService)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(repo)
	categoryHandler := handlers.NewCategoryHandler(categoryService, repo)
	raceHandler := handlers.NewRaceHandler(raceService, categoryService, repo)
	chatHandler := handlers.NewChatHandler(chatService, raceService, repo)
	wsHandler := handlers.NewWSHandler(raceService)

	// Start the room sweeper job
	sweeper := jobs.NewSweeper(raceService, cfg.App.SweepInterval)
	go sweeper.Start()

	// Set up Gin router
	router := gin.Default()
	router.Use(middleware.MetricsMiddleware())

	// CORS middleware
	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite dev server
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if frontendURL := os.Getenv("FRONTEND_URL"); frontendURL != "" {
		allowedOrigins = append(allowedOrigins, frontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Authentication routes (public)
	router.POST("/auth/token", authHandler.Token)

	// Public read routes (identity optional; monitors get the extended view)
	public := router.Group("/api")
	public.Use(auth.OptionalAuthMiddleware())
	{
		public.GET("/categories/:category", categoryHandler.GetCategory)
		public.GET("/:category/:race", raceHandler.GetRace)
		public.GET("/:category/:race/chat", chatHandler.GetChat)
	}

	// API routes (protected)
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware())
	{
		// Category endpoints
		api.POST("/categories/requests", categoryHandler.SubmitRequest)
		api.POST("/categories/requests/:id/accept", categoryHandler.AcceptRequest)
		api.POST("/categories/requests/:id/reject", categoryHandler.RejectRequest)
		api.PATCH("/categories/:category", categoryHandler.UpdateCategory)
		api.POST("/categories/:category/goals", categoryHandler.AddGoal)

		// Race endpoints
		api.POST("/:category/races", raceHandler.CreateRace)
		api.POST("/:category/:race/actions/:action", raceHandler.SelfAction)
		api.POST("/:category/:race/monitor/:action", raceHandler.MonitorAction)
		api.POST("/:category/:race/monitor/:action/:entrant", raceHandler.MonitorAction)

		// Chat endpoints
		api.POST("/:category/:race/chat", chatHandler.PostMessage)
		api.DELETE("/:category/:race/chat/:message", chatHandler.DeleteMessage)
	}

	// WebSocket live updates
	router.GET("/ws/:category/:race", wsHandler.RaceWebSocket)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Server.Port)
		log.Printf("Health check: http://localhost:%s/health", cfg.Server.Port)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	sweeper.Stop()

	// Graceful shutdown with 5 second timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
