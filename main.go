package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/svrforum/PageVault/api/config"
	"github.com/svrforum/PageVault/api/database"
	"github.com/svrforum/PageVault/api/handlers"
	"github.com/svrforum/PageVault/api/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	handlers.InitLogger(cfg.IsDevelopment())

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(handlers.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}))

	// Database connection
	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Blob store
	blob, err := storage.NewS3Store(storage.S3Options{
		Endpoint:  cfg.S3.Endpoint,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Bucket:    cfg.S3.Bucket,
		Region:    cfg.S3.Region,
		PathStyle: cfg.S3.PathStyle,
	})
	if err != nil {
		log.Fatalf("Failed to create blob store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := blob.EnsureBucket(ctx); err != nil {
		cancel()
		log.Fatalf("Failed to ensure bucket: %v", err)
	}
	cancel()

	// Background cleanup of expired share rows
	sweeper := handlers.NewShareExpirationSweeper(db)
	sweeper.Start(context.Background(), time.Hour)

	// Create handlers
	h := handlers.NewHandler(db)
	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret, cfg.TokenTTL)
	fileHandler := handlers.NewFileHandler(db, blob, authHandler)
	shareHandler := handlers.NewShareHandler(db, blob, cfg.BaseURL)

	// Routes
	e.GET("/health", h.HealthCheck)
	e.GET("/api/health", h.HealthCheck)

	// API group
	api := e.Group("/api")

	// Auth routes (public)
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	// Auth routes (protected)
	authAPI := api.Group("")
	authAPI.Use(authHandler.RequireAuth)
	authAPI.GET("/auth/me", authHandler.Me)

	// File routes (protected)
	authAPI.POST("/files/upload", fileHandler.Upload)
	authAPI.GET("/files", fileHandler.List)
	authAPI.PATCH("/files/:id/lock", fileHandler.UpdateLock)
	authAPI.DELETE("/files/:id", fileHandler.Delete)

	// File bytes: token travels as a query parameter because the endpoint
	// is loaded from iframes and direct navigation.
	api.GET("/files/:id", fileHandler.Get)

	// Share management (protected)
	authAPI.POST("/files/:id/shares", shareHandler.CreateShare)
	authAPI.GET("/files/:id/shares", shareHandler.ListShares)
	authAPI.DELETE("/shares/:id", shareHandler.DeleteShare)

	// Share access (public; a logged-in visitor is attributed in request
	// logs but gets no special treatment)
	api.GET("/s/:token", shareHandler.ResolveShare, authHandler.OptionalAuth)
	api.POST("/s/:token", shareHandler.ResolveShare, authHandler.OptionalAuth)

	// Start server
	log.Printf("Starting PageVault %s on port %s", Version, cfg.Port)
	if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
