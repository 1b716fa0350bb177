package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"engageai/internal/cache"
	"engageai/internal/config"
	"engageai/internal/repository"
	"engageai/internal/service"
	"engageai/internal/transport/rest"
	"engageai/internal/transport/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment")
	}
	cfg := config.Load()
	ctx := context.Background()

	// MongoDB connection
	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer mongoClient.Disconnect(ctx)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := mongoClient.Ping(pingCtx, nil); err != nil {
		log.Fatal("Failed to ping MongoDB:", err)
	}
	log.Println("Connected to MongoDB")

	db := mongoClient.Database(cfg.MongoDB)

	// Redis connection
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Fatal("Failed to ping Redis:", err)
	}
	log.Println("Connected to Redis")

	// WebSocket hub
	wsHub := ws.NewHub()

	// Repositories
	sessionRepo := repository.NewSessionRepo(db)
	engagementRepo := repository.NewEngagementRepo(db)
	classroomRepo := repository.NewClassroomRepo(db)
	userRepo := repository.NewUserRepo(db)

	// Caches
	codeCache := cache.NewCodeCache(rdb)
	liveCache := cache.NewLiveCache(rdb)

	// Services
	authSvc := service.NewAuthService(cfg.JWTSecret)
	scorer := service.NewHTTPScorer(cfg.AIServiceURL, cfg.AITimeout)

	sessionSvc, err := service.NewSessionService(
		sessionRepo, classroomRepo, engagementRepo, userRepo,
		codeCache, liveCache, wsHub,
		cfg.JoinCodeAttempts, cfg.SessionLowEngagementThreshold,
	)
	if err != nil {
		log.Fatal("Failed to init session service:", err)
	}

	engagementSvc, err := service.NewEngagementService(sessionRepo, engagementRepo, liveCache, scorer, wsHub)
	if err != nil {
		log.Fatal("Failed to init engagement service:", err)
	}

	analyticsSvc := service.NewAnalyticsService(
		sessionRepo, engagementRepo, classroomRepo, userRepo, liveCache,
		cfg.SessionLowEngagementThreshold, cfg.WeeklyAtRiskThreshold,
	)

	router := rest.NewRouter(&rest.Container{
		AuthService:       authSvc,
		SessionService:    sessionSvc,
		EngagementService: engagementSvc,
		AnalyticsService:  analyticsSvc,
		WSHub:             wsHub,
		MaxFrameBytes:     cfg.MaxFrameBytes,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on :%s", cfg.HTTPPort)
		log.Printf("AI scorer: %s (timeout %s)", cfg.AIServiceURL, cfg.AITimeout)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("ListenAndServe:", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
