package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dajam-backend/internal/changefeed"
	"dajam-backend/internal/config"
	"dajam-backend/internal/database"
	"dajam-backend/internal/handlers"
	"dajam-backend/internal/middleware"
	"dajam-backend/internal/participation"
	"dajam-backend/internal/repository"
	"dajam-backend/internal/router"
	"dajam-backend/internal/services"
	"dajam-backend/internal/websocket"
	"dajam-backend/internal/worker"
	"dajam-backend/migrations"
)

func main() {
	log.Println("🚀 Starting DaJam Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL, worker.BlockTimeout)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, migrations.FS); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	sessionRepo := repository.NewSessionRepo(pool)
	participantRepo := repository.NewParticipantRepo(pool)
	rowRepo := repository.NewDataRowRepo(pool)

	// ──── Initialize Change Feed ────
	publisher := changefeed.NewRedisPublisher(redisClients.PubSub)
	feed := changefeed.NewRedisFeed(redisClients.PubSub)

	// ──── Initialize Services ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.TokenTTL)
	directory := services.NewSessionDirectory(sessionRepo, participantRepo, rowRepo, publisher, cfg.CodeLength)
	results := services.NewResultsService(directory)
	caches := func(deviceID string) *participation.Cache {
		store := participation.NewRedisStore(redisClients.Queue, deviceID, cfg.ParticipationTTL)
		return participation.NewCache(store, cfg.ParticipationTTL)
	}

	// ──── Step 5: Start Submission Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, directory, cfg.SubmissionWorkers)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.SubmissionWorkers)

	expirySweeper := services.NewExpirySweeper(directory, cfg.ExpirySweepInterval)
	expirySweeper.Start()
	log.Println("✓ Expiry sweeper started")

	// ──── Step 6: Start WebSocket Hub ────
	wsHub := websocket.NewHub(feed, directory, results, jwtAuth, websocket.FeedSettings{
		BaseDelay:  cfg.FeedBaseDelay,
		MaxDelay:   cfg.FeedMaxDelay,
		MaxRetries: cfg.FeedMaxRetries,
	})
	log.Println("✓ WebSocket hub started")

	// ──── Initialize Handlers ────
	sessionHandler := handlers.NewSessionHandler(directory, results, jwtAuth, caches, cfg.FrontendURL)
	participantHandler := handlers.NewParticipantHandler(directory, jwtAuth, caches)
	rowHandler := handlers.NewRowHandler(directory, workerPool)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(jwtAuth, router.Handlers{
		Sessions:     sessionHandler,
		Participants: participantHandler,
		Rows:         rowHandler,
		WebSocket:    wsHub.HandleWebSocket,
	}, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()
		expirySweeper.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ DaJam Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/sessions/{id}/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
