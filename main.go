package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"swasthyaconnect-server/internal/chat"
	"swasthyaconnect-server/internal/config"
	"swasthyaconnect-server/internal/logger"
	"swasthyaconnect-server/internal/middleware"
	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/notify"
	"swasthyaconnect-server/internal/realtime"
	"swasthyaconnect-server/internal/routes"
	"swasthyaconnect-server/internal/storage"
	"swasthyaconnect-server/internal/utils"
)

func main() {
	// A missing .env is fine when the environment is provided by the host.
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Environment, cfg.LogLevel)
	if envErr != nil {
		log.Warn().Err(envErr).Msg("no .env file loaded, using process environment")
	}

	db, err := models.InitDB(models.DatabaseConfig{DSN: cfg.Database.DSN})
	if err != nil {
		log.Fatal().Err(err).Msg("Error connecting to database")
	}

	broker, redisClient := newBroker(cfg)
	hub, err := realtime.NewHub(broker)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start realtime hub")
	}

	store, err := storage.NewLocalStore(cfg.Uploads.Dir, cfg.Uploads.PublicPrefix, cfg.Uploads.MaxBytes)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare upload directory")
	}

	chatService := chat.NewService(db, chat.NewGate(db), store)
	relay := realtime.NewRelay(hub, chatService)

	if err := utils.RegisterValidators(); err != nil {
		log.Fatal().Err(err).Msg("Failed to register validators")
	}

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())
	// Multipart bodies beyond this spill to temp files; the store enforces the real limit.
	router.MaxMultipartMemory = store.MaxBytes() + 1<<20

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Origin}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	router.Use(cors.New(corsConfig))

	routes.SetupRoutes(router, routes.Deps{
		DB:       db,
		Cfg:      cfg,
		Store:    store,
		Chat:     chatService,
		Hub:      hub,
		Relay:    relay,
		Notifier: notify.FromConfig(cfg),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Msg("Server running")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during server shutdown")
	}
	// Hijacked websocket connections are not covered by Shutdown.
	if err := hub.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing realtime hub")
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing redis client")
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	log.Info().Msg("Server stopped")
}

// newBroker picks the Redis fan-out when REDIS_ADDR is set and the in-process broker otherwise.
func newBroker(cfg *config.Config) (realtime.Broker, *redis.Client) {
	if cfg.Redis.Addr == "" {
		log.Info().Msg("realtime: using in-process broker")
		return realtime.NewLocalBroker(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("Failed to connect to redis")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Str("channel", cfg.Redis.Channel).Msg("realtime: using redis broker")
	return realtime.NewRedisBroker(client, cfg.Redis.Channel), client
}
