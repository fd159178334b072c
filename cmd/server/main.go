package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/voxbridge/signal-server-go/internal/config"
	"github.com/voxbridge/signal-server-go/internal/database"
	"github.com/voxbridge/signal-server-go/internal/enhance"
	"github.com/voxbridge/signal-server-go/internal/handler"
	"github.com/voxbridge/signal-server-go/internal/hub"
	"github.com/voxbridge/signal-server-go/internal/jobs"
	"github.com/voxbridge/signal-server-go/internal/media"
	"github.com/voxbridge/signal-server-go/internal/middleware"
	"github.com/voxbridge/signal-server-go/internal/redis"
	"github.com/voxbridge/signal-server-go/internal/repository"
	"github.com/voxbridge/signal-server-go/internal/service"
	"github.com/voxbridge/signal-server-go/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	store, err := storage.NewMinioStore(
		cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to object storage")
	}
	log.Info().Str("bucket", cfg.MinioBucket).Msg("object storage ready")

	userRepo := repository.NewUserRepository(db.DB)
	messageRepo := repository.NewMessageRepository(db.DB)
	callRepo := repository.NewCallRepository(db.DB)

	registry := hub.NewRegistry(redisClient)
	defer registry.Close()

	mediaClient := media.NewClient(cfg.MediaServerURL, cfg.MediaAPIKey, config.MediaRequestTimeout)

	var enhancer enhance.Enhancer
	if cfg.EnhancerURL != "" {
		enhancer = enhance.NewHTTPEnhancer(cfg.EnhancerURL)
		log.Info().Str("url", cfg.EnhancerURL).Msg("recording enhancer enabled")
	}

	recordingService := service.NewRecordingService(callRepo, mediaClient, store, enhancer, cfg.RecordingSettle())
	router := service.NewSignalRouter(registry, messageRepo, callRepo)
	callService := service.NewCallService(callRepo, userRepo, router, recordingService, cfg.RingTimeout())
	defer callService.StopTimers()

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret, userRepo)

	wsHandler := handler.NewWSHandler(registry, router, callService)
	historyHandler := handler.NewHistoryHandler(messageRepo, callRepo, store)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/ws", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Get("/", wsHandler.ServeHTTP)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
		r.Get("/conversations/{peerID}/messages", historyHandler.GetConversation)
		r.Post("/conversations/{peerID}/read", historyHandler.MarkConversationRead)
		r.Get("/calls", historyHandler.GetCalls)
		r.Get("/calls/{callID}", historyHandler.GetCall)
	})

	sweeper := jobs.NewSweeperJob(callRepo, cfg.RingTimeout(), config.SweeperJobInterval)
	sweeper.Start()
	defer sweeper.Stop()

	server := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     r,
		ReadTimeout: config.ServerReadTimeout,
		// Write timeout stays zero so websocket connections are not cut off.
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
