package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"charla-llm/internal/config"
	"charla-llm/internal/db"
	apihttp "charla-llm/internal/http"
	"charla-llm/internal/llm"
	"charla-llm/internal/repository"
	"charla-llm/internal/service"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var archive repository.ExchangeLogRepository
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.Ping(ctx, pool); err != nil {
			logger.Warn("db ping failed", zap.Error(err))
		}
		archive = repository.NewPgExchangeLogRepository(pool)
	}

	var rateLimiter service.SendRateLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			rateLimiter = service.NewRedisSendRateLimiter(
				redisClient,
				time.Duration(cfg.SendRateWindowS)*time.Second,
				cfg.SendRateMax,
			)
		}
		cancel()
	}

	var jwtSvc *service.JWTService
	if cfg.JWTSecret != "" {
		jwtSvc = service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute)
	} else {
		logger.Warn("jwt secret not configured, chat API is open")
	}

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
	store := service.NewTranscriptStore()
	exchangeSvc := service.NewExchangeService(store, llmClient, archive, logger, service.ExchangeOptions{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond,
		Greeting:    cfg.GreetingText,
		Fallback:    cfg.FallbackText,
	})

	chatHandler := apihttp.NewChatHandler(logger, exchangeSvc, store)
	router := apihttp.NewRouter(logger, chatHandler, apihttp.RouterOptions{
		JWTService:  jwtSvc,
		RateLimiter: rateLimiter,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.String("session_id", exchangeSvc.Session().ID),
	)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
