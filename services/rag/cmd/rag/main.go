package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"docchat/internal/servicetoken"
	"docchat/internal/util"
	"docchat/services/rag/internal/app"
	"docchat/services/rag/internal/config"
	"docchat/services/rag/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		StoreBackend:        cfg.StoreBackend,
		DatabaseURL:         cfg.DatabaseURL,
		EmbeddingDim:        cfg.EmbeddingDim,
		ObjectBackend:       cfg.ObjectBackend,
		DataDir:             cfg.DataDir,
		MinioEndpoint:       cfg.MinioEndpoint,
		MinioAccessKey:      cfg.MinioAccessKey,
		MinioSecretKey:      cfg.MinioSecretKey,
		MinioBucket:         cfg.MinioBucket,
		MinioUseSSL:         cfg.MinioUseSSL,
		ModelBaseURL:        cfg.ModelBaseURL,
		ModelAPIKey:         cfg.ModelAPIKey,
		EmbeddingModel:      cfg.EmbeddingModel,
		GenerationModel:     cfg.GenerationModel,
		MaxTokens:           cfg.MaxTokens,
		TopK:                cfg.TopK,
		SimilarityThreshold: cfg.SimilarityThreshold,
		ChunkSize:           cfg.ChunkSize,
		ChunkOverlap:        cfg.ChunkOverlap,
		MaxFiles:            cfg.MaxFiles,
		MaxFileBytes:        int64(cfg.MaxFileSizeMB) << 20,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	verifier, err := servicetoken.NewVerifier("rag", cfg.InternalTokenSecret, allowedIssuers(cfg), servicetoken.DefaultLeeway)
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	var maxUploadBytes int64
	if cfg.MaxFiles > 0 && cfg.MaxFileSizeMB > 0 {
		maxUploadBytes = int64(cfg.MaxFiles)*int64(cfg.MaxFileSizeMB)<<20 + 1<<20
	}

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		Redis:                    redisClient,
		TokenVerifier:            verifier,
		TrustedProxies:           trustedProxies,
		CreateRateLimitPerMinute: cfg.CreateRateLimitPerMinute,
		ChatRateLimitPerMinute:   cfg.ChatRateLimitPerMinute,
		ProjectChatBudget:        cfg.ProjectChatBudget,
		MaxUploadBytes:           maxUploadBytes,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr, "service", "rag")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}

func allowedIssuers(cfg config.FileConfig) []string {
	if len(cfg.AllowedIssuers) > 0 {
		return cfg.AllowedIssuers
	}
	return []string{"gateway"}
}
