package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"docchat/internal/servicetoken"
	"docchat/internal/util"
	"docchat/services/gateway/internal/config"
	"docchat/services/gateway/internal/ragclient"
	"docchat/services/gateway/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	signer, err := servicetoken.NewSigner("gateway", cfg.InternalTokenSecret, servicetoken.DefaultTokenTTL)
	if err != nil {
		log.Fatalf("failed to init token signer: %v", err)
	}

	trustedProxies, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		Rag:            ragclient.NewClient(cfg.RagServiceURL, signer),
		MaxUploadBytes: cfg.MaxUploadBytes,
		TrustedProxies: trustedProxies,
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

	slog.Info("server listening", "addr", addr, "service", "gateway")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
