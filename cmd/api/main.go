package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"github.com/Thecnfor/URAK/core"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	ctx := context.Background()

	logCloser, err := core.SetupLogging(cfg, "api.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	userRepo := core.NewPgUserRepository(db)
	registry := core.NewRedisSessionRegistry(redisClient)
	tokens := core.NewTokenManager(cfg.JWTSecret, cfg.Policy.SessionTTL)
	authService := core.NewAuthService(userRepo, tokens, registry, cfg.Policy)
	validator := core.NewValidator(tokens, userRepo, registry)
	csrfService := core.NewCSRFService(cfg)

	audit, err := core.NewAuditRecorder(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to setup audit recorder: %v", err)
	}
	defer audit.Close()

	if err := core.BootstrapAdmin(ctx, userRepo, cfg); err != nil {
		log.Fatalf("bootstrap admin failed: %v", err)
	}

	router := core.NewRouter(cfg, authService, validator, csrfService, audit)

	addr := fmt.Sprintf(":%s", cfg.Port)
	log.Printf("starting auth api on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
