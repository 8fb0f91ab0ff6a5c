package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/Thecnfor/URAK/core"
)

func main() {
	_ = godotenv.Load()

	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logCloser, err := core.SetupLogging(cfg, "auditworker.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid redis url: %v", err)
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{Concurrency: 4})
	mux := asynq.NewServeMux()
	mux.Handle(core.TaskAuditEvent, core.HandleAuditTask(core.NewPgAuditSink(db)))

	log.Printf("starting audit worker")
	if err := srv.Run(mux); err != nil {
		log.Fatalf("audit worker failed: %v", err)
	}
}
