package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"unitattendance/internal/config"
	"unitattendance/internal/queue"
	"unitattendance/internal/store"
)

// Worker consumes session_closed messages and stores the summaries in Postgres.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory is served inside the api process; nothing to consume")
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			log.Fatalf("migrate failed: %v", err)
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable yet, will keep polling", cfg.RedisAddr)
	}

	q := queue.NewRedisQueue(redisClient.Client, cfg.SessionsQueueKey)
	summaries := store.NewSummaryRepository(db.Client)

	log.Println("worker started, waiting for closed sessions...")
	if err := queue.ConsumeSummaries(ctx, q, summaries.Save); err != nil {
		log.Fatalf("queue consume failed: %v", err)
	}
	log.Println("worker stopped")
}
