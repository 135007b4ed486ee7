package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"faceattend/internal/config"
	"faceattend/internal/notify"
	"faceattend/internal/queue"
	"faceattend/internal/store"
)

// Worker consumes marked-attendance events and dispatches notifications.
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

	redisClient := store.NewRedis(cfg)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	var notifier notify.Notifier = notify.LogNotifier{}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != "mark" {
			continue
		}

		evt, err := notify.DecodeEvent(msg.Body)
		if err != nil {
			log.Printf("skipping malformed event: %v", err)
			continue
		}
		if err := notifier.Notify(ctx, evt); err != nil {
			log.Printf("notify failed for record %s: %v", evt.RecordID, err)
		}
	}

	log.Println("worker stopped")
}
