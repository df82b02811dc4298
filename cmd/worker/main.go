package main

import (
	"database/sql"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/labshare/assethub/authz"
	"github.com/labshare/assethub/internal/config"
	"github.com/labshare/assethub/lookup"
	"github.com/labshare/assethub/workers"
)

func main() {
	log.Println("Starting workers...")

	configPath := os.Getenv("ASSETHUB_CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if config.App.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable (or config) is required")
	}

	pg, err := sql.Open("postgres", config.App.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	if err := pg.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	if _, err := pg.Exec("SET TIME ZONE 'UTC'"); err != nil {
		log.Printf("Failed to set timezone to UTC: %v", err)
	}
	log.Println("  Connected to database successfully")

	var rdb *redis.Client
	if config.App.RedisURL != "" {
		opts, err := redis.ParseURL(config.App.RedisURL)
		if err != nil {
			log.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	// Authorization core and lookup plumbing
	_, resources, directory := authz.NewSimpleBackend(pg)
	evaluator := authz.NewEvaluator(directory)
	queue := lookup.NewUpdateQueue(pg, config.App.AuthLookupEnabled)
	cache := lookup.NewCache(pg, rdb)

	lookupWorker := workers.NewAuthLookupWorker(pg, queue, evaluator, cache, resources, directory)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		lookupWorker.StartAuthLookupWorker()
	}()

	// Wait for interrupt signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	log.Println("Workers started successfully. Press Ctrl+C to stop.")
	<-c

	log.Println("Shutting down workers...")
}
