// main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/dwdown/dwdown/config"
	"github.com/dwdown/dwdown/database"
	"github.com/dwdown/dwdown/notify"
	"github.com/dwdown/dwdown/services"
	"github.com/dwdown/dwdown/storage"
)

func main() {
	log.Println("Starting DWD forecast acquisition pipeline...")

	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration")
	mode := flag.String("mode", "all", "stage to run: fetch, process, merge, upload, sync, cleanup or all")
	flag.Parse()

	// Credentials live in the environment; a .env file is a convenience for
	// local runs and its absence is fine.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env file.")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}
	log.Printf("Configuration loaded. Model: %s, run: %s, %d variables.",
		cfg.Source.Model, cfg.Source.Run, len(cfg.Source.Variables))

	pipeline := &services.Pipeline{Config: cfg}

	if cfg.ObjectStore.Endpoint != "" {
		store, err := storage.NewMinioStore(
			cfg.ObjectStore.Endpoint,
			os.Getenv(cfg.ObjectStore.AccessKeyEnv),
			os.Getenv(cfg.ObjectStore.SecretKeyEnv),
			cfg.ObjectStore.Secure,
		)
		if err != nil {
			log.Fatalf("Error connecting to object store: %v", err)
		}
		pipeline.Store = store
	}

	if cfg.Database.Enabled() {
		db, err := database.Connect(cfg.Database)
		if err != nil {
			log.Fatalf("Error initializing database: %v", err)
		}
		defer db.Close()
		pipeline.Runs = &database.RunStore{DB: db}
	}

	if cfg.Notifier.Server != "" {
		pipeline.Notifier = notify.NewNotifier(
			cfg.Notifier.Server,
			cfg.Notifier.Secure,
			os.Getenv(cfg.Notifier.TokenEnv),
			cfg.Notifier.Priority,
		)
	}

	ctx := context.Background()
	switch *mode {
	case "fetch":
		_, err = pipeline.Fetch()
	case "process":
		_, err = pipeline.Process()
	case "merge":
		_, err = pipeline.MergeAll()
	case "upload":
		_, err = pipeline.Upload(ctx)
	case "sync":
		_, err = pipeline.Sync(ctx)
	case "cleanup":
		err = pipeline.Cleanup()
	case "all":
		err = pipeline.Run(ctx)
	default:
		log.Fatalf("Unknown mode %q.", *mode)
	}
	if err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
	log.Println("Done.")
}
