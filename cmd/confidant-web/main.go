package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/scrypster/confidant/internal/catalog"
	"github.com/scrypster/confidant/internal/config"
	"github.com/scrypster/confidant/internal/engine"
	"github.com/scrypster/confidant/internal/sentiment"
	"github.com/scrypster/confidant/internal/server"
	"github.com/scrypster/confidant/internal/storage"
	"github.com/scrypster/confidant/internal/storage/postgres"
	"github.com/scrypster/confidant/internal/storage/sqlite"
)

func main() {
	seed := flag.Int64("seed", 0, "Random seed (0 means time-seeded)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// All persistence flows through the circuit breaker so a failing
	// backend degrades to in-memory operation instead of failing turns.
	breaker := storage.NewBreakerStore(store)
	defer breaker.Close()

	situations, err := loadSituations(cfg)
	if err != nil {
		log.Fatalf("Failed to load situations: %v", err)
	}
	cat, err := loadCatalog(cfg)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	rnd := engine.NewTimeSeededRand()
	if *seed != 0 {
		rnd = engine.NewRand(*seed)
	}

	eng, err := engine.NewEngine(engine.Config{
		MinOfflineDuration: cfg.Engine.MinOfflineDuration,
		IdleWindow:         cfg.Engine.IdleWindow,
		SweepInterval:      cfg.Engine.SweepInterval,
	}, breaker, engine.SystemClock{}, rnd, sentiment.NewLexicalScorer(), cat, situations)
	if err != nil {
		log.Fatalf("Failed to initialize engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	addr, _ := server.Start(ctx, cfg, eng, breaker.State)
	log.Printf("Confidant API running at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	eng.Stop()
	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// openStore selects the persistence backend from configuration.
func openStore(cfg *config.Config) (storage.EngagementStore, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN)
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, err
		}
		return sqlite.NewStore(filepath.Join(cfg.Storage.DataPath, "confidant.db"))
	}
}

func loadSituations(cfg *config.Config) (engine.SituationTable, error) {
	if cfg.Content.SituationsPath == "" {
		return engine.DefaultSituations(), nil
	}
	return engine.LoadSituations(cfg.Content.SituationsPath)
}

func loadCatalog(cfg *config.Config) (catalog.AssetCatalog, error) {
	if cfg.Content.CatalogPath == "" {
		log.Println("No catalog configured, media triggers will stay idle")
		return catalog.NewStaticCatalog(nil), nil
	}
	return catalog.LoadCatalog(cfg.Content.CatalogPath)
}
