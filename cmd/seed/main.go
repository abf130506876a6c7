package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ObraztsovOleg/consultant-bot/internal/config"
	"github.com/ObraztsovOleg/consultant-bot/internal/domain/model"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/db/migrate"
	pg "github.com/ObraztsovOleg/consultant-bot/internal/infra/db/postgres"
	"github.com/ObraztsovOleg/consultant-bot/internal/infra/logging"
)

// Applies the schema and writes every configured persona price to the store.
func main() {
	// ---- Config ----
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := migrate.Open(cfg.Database.URL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := migrate.Run(db, logger); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	_ = db.Close()

	// Connect Postgres
	pool, err := pg.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	repo := pg.NewCatalogRepo(pool, cfg.Database.QueryTimeout)

	personas := model.DefaultPersonas()
	if len(cfg.Catalog.Personas) > 0 {
		personas = personas[:0]
		for _, p := range cfg.Catalog.Personas {
			personas = append(personas, model.Persona{ID: p.ID, PricePerMinute: p.PricePerMinute})
		}
	}

	for _, p := range personas {
		if err := repo.UpsertPrice(ctx, p.ID, p.PricePerMinute); err != nil {
			log.Fatalf("upsert price %s: %v", p.ID, err)
		}
		fmt.Printf("  - %s: %.2f per minute\n", p.ID, p.PricePerMinute)
	}

	slots, err := repo.ListActiveTimeSlots(ctx)
	if err != nil {
		log.Fatalf("list time slots: %v", err)
	}
	fmt.Printf("%d persona prices written, %d active time slots\n", len(personas), len(slots))
}
