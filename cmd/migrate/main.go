package main

import (
	"context"
	"fmt"
	"os"

	"github.com/akagifreeez/apikeys/internal/bootstrap"
	"github.com/akagifreeez/apikeys/internal/config"
)

// Applies the configured store's migrations and prints the keys it holds,
// masked.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if cfg.StoreDriver == config.DriverMemory {
		fmt.Println("Nothing to migrate for the in-memory store")
		return
	}

	ctx := context.Background()
	st, closeStore, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		fmt.Printf("Migration failed: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	recs, err := st.List(ctx)
	if err != nil {
		fmt.Printf("Query failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Migrations applied to %s store, %d keys:\n", cfg.StoreDriver, len(recs))
	for _, rec := range recs {
		limit := "unlimited"
		if rec.Limit != nil {
			limit = fmt.Sprintf("%d", *rec.Limit)
		}
		fmt.Printf("- %s %q usage=%d limit=%s\n", rec.ID, rec.Name, rec.Usage, limit)
	}
}
