// cmd/seeder/main.go
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/unclebandit/leadreach-backend/internal/config"
	"github.com/unclebandit/leadreach-backend/internal/db"
)

// Applies seed/schema.sql and, with --data, seed/seed_data.sql. Both files
// are idempotent so the seeder is safe to re-run.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()
	fmt.Println("✅ Connected to Postgres")

	files := []string{"seed/schema.sql"}
	for _, arg := range os.Args[1:] {
		if arg == "--data" {
			files = append(files, "seed/seed_data.sql")
		}
	}

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			log.Fatalf("❌ Failed to read %s: %v", f, err)
		}
		if _, err := database.Exec(string(sqlBytes)); err != nil {
			log.Fatalf("❌ Failed to apply %s: %v", f, err)
		}
		fmt.Printf("✅ Applied %s\n", f)
	}

	fmt.Println("🌱 Seeding complete")
}
