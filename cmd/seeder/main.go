// cmd/seeder/main.go
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/unclebandit/waleopard-backend/internal/config"
	"github.com/unclebandit/waleopard-backend/internal/db"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ No .env file found, relying on OS environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config:", err)
	}

	database, err := db.Open(cfg.DSN())
	if err != nil {
		log.Fatal(err)
	}
	defer database.Close()

	if err := db.Migrate(cfg.DSN(), cfg.MigrationsDir); err != nil {
		log.Fatal("failed to run migrations:", err)
	}

	seedFiles := []string{
		"seed/business_settings.sql",
		"seed/contacts.sql",
		"seed/templates.sql",
		"seed/campaigns.sql",
	}

	for _, file := range seedFiles {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatalf("failed to read %s: %v", file, err)
		}
		if _, err := database.Exec(string(content)); err != nil {
			log.Fatalf("failed to execute %s: %v", file, err)
		}
		fmt.Printf("Seeded: %s\n", file)
	}

	fmt.Println("Database seeding completed successfully!")
}
