package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"whatsapp-broadcast/internal/adapters/db/postgres"
	"whatsapp-broadcast/internal/config"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	conf := config.FromEnv()

	fmt.Println("🔗 Connecting to database...")

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	store, err := postgres.New(conf.DatabaseURL, logger)
	if err != nil {
		log.Fatalf("❌ Failed to connect: %v", err)
	}
	defer store.Close()

	fmt.Println("✅ Connected to database")
	fmt.Println("🔄 Running migrations...")

	if err := store.Migrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	fmt.Println("✅ Migration complete!")
	fmt.Println("")
	fmt.Println("Tables: campaigns, sent_records, blacklist")
	fmt.Println("🎉 Database ready!")
}
