package main

import (
	"flag"
	"log"

	"github.com/joho/godotenv"
	"github.com/kodexArg/dj-indoor-monitor/config"
	"github.com/kodexArg/dj-indoor-monitor/internal/database"
)

func main() {
	var (
		drop   = flag.Bool("drop", false, "Drop all tables before creating")
		create = flag.Bool("create", true, "Create tables")
		check  = flag.Bool("check", false, "Check if tables exist")
	)
	flag.Parse()

	log.Println("🏗️  Indoor Monitor Database Migration Tool")
	log.Println("==========================================")

	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  Warning: No .env file found: %v", err)
	}
	cfg := config.Load()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Println("⚠️  Check DB_DRIVER and DATABASE_URL (or DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSLMODE, SQLITE_PATH)")
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Printf("✅ Connected to %s database", db.Driver())

	if *drop {
		log.Println("🗑️  Dropping existing tables...")
		if err := database.DropTables(db); err != nil {
			log.Fatalf("❌ Failed to drop tables: %v", err)
		}
	}

	if *create {
		log.Println("🏗️  Creating database tables...")
		if err := database.CreateTables(db); err != nil {
			log.Fatalf("❌ Failed to create tables: %v", err)
		}
	}

	if *check {
		log.Println("🔍 Checking if tables exist...")
		if err := database.CheckTablesExist(db); err != nil {
			log.Fatalf("❌ Table check failed: %v", err)
		}
	}

	log.Println("🎉 Database migration completed successfully!")
}
