package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/kodexArg/dj-indoor-monitor/config"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB holds the database connection and the SQL dialect in use
type DB struct {
	*sql.DB
	dialect dialect
}

// Connect opens the reading database selected by cfg.Driver
func Connect(cfg config.DatabaseConfig) (*DB, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverPostgres, "postgresql":
		return connectPostgres(cfg)
	case DriverSQLite, "sqlite3":
		return ConnectSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func connectPostgres(cfg config.DatabaseConfig) (*DB, error) {
	var connStr string

	// DATABASE_URL wins over individual settings (e.g. on Render.com)
	if cfg.URL != "" {
		log.Println("Using DATABASE_URL from environment")
		connStr = cfg.URL
	} else if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		log.Println("Using DATABASE_URL from environment")
		connStr = databaseURL
	} else {
		connStr = BuildConnectionString(cfg)
		log.Printf("Connecting to database at %s:%s/%s", cfg.Host, cfg.Port, cfg.DBName)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)

	log.Println("Successfully connected to PostgreSQL database")

	return &DB{DB: db, dialect: postgresDialect{}}, nil
}

// ConnectSQLite opens (and creates if needed) a SQLite database file.
// ":memory:" opens a private in-memory database.
func ConnectSQLite(path string) (*DB, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and keeps :memory: databases alive
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	log.Printf("Successfully opened SQLite database at %s", path)

	return &DB{DB: db, dialect: sqliteDialect{}}, nil
}

// Driver returns the name of the driver in use
func (db *DB) Driver() string {
	return db.dialect.name()
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}

// BuildConnectionString builds a PostgreSQL connection string
func BuildConnectionString(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}
