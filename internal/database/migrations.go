package database

import (
	"fmt"
	"log"
)

var requiredTables = []string{
	"readings",
	"sensors",
}

// CreateTables creates the reading and sensor registry tables
func CreateTables(db *DB) error {
	log.Println("Creating database tables...")

	var readingsTable string
	switch db.dialect.(type) {
	case sqliteDialect:
		readingsTable = `
		CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			sensor TEXT NOT NULL,
			metric TEXT NOT NULL CHECK (metric IN ('t', 'h', 's', 'l')),
			value REAL NOT NULL
		);`
	default:
		readingsTable = `
		CREATE TABLE IF NOT EXISTS readings (
			id BIGSERIAL PRIMARY KEY,
			timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
			sensor VARCHAR(100) NOT NULL,
			metric VARCHAR(8) NOT NULL CHECK (metric IN ('t', 'h', 's', 'l')),
			value DOUBLE PRECISION NOT NULL
		);`
	}

	// Readings carry no foreign key to the registry
	sensorsTable := `
	CREATE TABLE IF NOT EXISTS sensors (
		sensor VARCHAR(100) PRIMARY KEY,
		room VARCHAR(100) NOT NULL DEFAULT '',
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := db.Exec(readingsTable); err != nil {
		return fmt.Errorf("failed to create readings table: %w", err)
	}
	if _, err := db.Exec(sensorsTable); err != nil {
		return fmt.Errorf("failed to create sensors table: %w", err)
	}

	// Range scans by (sensor, metric, timestamp) and by timestamp
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_readings_sensor_metric_timestamp ON readings(sensor, metric, timestamp);",
		"CREATE INDEX IF NOT EXISTS idx_readings_timestamp ON readings(timestamp);",
	}

	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			log.Printf("⚠️  Warning: Failed to create index: %v", err)
		}
	}

	log.Println("✅ Database tables created successfully")
	return nil
}

// DropTables drops all tables (useful for testing)
func DropTables(db *DB) error {
	log.Println("Dropping database tables...")

	for _, table := range requiredTables {
		query := fmt.Sprintf("DROP TABLE IF EXISTS %s;", table)
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}

	log.Println("✅ Database tables dropped successfully")
	return nil
}

// CheckTablesExist checks if all required tables exist
func CheckTablesExist(db *DB) error {
	query := `SELECT EXISTS (
		SELECT FROM information_schema.tables
		WHERE table_name = $1
	);`
	if _, ok := db.dialect.(sqliteDialect); ok {
		query = `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?);`
	}

	for _, table := range requiredTables {
		var exists bool
		if err := db.QueryRow(query, table).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}

		if !exists {
			return fmt.Errorf("table %s does not exist", table)
		}
	}

	log.Println("✅ All required tables exist")
	return nil
}
