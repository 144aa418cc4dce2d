package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/kodexArg/dj-indoor-monitor/internal/models"
	"github.com/kodexArg/dj-indoor-monitor/internal/store"
)

// DatabaseStore implements store.ReadingStore on PostgreSQL or SQLite
type DatabaseStore struct {
	db *DB
}

// NewDatabaseStore creates a new database store
func NewDatabaseStore(db *DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

var _ store.ReadingStore = (*DatabaseStore)(nil)

// Ping checks the database connection
func (s *DatabaseStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AddReadings inserts readings in a single transaction
func (s *DatabaseStore) AddReadings(ctx context.Context, readings []models.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d := s.db.dialect
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO readings (timestamp, sensor, metric, value) VALUES (%s, %s, %s, %s)",
		d.placeholder(1), d.placeholder(2), d.placeholder(3), d.placeholder(4)))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, d.timeArg(r.Timestamp), r.Sensor, string(r.Metric), r.Value); err != nil {
			return fmt.Errorf("failed to insert reading %s/%s: %w", r.Sensor, r.Metric, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// QueryReadings returns matching readings in ascending timestamp order
func (s *DatabaseStore) QueryReadings(ctx context.Context, q store.ReadingQuery) ([]models.Reading, error) {
	b := s.filter(q)
	query := `
		SELECT timestamp, sensor, metric, value
		FROM readings
		WHERE ` + b.clause() + `
		ORDER BY timestamp ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	return s.scanReadings(rows)
}

// CountReadings returns the number of matching readings
func (s *DatabaseStore) CountReadings(ctx context.Context, q store.ReadingQuery) (int, error) {
	b := s.filter(q)

	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM readings WHERE "+b.clause(), b.args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return count, nil
}

// LatestReadings returns the newest matching reading per (sensor, metric)
func (s *DatabaseStore) LatestReadings(ctx context.Context, q store.ReadingQuery) ([]models.Reading, error) {
	b := s.filter(q)

	rows, err := s.db.QueryContext(ctx, s.db.dialect.latestQuery(b.clause()), b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest readings: %w", err)
	}
	defer rows.Close()

	return s.scanReadings(rows)
}

// DeleteReadingsBefore removes readings older than cutoff
func (s *DatabaseStore) DeleteReadingsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	d := s.db.dialect
	result, err := s.db.ExecContext(ctx, "DELETE FROM readings WHERE timestamp < "+d.placeholder(1), d.timeArg(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old readings: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		log.Printf("⚠️  Warning: Failed to read affected rows: %v", err)
	}
	return affected, nil
}

// SensorRooms returns the registry sorted by sensor
func (s *DatabaseStore) SensorRooms(ctx context.Context) ([]models.SensorRoom, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT sensor, room FROM sensors ORDER BY sensor")
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor registry: %w", err)
	}
	defer rows.Close()

	entries := []models.SensorRoom{}
	for rows.Next() {
		var entry models.SensorRoom
		if err := rows.Scan(&entry.Sensor, &entry.Room); err != nil {
			return nil, fmt.Errorf("failed to scan sensor registry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// SetSensorRoom creates or updates a registry entry
func (s *DatabaseStore) SetSensorRoom(ctx context.Context, entry models.SensorRoom) error {
	d := s.db.dialect
	query := fmt.Sprintf(`
		INSERT INTO sensors (sensor, room, updated_at)
		VALUES (%s, %s, CURRENT_TIMESTAMP)
		ON CONFLICT (sensor) DO UPDATE SET
			room = excluded.room,
			updated_at = CURRENT_TIMESTAMP`, d.placeholder(1), d.placeholder(2))

	if _, err := s.db.ExecContext(ctx, query, entry.Sensor, entry.Room); err != nil {
		return fmt.Errorf("failed to set room of sensor %s: %w", entry.Sensor, err)
	}
	return nil
}

// ListSensors returns every sensor that has reported at least once
func (s *DatabaseStore) ListSensors(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT sensor FROM readings ORDER BY sensor")
	if err != nil {
		return nil, fmt.Errorf("failed to query sensors: %w", err)
	}
	defer rows.Close()

	sensors := []string{}
	for rows.Next() {
		var sensor string
		if err := rows.Scan(&sensor); err != nil {
			return nil, fmt.Errorf("failed to scan sensor: %w", err)
		}
		sensors = append(sensors, sensor)
	}
	return sensors, rows.Err()
}

// Close closes the underlying database
func (s *DatabaseStore) Close() error {
	return s.db.Close()
}

// filter translates a reading query into WHERE conditions
func (s *DatabaseStore) filter(q store.ReadingQuery) *sqlBuilder {
	d := s.db.dialect
	b := &sqlBuilder{d: d}

	b.where("timestamp >= " + b.arg(d.timeArg(q.Start)))
	if q.EndExclusive {
		b.where("timestamp < " + b.arg(d.timeArg(q.End)))
	} else {
		b.where("timestamp <= " + b.arg(d.timeArg(q.End)))
	}

	if len(q.Sensors) > 0 {
		b.where(d.inList(b, "sensor", q.Sensors))
	}
	if len(q.Metrics) > 0 {
		metrics := make([]string, len(q.Metrics))
		for i, m := range q.Metrics {
			metrics[i] = string(m)
		}
		b.where(d.inList(b, "metric", metrics))
	}

	// A value range only constrains readings of its own metric
	metrics := make([]string, 0, len(q.Ranges))
	for m := range q.Ranges {
		metrics = append(metrics, string(m))
	}
	sort.Strings(metrics)
	for _, m := range metrics {
		vr := q.Ranges[models.Metric(m)]
		if vr.IsEmpty() {
			continue
		}
		// Arguments are appended in text order for positional placeholders
		cond := "(metric <> " + b.arg(m) + " OR ("
		var bounds []string
		if vr.GT != nil {
			bounds = append(bounds, "value > "+b.arg(*vr.GT))
		}
		if vr.GTE != nil {
			bounds = append(bounds, "value >= "+b.arg(*vr.GTE))
		}
		if vr.LT != nil {
			bounds = append(bounds, "value < "+b.arg(*vr.LT))
		}
		if vr.LTE != nil {
			bounds = append(bounds, "value <= "+b.arg(*vr.LTE))
		}
		b.where(cond + strings.Join(bounds, " AND ") + "))")
	}

	return b
}

func (s *DatabaseStore) scanReadings(rows *sql.Rows) ([]models.Reading, error) {
	readings := []models.Reading{}
	_, nanos := s.db.dialect.(sqliteDialect)

	for rows.Next() {
		var r models.Reading
		var metric string
		var err error
		if nanos {
			var ts int64
			err = rows.Scan(&ts, &r.Sensor, &metric, &r.Value)
			r.Timestamp = time.Unix(0, ts).UTC()
		} else {
			err = rows.Scan(&r.Timestamp, &r.Sensor, &metric, &r.Value)
			r.Timestamp = r.Timestamp.UTC()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		r.Metric = models.Metric(metric)
		readings = append(readings, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating readings: %w", err)
	}
	return readings, nil
}
