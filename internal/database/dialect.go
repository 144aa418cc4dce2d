package database

import (
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// dialect isolates the SQL differences between PostgreSQL and SQLite
type dialect interface {
	name() string
	placeholder(n int) string
	timeArg(t time.Time) interface{}
	// inList renders "column IN (...)" using the builder for arguments
	inList(b *sqlBuilder, column string, values []string) string
	latestQuery(where string) string
}

type postgresDialect struct{}

func (postgresDialect) name() string { return DriverPostgres }

func (postgresDialect) placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresDialect) timeArg(t time.Time) interface{} { return t.UTC() }

func (postgresDialect) inList(b *sqlBuilder, column string, values []string) string {
	return column + " = ANY(" + b.arg(pq.Array(values)) + ")"
}

func (postgresDialect) latestQuery(where string) string {
	return `
		SELECT DISTINCT ON (sensor, metric) timestamp, sensor, metric, value
		FROM readings
		WHERE ` + where + `
		ORDER BY sensor, metric, timestamp DESC`
}

// SQLite stores timestamps as INTEGER unix nanoseconds
type sqliteDialect struct{}

func (sqliteDialect) name() string { return DriverSQLite }

func (sqliteDialect) placeholder(int) string { return "?" }

func (sqliteDialect) timeArg(t time.Time) interface{} { return t.UnixNano() }

func (sqliteDialect) inList(b *sqlBuilder, column string, values []string) string {
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = b.arg(v)
	}
	return column + " IN (" + strings.Join(marks, ", ") + ")"
}

func (sqliteDialect) latestQuery(where string) string {
	return `
		SELECT timestamp, sensor, metric, value FROM (
			SELECT timestamp, sensor, metric, value,
				ROW_NUMBER() OVER (PARTITION BY sensor, metric ORDER BY timestamp DESC) AS rn
			FROM readings
			WHERE ` + where + `
		) WHERE rn = 1
		ORDER BY sensor, metric`
}

// sqlBuilder accumulates WHERE conditions and their positional arguments
type sqlBuilder struct {
	d     dialect
	conds []string
	args  []interface{}
}

func (b *sqlBuilder) arg(v interface{}) string {
	b.args = append(b.args, v)
	return b.d.placeholder(len(b.args))
}

func (b *sqlBuilder) where(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *sqlBuilder) clause() string {
	if len(b.conds) == 0 {
		return "TRUE"
	}
	return strings.Join(b.conds, " AND ")
}
