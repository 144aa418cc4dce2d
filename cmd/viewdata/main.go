package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kodexArg/dj-indoor-monitor/config"
	"github.com/kodexArg/dj-indoor-monitor/internal/database"
	"github.com/kodexArg/dj-indoor-monitor/internal/engine"
)

func main() {
	var (
		view      = flag.String("view", "latest", "What to show (latest, timeframed, sensors)")
		sensors   = flag.String("sensors", "", "Comma-separated sensor ids")
		metrics   = flag.String("metrics", "", "Comma-separated metrics (t, h, s, l)")
		timeframe = flag.String("timeframe", "5T", "Bucket width for the timeframed view")
		start     = flag.String("start", "", "Start date (ISO-8601)")
		end       = flag.String("end", "", "End date (ISO-8601)")
		limit     = flag.Int("limit", 50, "Maximum rows to print")
	)
	flag.Parse()

	log.Println("🔍 Indoor Monitor Data Viewer")
	log.Println("=============================")

	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  Warning: No .env file found: %v", err)
	}
	cfg := config.Load()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Printf("✅ Connected to %s database", db.Driver())

	readingStore := database.NewDatabaseStore(db)
	queryEngine := engine.New(readingStore, cfg.Engine)
	ctx := context.Background()

	params := url.Values{}
	params.Set("sensors", *sensors)
	params.Set("metrics", *metrics)
	params.Set("timeframe", *timeframe)
	params.Set("start_date", *start)
	params.Set("end_date", *end)
	params.Set("rooms", "true")

	switch *view {
	case "latest":
		viewLatest(ctx, queryEngine, params)
	case "timeframed":
		viewTimeframed(ctx, queryEngine, params, *limit)
	case "sensors":
		viewSensors(ctx, readingStore)
	default:
		log.Printf("Unknown view: %s", *view)
		log.Println("Available views: latest, timeframed, sensors")
	}
}

func viewLatest(ctx context.Context, e *engine.Engine, params url.Values) {
	q, err := e.ParseQuery(params, engine.ModeLatest)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	rows, err := e.Latest(ctx, q)
	if err != nil {
		log.Fatalf("❌ Query failed: %v", err)
	}

	fmt.Printf("\n📊 Latest readings since %s:\n", q.Start.Format("2006-01-02 15:04:05"))
	fmt.Println("=====================================")
	fmt.Printf("%-16s %-10s %-20s %-12s %-10s\n", "Sensor", "Room", "Timestamp", "Metric", "Value")
	fmt.Println(strings.Repeat("-", 72))

	for _, r := range rows {
		fmt.Printf("%-16s %-10s %-20s %-12s %-10.2f\n",
			r.Sensor, r.Room, r.Timestamp.Format("2006-01-02 15:04:05"), r.Metric.Name(), r.Value)
	}
	if len(rows) == 0 {
		fmt.Println("No readings in the window.")
	}
}

func viewTimeframed(ctx context.Context, e *engine.Engine, params url.Values, limit int) {
	params.Set("aggregations", "true")
	q, err := e.ParseQuery(params, engine.ModeTimeframed)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	result, err := e.Timeframed(ctx, q)
	if err != nil {
		log.Fatalf("❌ Query failed: %v", err)
	}

	meta := result.Metadata
	fmt.Printf("\n📈 %s buckets from %s to %s (%d readings, %d skipped)\n",
		meta.Timeframe, meta.StartDate.Format("2006-01-02 15:04"), meta.EndDate.Format("2006-01-02 15:04"),
		meta.RecordCount, meta.SkippedCount)
	fmt.Println("=====================================")
	fmt.Printf("%-20s %-16s %-8s %-9s %-9s %-9s %-6s\n", "Bucket", "Sensor", "Metric", "Mean", "Min", "Max", "Count")
	fmt.Println(strings.Repeat("-", 82))

	for i, r := range result.Rows {
		if i >= limit {
			fmt.Printf("... %d more rows\n", len(result.Rows)-limit)
			break
		}
		if r.Agg == nil {
			fmt.Printf("%-20s %-16s %-8s %-9s\n", r.Timestamp.Format("2006-01-02 15:04:05"), r.Sensor, r.Metric, "-")
			continue
		}
		fmt.Printf("%-20s %-16s %-8s %-9.2f %-9.2f %-9.2f %-6d\n",
			r.Timestamp.Format("2006-01-02 15:04:05"), r.Sensor, r.Metric, r.Agg.Mean, r.Agg.Min, r.Agg.Max, r.Agg.Count)
	}

	for _, item := range meta.ExcludedItems {
		fmt.Printf("⚠️  Excluded %s/%s (%d readings)\n", item.Sensor, item.Metric, item.Count)
	}
}

func viewSensors(ctx context.Context, s *database.DatabaseStore) {
	sensors, err := s.ListSensors(ctx)
	if err != nil {
		log.Fatalf("❌ Query failed: %v", err)
	}
	entries, err := s.SensorRooms(ctx)
	if err != nil {
		log.Fatalf("❌ Query failed: %v", err)
	}
	rooms := make(map[string]string, len(entries))
	for _, e := range entries {
		rooms[e.Sensor] = e.Room
	}

	fmt.Println("\n🌿 Sensors:")
	fmt.Println("=====================================")
	for _, sensor := range sensors {
		room := rooms[sensor]
		if room == "" {
			room = "(unassigned)"
		}
		fmt.Printf("%-16s %s\n", sensor, room)
	}
	fmt.Printf("\nTotal: %d sensors\n", len(sensors))
}
