package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kodexArg/dj-indoor-monitor/config"
	"github.com/kodexArg/dj-indoor-monitor/internal/cache"
	"github.com/kodexArg/dj-indoor-monitor/internal/database"
	"github.com/kodexArg/dj-indoor-monitor/internal/engine"
	httphandlers "github.com/kodexArg/dj-indoor-monitor/internal/http"
	"github.com/kodexArg/dj-indoor-monitor/internal/metrics"
	"github.com/kodexArg/dj-indoor-monitor/internal/mqtt"
	"github.com/kodexArg/dj-indoor-monitor/internal/queue"
	"github.com/kodexArg/dj-indoor-monitor/internal/services"
	"github.com/kodexArg/dj-indoor-monitor/internal/store"
	"github.com/kodexArg/dj-indoor-monitor/internal/ws"
)

func main() {
	log.Println("🌱 Starting Indoor Monitor Backend...")

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  Warning: No .env file found: %v", err)
	} else {
		log.Println("✅ Loaded .env file")
	}

	cfg := config.Load()
	log.Printf("📋 Loaded configuration: Server port=%s, DB driver=%s",
		cfg.Server.Port, cfg.Database.Driver)

	// Reading store: database or fallback to in-memory
	var readingStore store.ReadingStore

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Printf("⚠️  Warning: Failed to connect to database: %v", err)
		log.Println("📱 Falling back to in-memory storage")
		readingStore = store.NewStore(100000)
		log.Println("💾 Initialized in-memory reading store")
	} else {
		log.Printf("✅ Connected to %s database", db.Driver())

		if err := database.CreateTables(db); err != nil {
			log.Fatalf("❌ Failed to create tables: %v", err)
		}

		readingStore = database.NewDatabaseStore(db)
		log.Println("💾 Initialized database reading store")
	}
	defer readingStore.Close()

	appMetrics := metrics.New()
	queryEngine := engine.New(readingStore, cfg.Engine)
	ingestor := services.NewIngestor(readingStore, appMetrics)

	// WebSocket hub streams every stored batch
	wsHub := ws.NewHub(appMetrics)
	go wsHub.Run()
	ingestor.OnIngest(wsHub.BroadcastReadings)
	log.Println("🔌 Started WebSocket hub")

	// Response cache (optional)
	var responseCache httphandlers.ResponseCache
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err := cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			log.Printf("⚠️  Warning: Redis unavailable, caching disabled: %v", err)
		} else {
			rc := cache.NewResponseCache(redisClient, cfg.Redis.TTL)
			defer rc.Close()
			responseCache = rc
			log.Printf("🗄️  Response cache enabled at %s (ttl %s)", cfg.Redis.Addr, cfg.Redis.TTL)
		}
	} else {
		log.Println("🗄️  Redis not configured, response cache disabled")
	}

	// MQTT ingestion (skip if no broker URL configured)
	if cfg.MQTT.BrokerURL != "" {
		mqttClient := mqtt.NewClient(&mqtt.Config{
			BrokerURL:    cfg.MQTT.BrokerURL,
			ClientID:     cfg.MQTT.ClientID,
			Username:     cfg.MQTT.Username,
			Password:     cfg.MQTT.Password,
			KeepAlive:    cfg.MQTT.KeepAlive,
			PingTimeout:  cfg.MQTT.PingTimeout,
			ConnectRetry: cfg.MQTT.ConnectRetry,
			Topic:        cfg.MQTT.TopicSensorData,
		}, ingestor)
		if err := mqttClient.Connect(); err != nil {
			log.Printf("⚠️  Warning: %v", err)
			log.Println("📡 Continuing without MQTT support")
		} else {
			defer mqttClient.Disconnect()
		}
	} else {
		log.Println("📡 MQTT broker not configured, skipping MQTT initialization")
	}

	// Kafka ingestion (optional)
	ctx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()

	var batchWriter *queue.BatchWriter
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicReadings, cfg.Kafka.GroupID)
		defer consumer.Close()

		batchWriter = queue.NewBatchWriter(consumer, ingestor, cfg.Kafka.BatchSize, cfg.Kafka.FlushInterval).
			WithMetrics(appMetrics)
		batchWriter.Start(ctx)
		log.Printf("📦 Consuming %s from %v", cfg.Kafka.TopicReadings, cfg.Kafka.Brokers)
	} else {
		log.Println("📦 Kafka brokers not configured, skipping Kafka ingestion")
	}

	retention := services.NewRetentionJob(readingStore, cfg.Retention.MaxAge, cfg.Retention.Interval)
	retention.Start()

	router := httphandlers.SetupRoutes(httphandlers.Dependencies{
		Store:     readingStore,
		Engine:    queryEngine,
		Ingestor:  ingestor,
		Cache:     responseCache,
		Clients:   wsHub,
		Metrics:   appMetrics,
		WebSocket: wsHub.HandleWebSocket,
		RateLimit: cfg.RateLimit,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("🚀 Starting HTTP server on port %s", cfg.Server.Port)
		log.Println("📡 API endpoints available:")
		log.Println("  GET  /api/v1/health - Store health check")
		log.Println("  GET  /api/v1/stats - System statistics")
		log.Println("  GET  /api/v1/sensor-data - Raw readings")
		log.Println("  POST /api/v1/sensor-data - Ingest a device payload")
		log.Println("  GET  /api/v1/sensor-data/latest - Latest reading per sensor and metric")
		log.Println("  GET  /api/v1/sensor-data/timeframed - Bucketed aggregates")
		log.Println("  GET  /api/v1/sensor-data/export.xlsx - Export aggregates to Excel")
		log.Println("  GET  /api/v1/sensor-data/export.csv - Export aggregates to CSV")
		log.Println("  GET  /api/v1/sensors - Sensor registry")
		log.Println("  PUT  /api/v1/sensors/{sensor}/room - Assign a sensor to a room")
		log.Println("  GET  /metrics - Prometheus metrics")
		log.Println("  WS   /ws - WebSocket for live readings")
		log.Printf("🌐 Server running at http://localhost:%s", cfg.Server.Port)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ HTTP server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	retention.Stop()
	if batchWriter != nil {
		batchWriter.Stop()
	}
	wsHub.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server shutdown complete")
}
