package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/kodexArg/dj-indoor-monitor/config"
	"github.com/kodexArg/dj-indoor-monitor/internal/models"
	"github.com/kodexArg/dj-indoor-monitor/internal/mqtt"
	"github.com/kodexArg/dj-indoor-monitor/internal/queue"
)

// devicePayload is the per-device form sent by the Raspberry Pi units
type devicePayload struct {
	Timestamp string   `json:"timestamp"`
	RPI       string   `json:"rpi"`
	T         float64  `json:"t"`
	H         float64  `json:"h"`
	S         *float64 `json:"s,omitempty"`
	L         *float64 `json:"l,omitempty"`
}

// device random-walks around a set point
type device struct {
	id       string
	t, h     float64
	s, l     float64
	withSoil bool
}

func (d *device) next(now time.Time, rng *rand.Rand) devicePayload {
	d.t = clamp(d.t+rng.NormFloat64()*0.15, 15, 35)
	d.h = clamp(d.h+rng.NormFloat64()*0.6, 30, 90)
	p := devicePayload{
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		RPI:       d.id,
		T:         math.Round(d.t*100) / 100,
		H:         math.Round(d.h*100) / 100,
	}
	if d.withSoil {
		d.s = clamp(d.s+rng.NormFloat64()*0.3, 10, 80)
		d.l = clamp(d.l+rng.NormFloat64()*20, 0, 1200)
		s, l := math.Round(d.s*100)/100, math.Round(d.l)
		p.S, p.L = &s, &l
	}
	return p
}

func (p devicePayload) readings() []models.Reading {
	ts, _ := models.ParseTimestamp(p.Timestamp)
	out := []models.Reading{
		{Timestamp: ts, Sensor: p.RPI, Metric: models.MetricTemperature, Value: p.T},
		{Timestamp: ts, Sensor: p.RPI, Metric: models.MetricHumidity, Value: p.H},
	}
	if p.S != nil {
		out = append(out, models.Reading{Timestamp: ts, Sensor: p.RPI, Metric: models.MetricSubstrate, Value: *p.S})
	}
	if p.L != nil {
		out = append(out, models.Reading{Timestamp: ts, Sensor: p.RPI, Metric: models.MetricLight, Value: *p.L})
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// sender delivers one device payload
type sender func(ctx context.Context, p devicePayload) error

func main() {
	var (
		mode     = flag.String("mode", "http", "Transport (http, mqtt, kafka)")
		server   = flag.String("server", "http://localhost:8080", "Backend base URL for http mode and -watch")
		devices  = flag.Int("devices", 3, "Number of simulated devices")
		interval = flag.Duration("interval", 5*time.Second, "Time between rounds")
		rounds   = flag.Int("rounds", 0, "Rounds to send, 0 runs until interrupted")
		watch    = flag.Bool("watch", false, "Print live readings from the WebSocket stream")
		raw      = flag.Bool("raw", false, "Kafka mode: publish the device payload as sent instead of normalized readings")
	)
	flag.Parse()

	fmt.Println("🌱 Indoor Monitor Device Simulator")
	fmt.Println(strings.Repeat("=", 40))

	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  Warning: No .env file found: %v", err)
	}
	cfg := config.Load()

	send, closeFn, err := newSender(*mode, *server, *raw, cfg)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer closeFn()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *watch {
		go watchStream(ctx, *server)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	fleet := make([]*device, *devices)
	for i := range fleet {
		fleet[i] = &device{
			id:       fmt.Sprintf("simu-pi-%02d", i+1),
			t:        22 + rng.Float64()*4,
			h:        55 + rng.Float64()*10,
			s:        40,
			l:        600,
			withSoil: i%2 == 0,
		}
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for round := 1; *rounds == 0 || round <= *rounds; round++ {
		now := time.Now()
		sent := 0
		for _, d := range fleet {
			if err := send(ctx, d.next(now, rng)); err != nil {
				log.Printf("❌ %s: %v", d.id, err)
				continue
			}
			sent++
		}
		log.Printf("✅ Round %d: %d/%d devices delivered via %s", round, sent, len(fleet), *mode)

		select {
		case <-ctx.Done():
			log.Println("🛑 Simulator stopped")
			return
		case <-ticker.C:
		}
	}
}

func newSender(mode, server string, raw bool, cfg *config.Config) (sender, func(), error) {
	switch mode {
	case "http":
		client := &http.Client{Timeout: 5 * time.Second}
		endpoint := strings.TrimRight(server, "/") + "/api/v1/sensor-data"
		return func(ctx context.Context, p devicePayload) error {
			return postPayload(ctx, client, endpoint, p)
		}, func() {}, nil

	case "mqtt":
		if cfg.MQTT.BrokerURL == "" {
			return nil, nil, fmt.Errorf("MQTT_BROKER_URL is not configured")
		}
		client := mqtt.NewClient(&mqtt.Config{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID + "-simulator",
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			KeepAlive:   cfg.MQTT.KeepAlive,
			PingTimeout: cfg.MQTT.PingTimeout,
		}, nil)
		if err := client.Connect(); err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context, p devicePayload) error {
			body, err := json.Marshal(p)
			if err != nil {
				return err
			}
			return client.Publish(fmt.Sprintf("indoor/sensors/%s/data", p.RPI), body)
		}, client.Disconnect, nil

	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, nil, fmt.Errorf("KAFKA_BROKERS is not configured")
		}
		producer := queue.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicReadings)
		return func(ctx context.Context, p devicePayload) error {
			if raw {
				body, err := json.Marshal(p)
				if err != nil {
					return err
				}
				return producer.Publish(ctx, p.RPI, body)
			}
			return producer.PublishReadings(ctx, p.readings())
		}, func() { producer.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown mode %q (use http, mqtt or kafka)", mode)
}

func postPayload(ctx context.Context, client *http.Client, endpoint string, p devicePayload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, respBody)
	}
	return nil
}

// streamMessage mirrors the hub's message envelope
type streamMessage struct {
	Type      string            `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	Data      []json.RawMessage `json:"data"`
}

func watchStream(ctx context.Context, server string) {
	wsURL := "ws" + strings.TrimPrefix(strings.TrimRight(server, "/"), "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		log.Printf("❌ WebSocket: %v", err)
		return
	}
	defer conn.Close()
	log.Printf("🔌 Watching %s", wsURL)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "sensor_readings" {
			continue
		}
		log.Printf("📡 WebSocket: %d live reading(s)", len(msg.Data))
	}
}
