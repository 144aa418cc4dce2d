package mqtt

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kodexArg/dj-indoor-monitor/internal/models"
	"github.com/kodexArg/dj-indoor-monitor/internal/services"
)

const (
	// Per-sensor topic, the wildcard segment is the sensor id
	TopicSensorData = "indoor/sensors/+/data"
	// Shared topic, payloads must name their sensor
	TopicSharedData = "indoor/sensors/data"
)

// PayloadIngestor stores a raw device payload
type PayloadIngestor interface {
	IngestPayload(ctx context.Context, source string, payload []byte, defaultSensor string) ([]models.Reading, error)
}

// Client wraps the MQTT client and feeds sensor payloads to the ingestor
type Client struct {
	client       mqtt.Client
	ingestor     PayloadIngestor
	topics       map[string]byte
	errorHandler func(error)
	mu           sync.RWMutex
	isConnected  bool
}

// Config holds MQTT connection configuration
type Config struct {
	BrokerURL    string
	ClientID     string
	Username     string
	Password     string
	KeepAlive    time.Duration
	PingTimeout  time.Duration
	ConnectRetry bool
	// Topic overrides TopicSensorData when set
	Topic string
}

// DefaultConfig returns default MQTT configuration
func DefaultConfig() *Config {
	return &Config{
		BrokerURL:    "tcp://localhost:1883",
		ClientID:     "indoor_monitor",
		KeepAlive:    30 * time.Second,
		PingTimeout:  10 * time.Second,
		ConnectRetry: true,
	}
}

// NewClient creates a new MQTT client
func NewClient(config *Config, ingestor PayloadIngestor) *Client {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(config.ClientID)
	opts.SetKeepAlive(config.KeepAlive)
	opts.SetPingTimeout(config.PingTimeout)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(config.ConnectRetry)

	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}

	topic := config.Topic
	if topic == "" {
		topic = TopicSensorData
	}

	client := &Client{
		ingestor: ingestor,
		topics: map[string]byte{
			topic:           1,
			TopicSharedData: 1,
		},
	}

	opts.SetDefaultPublishHandler(client.defaultMessageHandler)
	opts.SetOnConnectHandler(client.onConnect)
	opts.SetConnectionLostHandler(client.onConnectionLost)

	client.client = mqtt.NewClient(opts)

	return client
}

// Connect establishes connection to MQTT broker
func (c *Client) Connect() error {
	log.Println("📡 MQTT: Connecting to broker...")

	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	log.Println("✅ MQTT: Connected to broker")
	c.setConnected(true)
	return nil
}

// Disconnect closes the MQTT connection
func (c *Client) Disconnect() {
	if c.IsConnected() {
		c.client.Disconnect(250)
		c.setConnected(false)
		log.Println("🛑 MQTT: Disconnected from broker")
	}
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected && c.client.IsConnected()
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.isConnected = v
	c.mu.Unlock()
}

// SubscribeToSensorData subscribes to sensor data topics
func (c *Client) SubscribeToSensorData() error {
	for topic, qos := range c.topics {
		if token := c.client.Subscribe(topic, qos, c.sensorDataHandler); token.Wait() && token.Error() != nil {
			return fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
		}
		log.Printf("📡 MQTT: Subscribed to topic %s", topic)
	}

	return nil
}

// SetErrorHandler sets the callback function for errors
func (c *Client) SetErrorHandler(handler func(error)) {
	c.errorHandler = handler
}

// sensorDataHandler processes incoming sensor data messages
func (c *Client) sensorDataHandler(client mqtt.Client, msg mqtt.Message) {
	c.handle(msg.Topic(), msg.Payload())
}

func (c *Client) handle(topic string, payload []byte) {
	sensor := SensorFromTopic(topic)

	readings, err := c.ingestor.IngestPayload(context.Background(), services.SourceMQTT, payload, sensor)
	if err != nil {
		log.Printf("❌ MQTT: Failed to ingest payload on %s: %v", topic, err)
		if c.errorHandler != nil {
			c.errorHandler(fmt.Errorf("sensor data ingestion failed: %w", err))
		}
		return
	}

	log.Printf("📡 MQTT: %d reading(s) from %s", len(readings), topic)
}

// SensorFromTopic extracts the sensor id from indoor/sensors/<id>/data.
// Other topics yield "".
func SensorFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 4 && parts[0] == "indoor" && parts[1] == "sensors" && parts[3] == "data" {
		return parts[2]
	}
	return ""
}

// Publish sends a payload, used by the device simulator
func (c *Client) Publish(topic string, payload []byte) error {
	if token := c.client.Publish(topic, 1, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	return nil
}

// defaultMessageHandler handles messages on unsubscribed topics
func (c *Client) defaultMessageHandler(client mqtt.Client, msg mqtt.Message) {
	log.Printf("⚠️  MQTT: Message on unhandled topic %s", msg.Topic())
}

// onConnect re-subscribes after every (re)connect
func (c *Client) onConnect(client mqtt.Client) {
	log.Println("✅ MQTT: Client connected")
	c.setConnected(true)
	if c.ingestor == nil {
		return
	}
	if err := c.SubscribeToSensorData(); err != nil {
		log.Printf("❌ MQTT: %v", err)
	}
}

// onConnectionLost callback when connection is lost
func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	log.Printf("⚠️  MQTT: Connection lost: %v", err)
	c.setConnected(false)

	if c.errorHandler != nil {
		c.errorHandler(fmt.Errorf("MQTT connection lost: %w", err))
	}
}
