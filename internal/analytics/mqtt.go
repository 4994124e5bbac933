package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the MQTT sink
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
}

// MQTTSink publishes each event to <topic>/<event name> with QoS 0
type MQTTSink struct {
	client mqtt.Client
	topic  string
}

// NewMQTTSink connects to the broker
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		slog.Info("MQTT connection established", "broker", cfg.Broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		slog.Warn("MQTT connection lost, will auto-reconnect", "broker", cfg.Broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return newMQTTSink(client, cfg.Topic), nil
}

func newMQTTSink(client mqtt.Client, topic string) *MQTTSink {
	if topic == "" {
		topic = "artscan/events"
	}
	return &MQTTSink{client: client, topic: topic}
}

// Send publishes without waiting for delivery
func (s *MQTTSink) Send(e Event) {
	if !s.client.IsConnected() {
		slog.Debug("MQTT not connected, dropping analytics event", "event", e.Name)
		return
	}

	if !ValidEventName(e.Name) {
		slog.Warn("Dropping analytics event with invalid name", "event", e.Name)
		return
	}

	payload, err := json.Marshal(e)
	if err != nil {
		slog.Error("Failed to marshal analytics event", "event", e.Name, "error", err)
		return
	}
	s.client.Publish(s.topic+"/"+e.Name, 0, false, payload)
}

func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
