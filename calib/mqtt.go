package calib

import (
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// envOr returns the environment variable key, falling back to value
func envOr(key, value string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return value
}

// NewClientOptions builds MQTT client options from config with environment
// overrides (MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME, MQTT_PASSWORD).
// It returns nil when no broker is configured.
func NewClientOptions(config *MQTTConfig) *mqtt.ClientOptions {
	var cfg MQTTConfig
	if config != nil {
		cfg = *config
	}

	broker := envOr("MQTT_BROKER", cfg.Broker)
	if broker == "" {
		return nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := envOr("MQTT_CLIENT_ID", cfg.ClientID)
	if clientID == "" {
		clientID = "posecal"
	}
	opts.SetClientID(clientID)

	if username := envOr("MQTT_USERNAME", cfg.Username); username != "" {
		opts.SetUsername(username)
		opts.SetPassword(envOr("MQTT_PASSWORD", cfg.Password))
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	})
	return opts
}

// ConnectMQTT connects to the configured broker. If no broker is set, MQTT is
// disabled and ConnectMQTT returns nil, nil.
func ConnectMQTT(config *MQTTConfig, timeout time.Duration) (mqtt.Client, error) {
	opts := NewClientOptions(config)
	if opts == nil {
		log.Println("MQTT disabled: MQTT_BROKER not set")
		return nil, nil
	}
	return connect(mqtt.NewClient(opts), timeout)
}

func connect(client mqtt.Client, timeout time.Duration) (mqtt.Client, error) {
	log.Println("Connecting to MQTT broker...")
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("MQTT connection timeout after %v", timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("MQTT connection failed: %w", err)
	}
	log.Println("Successfully connected to MQTT broker")
	return client, nil
}
