package main

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kwv/posecal/calib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMQTTPublishRoundTrip publishes a result to a real broker and reads the
// retained message back.
func TestMQTTPublishRoundTrip(t *testing.T) {
	// Skip if not running integration tests
	if os.Getenv("RUN_INTEGRATION_TESTS") != "1" {
		t.Skip("Skipping integration test (set RUN_INTEGRATION_TESTS=1 to run)")
	}
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = "tcp://localhost:1883"
		t.Setenv("MQTT_BROKER", broker)
	}
	t.Setenv("MQTT_PUBLISH_PREFIX", "posecal-test")

	app, _ := newTestApp(t, writePairs(t, t.TempDir(), 8, 0))
	app.MqttMode = true
	app.Name = "integration"
	require.NoError(t, app.RunRigid())

	received := make(chan calib.Result, 1)
	opts := mqtt.NewClientOptions().AddBroker(broker).SetClientID("posecal-test-reader")
	reader := mqtt.NewClient(opts)
	token := reader.Connect()
	require.True(t, token.WaitTimeout(10*time.Second), "connect timeout")
	require.NoError(t, token.Error())
	defer reader.Disconnect(250)

	token = reader.Subscribe("posecal-test/integration/result", 0, func(_ mqtt.Client, msg mqtt.Message) {
		var r calib.Result
		if err := json.Unmarshal(msg.Payload(), &r); err == nil {
			select {
			case received <- r:
			default:
			}
		}
	})
	require.True(t, token.WaitTimeout(10*time.Second), "subscribe timeout")
	require.NoError(t, token.Error())

	select {
	case r := <-received:
		assert.Equal(t, "integration", r.Name)
		assert.Equal(t, "rigid", r.Mode)
		assert.NotNil(t, r.Pose)
	case <-time.After(10 * time.Second):
		t.Fatal("retained result not received")
	}
}
