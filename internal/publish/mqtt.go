package publish

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/rovermap/internal/monitoring"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// MQTTSink publishes retained QoS 0 messages through a paho client.
type MQTTSink struct {
	client mqtt.Client
}

// Connect dials broker (e.g. "tcp://localhost:1883"). The client reconnects
// on its own after a dropped connection.
func Connect(broker, clientID string) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			monitoring.Logf("[mqtt] connection lost: %v", err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	monitoring.Logf("[mqtt] connected to %s as %s", broker, clientID)
	return &MQTTSink{client: client}, nil
}

// Publish implements Sink.
func (s *MQTTSink) Publish(topic string, payload []byte) error {
	token := s.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	return token.Error()
}

// Close disconnects, allowing a short grace period for in-flight messages.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
