package escalation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ConnectMQTT connects to the broker (e.g. "tcp://broker:1883") and waits up
// to timeout for the connection.
func ConnectMQTT(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)

	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "broker", broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connection timeout (%s)", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}
	slog.Info("mqtt connection established", "broker", broker, "client_id", clientID)
	return client, nil
}

// MQTTNotifier publishes the alert as a JSON event, for home-automation hubs
// and dashboards.
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// NewMQTTNotifier publishes alerts to topic with QoS 1.
func NewMQTTNotifier(client mqtt.Client, topic string) *MQTTNotifier {
	return &MQTTNotifier{client: client, topic: topic, qos: 1}
}

// Name identifies the notifier in logs.
func (n *MQTTNotifier) Name() string {
	return "mqtt"
}

type mqttEvent struct {
	Alert
	Message string `json:"message"`
}

// Notify publishes the alert and waits for the broker acknowledgement.
func (n *MQTTNotifier) Notify(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(mqttEvent{Alert: alert, Message: alert.Message()})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	token := n.client.Publish(n.topic, n.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s not acknowledged: %w", n.topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s failed: %w", n.topic, err)
	}
	return nil
}
