package remote

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connect establishes a connection to the MQTT broker with auto-reconnect.
// broker may be "host:port" or a full URL (tcp://, ssl://, ws://).
func Connect(broker, clientID string) (mqtt.Client, error) {
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		slog.Info("remote: mqtt connection established",
			"broker", broker,
			"client_id", clientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		slog.Warn("remote: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", broker,
		)
	}

	client := mqtt.NewClient(opts)

	slog.Info("remote: connecting to mqtt broker", "broker", broker)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("remote: mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("remote: mqtt connection failed: %w", err)
	}

	return client, nil
}
