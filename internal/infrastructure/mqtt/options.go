package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/avews-bridge/internal/infrastructure/config"
)

const (
	connectTimeout   = 10 * time.Second
	operationTimeout = 5 * time.Second
	keepAlive        = 60 * time.Second

	// disconnectQuiesceMillis lets in-flight publishes drain on Close.
	disconnectQuiesceMillis = 1000

	maxQoS = 2

	clientIDPrefix = "avews-bridge-"
)

// Availability reasons carried in offline status payloads.
const (
	reasonShutdown = "graceful_shutdown"
	reasonLost     = "unexpected_disconnect"
)

// clientID returns the configured client ID, or a generated one when unset.
// Brokers drop the older session when two clients share an ID.
func clientID(cfg config.MQTTConfig) string {
	if cfg.Broker.ClientID != "" {
		return cfg.Broker.ClientID
	}
	return clientIDPrefix + uuid.NewString()[:8]
}

func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// buildClientOptions maps the broker section of the config onto paho options.
// Sessions are clean; commands published while the bridge is down are lost.
func buildClientOptions(cfg config.MQTTConfig, id string) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg)).
		SetClientID(id).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}

// configureLWT registers the retained offline message the broker publishes
// when the bridge drops without Close. Discovered entities use the same
// topic for availability.
func configureLWT(opts *pahomqtt.ClientOptions, willTopic, clientID string) {
	opts.SetWill(willTopic, offlinePayload(clientID, reasonLost), 1, true)
}

// availability is the JSON body on the status topic.
type availability struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (a availability) String() string {
	a.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Sprintf(`{"status":%q}`, a.Status)
	}
	return string(data)
}

func onlinePayload(clientID string) string {
	return availability{Status: "online", ClientID: clientID}.String()
}

func offlinePayload(clientID, reason string) string {
	return availability{Status: "offline", ClientID: clientID, Reason: reason}.String()
}
