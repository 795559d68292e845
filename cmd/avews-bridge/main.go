// AVE web server bridge for Home Assistant.
//
// The bridge keeps a WebSocket link to an AVE DominaPlus web server,
// mirrors antitheft sensors into Home Assistant binary sensors and
// exposes lights as switches. It runs as a Home Assistant add-on or as a
// standalone daemon.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/avews-bridge/migrations"

	"github.com/nerrad567/avews-bridge/internal/api"
	"github.com/nerrad567/avews-bridge/internal/bridges/avews"
	"github.com/nerrad567/avews-bridge/internal/hass"
	"github.com/nerrad567/avews-bridge/internal/history"
	"github.com/nerrad567/avews-bridge/internal/infrastructure/config"
	"github.com/nerrad567/avews-bridge/internal/infrastructure/database"
	"github.com/nerrad567/avews-bridge/internal/infrastructure/influxdb"
	"github.com/nerrad567/avews-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/avews-bridge/internal/infrastructure/mqtt"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is used when AVEWS_CONFIG is unset and the file exists.
const defaultConfigPath = "/config/avews.yaml"

// prunerInterval is how often old journal rows are removed.
const prunerInterval = time.Hour

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Linear startup sequence
	log := logging.Default()
	log.Info("starting AVE bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"controller", cfg.ControllerURL(),
		"hardware_id", cfg.Hub.HardwareID,
	)

	topics := mqtt.NewTopics(cfg.Hub.HardwareID, cfg.Hub.DiscoveryTopic)

	// MQTT (optional): light switches, hub commands, health
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, topics)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", mqttClient.ClientID(),
		)
	} else {
		log.Info("MQTT disabled, switches use the REST API")
	}

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// SQLite state journal (optional)
	var (
		db      *database.DB
		journal *history.Journal
	)
	if cfg.Database.Enabled {
		db, journal, err = openJournal(ctx, cfg.Database, log.Component("journal"))
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
	}

	// The REST client resolves device classes through the bridge, which is
	// created after the sink it depends on.
	var bridge *avews.Bridge
	rest, err := hass.NewRESTClient(hass.RESTConfig{
		URL:     cfg.Hub.URL,
		Token:   cfg.Hub.Token,
		Timeout: time.Duration(cfg.Hub.RequestTimeout) * time.Second,
		DeviceType: func(externalID string) (int, bool) {
			if bridge == nil {
				return 0, false
			}
			d, ok := bridge.Device(externalID)
			return d.Type, ok
		},
	})
	if err != nil {
		return fmt.Errorf("creating hub client: %w", err)
	}
	if pingErr := rest.Ping(ctx); pingErr != nil {
		log.Warn("Home Assistant API not reachable yet", "url", cfg.Hub.URL, "error", pingErr)
	}

	sinkOpts := hass.SinkOptions{
		Sensors:  rest,
		Switches: rest,
		Logger:   log.Component("hub"),
	}
	if mqttClient != nil {
		publisher := hass.NewMQTTPublisher(mqttClient, topics, byte(cfg.MQTT.QoS))
		sinkOpts.Switches = publisher
		sinkOpts.Mirror = publisher
	}
	if influxClient != nil {
		sinkOpts.Recorders = append(sinkOpts.Recorders, influxClient)
	}
	if journal != nil {
		sinkOpts.Recorders = append(sinkOpts.Recorders, journal)
	}

	// Local API (optional); its WebSocket hub also records pushed states.
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Deps{
			Config:  cfg.API,
			Logger:  log.Component("api"),
			Bridge:  lazyBridge{get: func() *avews.Bridge { return bridge }},
			History: historyReader(journal),
			MQTT:    brokerStatus(mqttClient),
			DB:      sqlDB(db),
			Version: version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		sinkOpts.Recorders = append(sinkOpts.Recorders, apiServer.Hub())
	}

	sink, err := hass.NewSink(sinkOpts)
	if err != nil {
		return fmt.Errorf("creating state sink: %w", err)
	}

	bridgeOpts := avews.BridgeOptions{
		BridgeID:       cfg.Hub.HardwareID,
		Version:        version,
		Devices:        devicesFromConfig(cfg.Devices),
		Sink:           sink,
		Supervisor:     supervisorConfig(cfg),
		HealthTopic:    topics.Health(),
		HealthInterval: time.Duration(cfg.Hub.HealthInterval) * time.Second,
		Logger:         log.Component("controller"),
	}
	if mqttClient != nil {
		bridgeOpts.MQTTClient = &mqttBridgeAdapter{client: mqttClient}
		bridgeOpts.CommandTopic = topics.AllSwitchCommands()
	}

	bridge, err = avews.NewBridge(bridgeOpts)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()
	log.Info("bridge started", "devices", len(bridgeOpts.Devices))

	if apiServer != nil {
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if influxClient != nil {
		go recordLinkStats(ctx, influxClient, bridge, cfg.Hub.HardwareID,
			time.Duration(cfg.Hub.HealthInterval)*time.Second)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		log.Warn("startup health check failed", "error", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// getConfigPath returns the YAML configuration path: AVEWS_CONFIG if set,
// else the default path when it exists, else "" (defaults and add-on
// options only).
func getConfigPath() string {
	if path := os.Getenv("AVEWS_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}

// openJournal opens the database, applies migrations and starts the pruner.
func openJournal(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, *history.Journal, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("state journal ready", "path", db.Path())

	journal := history.NewJournal(db.DB)
	if cfg.RetentionDays > 0 {
		retention := time.Duration(cfg.RetentionDays) * 24 * time.Hour
		go journal.RunPruner(ctx, prunerInterval, retention, log)
	}
	return db, journal, nil
}

// supervisorConfig maps the controller and sync sections.
func supervisorConfig(cfg *config.Config) avews.SupervisorConfig {
	return avews.SupervisorConfig{
		URL: cfg.ControllerURL(),
		Dialer: &avews.WebSocketDialer{
			Subprotocols:     cfg.Controller.Subprotocols,
			HandshakeTimeout: time.Duration(cfg.Controller.HandshakeTimeout) * time.Second,
		},
		ReconnectDelay:      cfg.GetReconnectDelay(),
		PollInterval:        cfg.GetPollInterval(),
		PollAntitheft:       cfg.Sync.AntitheftOnInterval,
		SyncLightsOnStartup: cfg.Sync.LightsOnStartup,
		SubscribeToEvents:   cfg.Sync.SubscribeToEvents,
	}
}

// devicesFromConfig converts the static device list.
func devicesFromConfig(in []config.DeviceConfig) []avews.Device {
	out := make([]avews.Device, 0, len(in))
	for _, d := range in {
		out = append(out, avews.Device{
			Type:       d.Type,
			ID:         d.ID,
			ExternalID: d.ExternalID,
			Label:      d.Label,
		})
	}
	return out
}

// recordLinkStats writes controller link counters until ctx is cancelled.
func recordLinkStats(ctx context.Context, client *influxdb.Client, bridge *avews.Bridge, bridgeID string, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := bridge.Stats()
			client.WriteLinkStats(bridgeID, s.Connected, map[string]interface{}{
				"connects":      int64(s.Connects),
				"disconnects":   int64(s.Disconnects),
				"frames_rx":     int64(s.FramesRx),
				"frames_tx":     int64(s.FramesTx),
				"decode_errors": int64(s.DecodeErrors),
				"write_errors":  int64(client.WriteErrors()), // #nosec G115 -- counter
			})
		}
	}
}

// healthCheck verifies the optional infrastructure connections.
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// The helpers below keep typed nil pointers out of interface fields.

func historyReader(j *history.Journal) api.HistoryReader {
	if j == nil {
		return nil
	}
	return j
}

func brokerStatus(c *mqtt.Client) api.BrokerStatus {
	if c == nil {
		return nil
	}
	return c
}

func sqlDB(db *database.DB) *sql.DB {
	if db == nil {
		return nil
	}
	return db.DB
}

// lazyBridge defers to the bridge once it exists. The API is only
// started after the bridge, so get never returns nil while serving.
type lazyBridge struct {
	get func() *avews.Bridge
}

func (l lazyBridge) Devices() []avews.Device {
	return l.get().Devices()
}

func (l lazyBridge) Device(id string) (avews.Device, bool) {
	return l.get().Device(id)
}

func (l lazyBridge) Lights() map[int]bool {
	return l.get().Lights()
}

func (l lazyBridge) ToggleLight(id int) error {
	return l.get().ToggleLight(id)
}

func (l lazyBridge) RequestStatus(class int) error {
	return l.get().RequestStatus(class)
}

func (l lazyBridge) Stats() avews.ConnectionStats {
	return l.get().Stats()
}

func (l lazyBridge) IsConnected() bool {
	return l.get().IsConnected()
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
//   - Infrastructure mqtt: func(topic, payload []byte) error
//   - Bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

var _ avews.MQTTClient = (*mqttBridgeAdapter)(nil)

// Publish implements avews.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements avews.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements avews.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}
