package avews

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// announceTimeout bounds the startup announcement of static sensors.
const announceTimeout = 30 * time.Second

// Bridge orchestrates the controller link and the hub.
// It handles:
//   - Announcing statically configured sensors to the hub
//   - Running the connection supervisor and dispatching controller messages
//   - Receiving light commands from the hub via MQTT
//   - Health reporting and graceful shutdown
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	registry   *Registry
	dispatcher *Dispatcher
	supervisor *Supervisor
	sink       StateSink
	mqtt       MQTTClient
	health     *HealthReporter

	commandTopic string

	// Last lighting state reported by the controller, by light id.
	lights   map[int]bool
	lightsMu sync.RWMutex

	// Shutdown coordination
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger Logger
}

// MQTTClient is the interface for MQTT operations used by the bridge.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// BridgeID identifies this bridge (the configured hardware identifier).
	BridgeID string

	// Version is reported in health messages.
	Version string

	// Devices seeds the registry.
	Devices []Device

	// Sink receives state pushes for the hub.
	Sink StateSink

	// Supervisor configures the controller connection.
	Supervisor SupervisorConfig

	// MQTTClient is optional. Without it the bridge runs without hub
	// commands or health reporting.
	MQTTClient MQTTClient

	// CommandTopic is the wildcard topic carrying switch commands.
	CommandTopic string

	// HealthTopic is where health messages are published.
	HealthTopic string

	// HealthInterval defaults to 30 seconds.
	HealthInterval time.Duration

	// Logger is optional structured logger.
	Logger Logger
}

// NewBridge creates a new bridge instance.
// Call Start() to begin operation.
func NewBridge(opts BridgeOptions) (*Bridge, error) {
	if opts.Sink == nil {
		return nil, fmt.Errorf("state sink is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	registry, err := NewRegistry(opts.Devices)
	if err != nil {
		return nil, fmt.Errorf("building registry: %w", err)
	}

	supCfg := opts.Supervisor
	if supCfg.Logger == nil {
		supCfg.Logger = logger
	}
	supervisor, err := NewSupervisor(supCfg)
	if err != nil {
		return nil, fmt.Errorf("creating supervisor: %w", err)
	}

	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		registry:     registry,
		supervisor:   supervisor,
		sink:         opts.Sink,
		mqtt:         opts.MQTTClient,
		commandTopic: opts.CommandTopic,
		lights:       make(map[int]bool),
		ctx:          ctx,
		ctxCancel:    ctxCancel,
		logger:       logger,
	}

	b.dispatcher, err = NewDispatcher(DispatcherOptions{
		Registry: registry,
		Sink:     opts.Sink,
		Sender:   supervisor,
		Lights:   b,
		Logger:   logger,
	})
	if err != nil {
		ctxCancel()
		return nil, fmt.Errorf("creating dispatcher: %w", err)
	}

	if opts.MQTTClient != nil {
		b.health = NewHealthReporter(HealthReporterConfig{
			BridgeID:  opts.BridgeID,
			Version:   opts.Version,
			Topic:     opts.HealthTopic,
			Interval:  opts.HealthInterval,
			Publisher: opts.MQTTClient,
			Link:      supervisor,
			Devices:   registry,
			Logger:    logger,
		})
	}

	return b, nil
}

// Start announces static sensors, subscribes to hub commands, starts health
// reporting and launches the connection supervisor in the background.
func (b *Bridge) Start(ctx context.Context) error {
	if b.health != nil {
		if err := b.health.PublishStarting(); err != nil {
			b.logger.Warn("failed to publish starting status", "error", err)
		}
	}

	b.announceSensors(ctx)

	if b.mqtt != nil && b.commandTopic != "" {
		if err := b.mqtt.Subscribe(b.commandTopic, 1, b.handleSwitchCommand); err != nil {
			return fmt.Errorf("subscribe to switch commands: %w", err)
		}
		b.logger.Info("subscribed to switch commands", "topic", b.commandTopic)
	}

	if b.health != nil {
		b.health.Start(b.ctx)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.supervisor.Run(b.ctx, b.dispatcher)
	}()

	b.logger.Info("bridge started",
		"controller", b.supervisor.cfg.URL,
		"devices", b.registry.Len())

	return nil
}

// Stop gracefully shuts down the bridge.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()

		if b.health != nil {
			b.health.Stop()
		}

		b.wg.Wait()
		b.logger.Info("bridge stopped")
	})
}

// announceSensors pushes every statically known sensor to the hub with its
// initial state.
func (b *Bridge) announceSensors(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, announceTimeout)
	defer cancel()

	for _, dev := range b.registry.List() {
		if err := b.sink.CreateBinarySensor(ctx, dev.ExternalID, dev.Label, SensorDeviceClass, dev.On()); err != nil {
			b.logger.Warn("sensor announcement failed", "external_id", dev.ExternalID, "error", err)
			continue
		}
		b.logger.Debug("sensor announced", "external_id", dev.ExternalID, "label", dev.Label)
	}
}

// handleSwitchCommand processes an ON/OFF/TOGGLE request from the hub.
func (b *Bridge) handleSwitchCommand(topic string, payload []byte) {
	id, ok := lightIDFromCommandTopic(topic)
	if !ok {
		b.logger.Warn("ignoring command on unexpected topic", "topic", topic)
		return
	}

	cmd, err := ParseLightCommand(payload)
	if err != nil {
		b.logger.Warn("ignoring light command", "light_id", id, "error", err)
		return
	}

	if err := b.SetLight(id, cmd); err != nil {
		b.logger.Warn("light command failed", "light_id", id, "error", err)
	}
}

// SetLight drives a light towards the requested state. The controller only
// exposes a toggle, so ON/OFF toggle only when the last reported state
// differs. For a light never reported, ON/OFF requests a lighting status
// refresh and returns ErrUnknownLight.
func (b *Bridge) SetLight(id int, cmd LightCommand) error {
	if cmd == LightCommandToggle {
		return b.ToggleLight(id)
	}

	current, known := b.LightState(id)
	if !known {
		//nolint:errcheck // Send logs its own failures
		b.RequestStatus(ClassLighting)
		return fmt.Errorf("%w: %d", ErrUnknownLight, id)
	}

	want := cmd == LightCommandOn
	if current == want {
		b.logger.Debug("light already in requested state", "light_id", id, "on", want)
		return nil
	}
	return b.ToggleLight(id)
}

// ToggleLight sends EBI <id>,10 to the controller.
func (b *Bridge) ToggleLight(id int) error {
	return b.supervisor.Send(ToggleLightFrame(id))
}

// RequestStatus sends GSF <class> to the controller.
func (b *Bridge) RequestStatus(class int) error {
	return b.supervisor.Send(StatusRequestFrame(class))
}

// ObserveLight records the last reported state of a light.
func (b *Bridge) ObserveLight(id int, on bool) {
	b.lightsMu.Lock()
	b.lights[id] = on
	b.lightsMu.Unlock()
}

// LightState returns the last reported state of a light.
func (b *Bridge) LightState(id int) (on, known bool) {
	b.lightsMu.RLock()
	defer b.lightsMu.RUnlock()
	on, known = b.lights[id]
	return on, known
}

// Lights returns a snapshot of all reported light states.
func (b *Bridge) Lights() map[int]bool {
	b.lightsMu.RLock()
	defer b.lightsMu.RUnlock()

	out := make(map[int]bool, len(b.lights))
	for id, on := range b.lights {
		out[id] = on
	}
	return out
}

// Devices returns a snapshot of the registry.
func (b *Bridge) Devices() []Device {
	return b.registry.List()
}

// Device looks up a device by its hub identifier.
func (b *Bridge) Device(externalID string) (Device, bool) {
	return b.registry.FindByExternalID(externalID)
}

// Stats returns controller link statistics.
func (b *Bridge) Stats() ConnectionStats {
	return b.supervisor.Stats()
}

// IsConnected reports whether the controller link is up.
func (b *Bridge) IsConnected() bool {
	return b.supervisor.IsConnected()
}
