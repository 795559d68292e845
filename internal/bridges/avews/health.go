package avews

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

const defaultHealthInterval = 30 * time.Second

// HealthPublisher carries health messages, normally the MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// LinkStats exposes controller link state. Implemented by *Supervisor.
type LinkStats interface {
	IsConnected() bool
	Stats() ConnectionStats
}

// DeviceCounter reports how many devices are tracked. Implemented by *Registry.
type DeviceCounter interface {
	Len() int
}

// HealthReporterConfig configures a HealthReporter. Only Publisher and
// Topic are needed for anything to be sent.
type HealthReporterConfig struct {
	BridgeID  string
	Version   string
	Topic     string
	Interval  time.Duration // defaults to 30s
	Publisher HealthPublisher
	Link      LinkStats
	Devices   DeviceCounter
	Logger    Logger
}

// HealthReporter publishes a retained HealthMessage on a fixed interval and
// logs every status transition.
type HealthReporter struct {
	cfg     HealthReporterConfig
	started time.Time
	logger  Logger

	mu   sync.Mutex
	last HealthStatus

	stop     context.CancelFunc
	loopDone chan struct{}
	stopOnce sync.Once
}

// NewHealthReporter returns a reporter; call Start to begin the loop.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultHealthInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &HealthReporter{
		cfg:     cfg,
		started: time.Now(),
		logger:  logger,
	}
}

// Start launches the periodic loop. It ends when ctx is cancelled or Stop
// is called.
func (h *HealthReporter) Start(ctx context.Context) {
	ctx, h.stop = context.WithCancel(ctx)
	h.loopDone = make(chan struct{})

	go func() {
		defer close(h.loopDone)

		ticker := time.NewTicker(h.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.PublishNow(); err != nil {
					h.logger.Warn("failed to publish health", "error", err)
				}
			}
		}
	}()
}

// Stop ends the loop and publishes a final stopping status. Repeated calls
// are no-ops.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		if h.stop != nil {
			h.stop()
			<-h.loopDone
		}
		//nolint:errcheck // shutting down; nothing left to report to
		h.publish(HealthStopping, "")
	})
}

// PublishStarting publishes the starting status sent before the first
// controller connect.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(HealthStarting, "bridge starting")
}

// PublishNow evaluates both links and publishes the result.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publish(status, reason)
}

// determineStatus is healthy only when the broker and controller are both up.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	var down []string
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		down = append(down, "MQTT")
	}
	if h.cfg.Link == nil || !h.cfg.Link.IsConnected() {
		down = append(down, "controller")
	}
	if len(down) == 0 {
		return HealthHealthy, ""
	}
	return HealthDegraded, strings.Join(down, " and ") + " disconnected"
}

func (h *HealthReporter) publish(status HealthStatus, reason string) error {
	h.noteTransition(status, reason)

	if h.cfg.Publisher == nil || h.cfg.Topic == "" {
		return nil
	}

	var stats ConnectionStats
	if h.cfg.Link != nil {
		stats = h.cfg.Link.Stats()
	}
	devices := 0
	if h.cfg.Devices != nil {
		devices = h.cfg.Devices.Len()
	}

	msg := NewHealthMessage(h.cfg.BridgeID, h.cfg.Version, status, stats, devices, h.started)
	msg.Reason = reason

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(h.cfg.Topic, payload, 1, true)
}

func (h *HealthReporter) noteTransition(status HealthStatus, reason string) {
	h.mu.Lock()
	prev := h.last
	h.last = status
	h.mu.Unlock()

	if prev != "" && prev != status {
		h.logger.Info("bridge health changed", "from", prev, "to", status, "reason", reason)
	}
}

// Status returns the last published status, or "" before the first one.
func (h *HealthReporter) Status() HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}
