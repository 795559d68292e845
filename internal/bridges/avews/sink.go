package avews

import (
	"context"
	"strconv"
)

// StateSink receives state pushes destined for the hub.
// All calls are best-effort: the bridge logs a returned error and moves on.
type StateSink interface {
	// CreateBinarySensor announces a new binary sensor with its initial state.
	CreateBinarySensor(ctx context.Context, externalID, label, deviceClass string, on bool) error

	// UpdateBinarySensor pushes a new state for a known binary sensor.
	UpdateBinarySensor(ctx context.Context, externalID string, on bool) error

	// PublishSwitchState pushes the state of a lighting/energy switch.
	PublishSwitchState(ctx context.Context, uniqueID string, on bool) error
}

// LightObserver is told about every lighting state reported by the controller.
type LightObserver interface {
	ObserveLight(id int, on bool)
}

// Sender transmits an outbound frame to the controller.
type Sender interface {
	Send(f Frame) error
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// SensorDeviceClass is the hub device class used for antitheft sensors.
const SensorDeviceClass = "motion"

// LightUniqueID returns the switch identifier used for a controller light.
func LightUniqueID(id int) string {
	return "light_" + strconv.Itoa(id)
}
