package avews

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HealthStatus represents the operational status of the bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the controller link and hub publisher are up.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates one of the links is down.
	HealthDegraded HealthStatus = "degraded"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published periodically to report operational status.
// Topic: avews/{hardware_id}/health
// QoS: 1, Retained: Yes
type HealthMessage struct {
	// Bridge is the hardware identifier of this bridge instance.
	Bridge string `json:"bridge"`

	// Timestamp is when the health status was generated (UTC).
	Timestamp time.Time `json:"timestamp"`

	Status  HealthStatus `json:"status"`
	Version string       `json:"version"`

	// UptimeSeconds is how long the bridge has been running.
	UptimeSeconds int64 `json:"uptime_seconds"`

	// Connection contains controller link statistics.
	Connection *ConnectionStats `json:"connection,omitempty"`

	// DevicesManaged is the number of devices in the registry.
	DevicesManaged int `json:"devices_managed"`

	// Reason explains the status (especially for degraded).
	Reason string `json:"reason,omitempty"`
}

// NewHealthMessage creates a health status message.
func NewHealthMessage(bridgeID, version string, status HealthStatus, stats ConnectionStats, deviceCount int, startTime time.Time) HealthMessage {
	return HealthMessage{
		Bridge:         bridgeID,
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        version,
		UptimeSeconds:  int64(time.Since(startTime).Seconds()),
		Connection:     &stats,
		DevicesManaged: deviceCount,
	}
}

// SwitchPayload renders a switch state for MQTT.
func SwitchPayload(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// LightCommand is a hub request for a light.
type LightCommand int

const (
	LightCommandToggle LightCommand = iota
	LightCommandOn
	LightCommandOff
)

var errBadLightCommand = errors.New("unsupported light command")

// ParseLightCommand reads an ON/OFF/TOGGLE payload, case-insensitively.
func ParseLightCommand(payload []byte) (LightCommand, error) {
	switch strings.ToUpper(strings.TrimSpace(string(payload))) {
	case "ON":
		return LightCommandOn, nil
	case "OFF":
		return LightCommandOff, nil
	case "TOGGLE":
		return LightCommandToggle, nil
	default:
		return 0, fmt.Errorf("%w: %q", errBadLightCommand, payload)
	}
}

// ParseLightUniqueID extracts the controller id from a LightUniqueID value.
func ParseLightUniqueID(uniqueID string) (int, bool) {
	raw, ok := strings.CutPrefix(uniqueID, "light_")
	if !ok {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// lightIDFromCommandTopic extracts the light id from
// avews/{hardware_id}/switch/{unique_id}/set.
func lightIDFromCommandTopic(topic string) (int, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[len(parts)-1] != "set" {
		return 0, false
	}
	return ParseLightUniqueID(parts[len(parts)-2])
}
