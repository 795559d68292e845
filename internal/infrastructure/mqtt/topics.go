package mqtt

import "fmt"

// Topic roots.
const (
	// TopicPrefix is the base for every topic owned by the bridge.
	// Layout: avews/{hardware_id}/...
	TopicPrefix = "avews"

	// DefaultDiscoveryPrefix is Home Assistant's MQTT discovery root.
	DefaultDiscoveryPrefix = "homeassistant"
)

// Topics builds the MQTT topics of one bridge instance. The hardware
// identifier keeps several controllers apart on the same broker.
//
//	topics := mqtt.NewTopics("villa", "")
//	topics.SwitchState("light_12")
//	// Returns: "avews/villa/switch/light_12/state"
type Topics struct {
	HardwareID      string
	DiscoveryPrefix string
}

// NewTopics returns a topic builder. An empty discovery prefix selects
// DefaultDiscoveryPrefix.
func NewTopics(hardwareID, discoveryPrefix string) Topics {
	if discoveryPrefix == "" {
		discoveryPrefix = DefaultDiscoveryPrefix
	}
	return Topics{HardwareID: hardwareID, DiscoveryPrefix: discoveryPrefix}
}

// Base returns avews/{hardware_id}.
func (t Topics) Base() string {
	return fmt.Sprintf("%s/%s", TopicPrefix, t.HardwareID)
}

// Status returns the availability topic carrying online/offline and the LWT.
func (t Topics) Status() string {
	return t.Base() + "/status"
}

// Health returns the bridge health topic.
func (t Topics) Health() string {
	return t.Base() + "/health"
}

// SwitchState returns the state topic of a switch.
func (t Topics) SwitchState(uniqueID string) string {
	return fmt.Sprintf("%s/switch/%s/state", t.Base(), uniqueID)
}

// SwitchCommand returns the command topic of a switch.
func (t Topics) SwitchCommand(uniqueID string) string {
	return fmt.Sprintf("%s/switch/%s/set", t.Base(), uniqueID)
}

// AllSwitchCommands returns a wildcard matching every switch command topic.
func (t Topics) AllSwitchCommands() string {
	return t.Base() + "/switch/+/set"
}

// BinarySensorState returns the mirror state topic of a binary sensor.
func (t Topics) BinarySensorState(externalID string) string {
	return fmt.Sprintf("%s/binary_sensor/%s/state", t.Base(), externalID)
}

// SwitchDiscovery returns the Home Assistant discovery config topic of a switch.
func (t Topics) SwitchDiscovery(uniqueID string) string {
	return fmt.Sprintf("%s/switch/%s_%s/config", t.DiscoveryPrefix, t.HardwareID, uniqueID)
}
