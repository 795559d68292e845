package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nerrad567/avews-bridge/internal/infrastructure/mqtt"
)

// Publisher is the MQTT operation used by MQTTPublisher.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// discoveryDevice groups all entities under one hub device.
type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// switchDiscovery is the MQTT discovery payload for one light switch.
type switchDiscovery struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	CommandTopic      string          `json:"command_topic"`
	AvailabilityTopic string          `json:"availability_topic"`
	PayloadOn         string          `json:"payload_on"`
	PayloadOff        string          `json:"payload_off"`
	Device            discoveryDevice `json:"device"`
}

// MQTTPublisher publishes light switches and binary sensor mirrors over MQTT.
//
// The first state published for a switch is preceded by a retained
// discovery config so the hub creates the entity with a command topic.
//
// Thread Safety: All methods are safe for concurrent use.
type MQTTPublisher struct {
	client Publisher
	topics mqtt.Topics
	qos    byte

	mu        sync.Mutex
	announced map[string]bool
}

// NewMQTTPublisher creates a publisher for the given topic layout.
func NewMQTTPublisher(client Publisher, topics mqtt.Topics, qos byte) *MQTTPublisher {
	return &MQTTPublisher{
		client:    client,
		topics:    topics,
		qos:       qos,
		announced: make(map[string]bool),
	}
}

// PublishSwitchState publishes ON/OFF retained on the switch state topic.
func (p *MQTTPublisher) PublishSwitchState(_ context.Context, uniqueID string, on bool) error {
	if err := p.announceSwitch(uniqueID); err != nil {
		return err
	}

	payload := "OFF"
	if on {
		payload = "ON"
	}
	if err := p.client.Publish(p.topics.SwitchState(uniqueID), []byte(payload), p.qos, true); err != nil {
		return fmt.Errorf("publishing switch state %s: %w", uniqueID, err)
	}
	return nil
}

// MirrorBinarySensor publishes on/off retained on the binary sensor topic.
func (p *MQTTPublisher) MirrorBinarySensor(externalID string, on bool) error {
	if err := p.client.Publish(p.topics.BinarySensorState(externalID), []byte(onOff(on)), p.qos, true); err != nil {
		return fmt.Errorf("mirroring %s: %w", externalID, err)
	}
	return nil
}

// announceSwitch publishes the discovery config once per unique id. A
// failed announcement is retried on the next state.
func (p *MQTTPublisher) announceSwitch(uniqueID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.announced[uniqueID] {
		return nil
	}

	cfg := switchDiscovery{
		Name:              uniqueID,
		UniqueID:          p.topics.HardwareID + "_" + uniqueID,
		StateTopic:        p.topics.SwitchState(uniqueID),
		CommandTopic:      p.topics.SwitchCommand(uniqueID),
		AvailabilityTopic: p.topics.Status(),
		PayloadOn:         "ON",
		PayloadOff:        "OFF",
		Device: discoveryDevice{
			Identifiers:  []string{"avews_" + p.topics.HardwareID},
			Name:         "AVE web server " + p.topics.HardwareID,
			Manufacturer: "AVE",
			Model:        "DominaPlus web server",
		},
	}

	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding discovery for %s: %w", uniqueID, err)
	}
	if err := p.client.Publish(p.topics.SwitchDiscovery(uniqueID), payload, p.qos, true); err != nil {
		return fmt.Errorf("publishing discovery for %s: %w", uniqueID, err)
	}

	p.announced[uniqueID] = true
	return nil
}
