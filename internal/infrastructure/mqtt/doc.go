// Package mqtt provides MQTT client connectivity for the AVE bridge.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) used as Home Assistant availability
//
// # Architecture
//
// MQTT carries switch states and commands between the bridge and Home
// Assistant, plus the bridge's own health and availability topics:
//
//	AVE web server ↔ bridge ↔ MQTT broker ↔ Home Assistant
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.Hub.HardwareID, cfg.Hub.DiscoveryTopic)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.AllSwitchCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("command: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish(topics.SwitchState("light_3"), []byte("ON"), 1, true)
package mqtt
