// Package hass delivers bridge state to Home Assistant.
//
// Binary sensors are written through the Core REST API
// (POST /states/binary_sensor.<id>). Light switches go over MQTT with a
// one-time discovery config, or through the REST API as read-only states
// when no broker is configured. Sink combines both and fans every pushed
// state out to optional recorders (InfluxDB, the SQLite journal).
package hass
