// Package config handles loading and validating the AVE bridge configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overlaying the Home Assistant add-on options file (options.json)
//   - Overriding with environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - The supervisor token is only ever read from SUPERVISOR_TOKEN
//   - MQTT and InfluxDB credentials should be set via environment variables
//
// Usage:
//
//	cfg, err := config.Load("/etc/avews/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.ControllerURL())
package config
