// Package config handles loading and validating the greenhouse agent configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading a local .env file for development
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - Broker credentials should be set via MQTT_USERNAME / MQTT_PASSWORD
//   - The config file should have restricted permissions (0600)
//   - The CA certificate path is required before a session can be built
//
// Configuration is loaded once at startup and treated as immutable. The MQTT
// section is handed to the session by value, so nothing inside the session
// reads the environment.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml", true)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.Broker.Host)
package config
