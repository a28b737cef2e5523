package mqtt

import (
	"fmt"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/config"
)

// Topic prefixes for the greenhouse namespace.
const (
	// TopicPrefix is the root of every greenhouse topic.
	TopicPrefix = "greenhouse"

	// TopicPrefixCommands carries commands addressed to devices.
	TopicPrefixCommands = "greenhouse/commands/"

	// TopicPrefixSensors carries sensor readings.
	TopicPrefixSensors = "greenhouse/sensors/"

	// TopicPrefixTelemetry carries device telemetry.
	TopicPrefixTelemetry = "greenhouse/telemetry/"
)

// Topics provides builders for greenhouse MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	presence := topics.Presence("raspi-1-ecole-iot")
//	// Returns: "greenhouse/devices/raspi-1-ecole-iot"
type Topics struct{}

// Presence returns the retained topic carrying a device's birth and death
// payloads.
//
// Example: greenhouse/devices/raspi-1-ecole-iot
func (Topics) Presence(clientID string) string {
	return config.PresenceTopic(clientID)
}

// Telemetry returns the topic for a named telemetry stream.
//
// Example: greenhouse/telemetry/counter
func (Topics) Telemetry(name string) string {
	return TopicPrefixTelemetry + name
}

// Command returns the topic for a command.
//
// Example: greenhouse/commands/fan
func (Topics) Command(name string) string {
	return TopicPrefixCommands + name
}

// Sensor returns the topic for a sensor reading.
//
// Example: greenhouse/sensors/temperature
func (Topics) Sensor(name string) string {
	return TopicPrefixSensors + name
}

// AllCommands returns a wildcard subscription for every command.
func (Topics) AllCommands() string {
	return TopicPrefixCommands + "#"
}

// AllSensors returns a wildcard subscription for every sensor reading.
func (Topics) AllSensors() string {
	return TopicPrefixSensors + "#"
}

// AllTopics returns a wildcard subscription for the greenhouse namespace.
func (Topics) AllTopics() string {
	return fmt.Sprintf("%s/#", TopicPrefix)
}
