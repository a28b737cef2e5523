package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrInvalidConfig is returned by NewSession when required connection
	// material (host, credentials, CA certificate) is missing or unusable.
	ErrInvalidConfig = errors.New("mqtt: invalid session configuration")

	// ErrNotConnected is returned when attempting operations on a disconnected session.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when the connect request cannot be issued.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrAlreadyStarted is returned by Start when the session is already running.
	ErrAlreadyStarted = errors.New("mqtt: session already started")

	// ErrPublishFailed is returned when the transport rejects a publish.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty topic is provided.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrTimeout is returned when a waiting publish is not acknowledged in time.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
