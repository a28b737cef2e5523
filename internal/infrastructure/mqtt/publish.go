package mqtt

import (
	"errors"
	"fmt"
	"time"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// PublishOptions controls a single publish.
type PublishOptions struct {
	// QoS is the delivery level (0, 1, or 2).
	QoS byte

	// Retain asks the broker to keep the message for late subscribers.
	Retain bool

	// Wait blocks until the broker acknowledges the message, bounded by
	// the session's publish timeout.
	Wait bool
}

// Publish sends a message through the publish guard.
//
// The guard never touches the transport while disconnected. Any failure
// after submission, including a missed acknowledgement, marks the session
// disconnected until the transport reports the next connect.
//
// Returns:
//   - nil once the transport accepted (and, with Wait, acknowledged) the message
//   - ErrInvalidTopic / ErrInvalidQoS for bad arguments
//   - ErrNotConnected when the session is not connected
//   - ErrPublishFailed when the transport rejected the message
//   - ErrTimeout when Wait was set and no acknowledgement arrived in time
//
// Example:
//
//	err := session.Publish(mqtt.Topics{}.Telemetry("counter"), []byte("42"), mqtt.PublishOptions{QoS: 1})
func (s *Session) Publish(topic string, payload []byte, opts PublishOptions) error {
	return s.publish(topic, payload, opts, s.publishTimeout)
}

// PublishText is the boolean form of Publish for callers that retry on
// their own cadence. It returns true only when Publish returns nil.
func (s *Session) PublishText(topic, payload string, qos byte, retain, wait bool) bool {
	return s.Publish(topic, []byte(payload), PublishOptions{QoS: qos, Retain: retain, Wait: wait}) == nil
}

func (s *Session) publish(topic string, payload []byte, opts PublishOptions, timeout time.Duration) error {
	// Validate inputs
	if topic == "" {
		return ErrInvalidTopic
	}
	if opts.QoS > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	// Check connection state
	if !s.connected.Load() {
		return ErrNotConnected
	}

	delivery, err := s.transport.Publish(topic, payload, opts.QoS, opts.Retain)
	if err != nil {
		return s.publishFailed(topic, fmt.Errorf("%w: %w", ErrPublishFailed, err))
	}

	if !opts.Wait {
		return nil
	}

	if err := delivery.Wait(timeout); err != nil {
		if errors.Is(err, ErrTimeout) {
			return s.publishFailed(topic, fmt.Errorf("%w: no acknowledgement after %v", ErrTimeout, timeout))
		}
		return s.publishFailed(topic, fmt.Errorf("%w: %w", ErrPublishFailed, err))
	}

	return nil
}

// publishFailed treats a transport failure as an implicit disconnect.
func (s *Session) publishFailed(topic string, err error) error {
	s.connected.Store(false)
	s.setState(StateDisconnected)

	ev := newEvent(EventPublishFailed, s.cfg.Broker.ClientID)
	ev.Topic = topic
	ev.Err = err
	s.emit(ev)

	return err
}
