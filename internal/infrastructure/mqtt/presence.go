package mqtt

import (
	"time"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/config"
)

// announcement is one half of the presence protocol.
type announcement struct {
	topic   string
	payload string
	qos     byte
	retain  bool
}

// birthAnnouncement returns the birth message, if both topic and payload are set.
func birthAnnouncement(p config.MQTTPresenceConfig) (announcement, bool) {
	if p.BirthTopic == "" || p.BirthPayload == "" {
		return announcement{}, false
	}
	return announcement{topic: p.BirthTopic, payload: p.BirthPayload, qos: byte(p.QoS), retain: p.Retain}, true
}

// deathAnnouncement returns the death message, if both topic and payload are
// set. The same message is registered as the Last Will.
func deathAnnouncement(p config.MQTTPresenceConfig) (announcement, bool) {
	if p.DeathTopic == "" || p.DeathPayload == "" {
		return announcement{}, false
	}
	return announcement{topic: p.DeathTopic, payload: p.DeathPayload, qos: byte(p.QoS), retain: p.Retain}, true
}

// announce publishes a presence message through the publish guard.
// Failures are reported as publish_failed events and not retried.
func (s *Session) announce(a announcement, kind EventKind, wait bool, timeout time.Duration) {
	opts := PublishOptions{QoS: a.qos, Retain: a.retain, Wait: wait}
	if err := s.publish(a.topic, []byte(a.payload), opts, timeout); err != nil {
		return
	}

	ev := newEvent(kind, s.cfg.Broker.ClientID)
	ev.Topic = a.topic
	s.emit(ev)
}
