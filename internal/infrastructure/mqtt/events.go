package mqtt

import (
	"time"

	"github.com/google/uuid"
)

// EventKind identifies a session lifecycle event.
type EventKind string

// Session event kinds.
const (
	EventConnected       EventKind = "connected"
	EventConnectFailed   EventKind = "connect_failed"
	EventDisconnected    EventKind = "disconnected"
	EventSubscribeFailed EventKind = "subscribe_failed"
	EventBirthPublished  EventKind = "birth_published"
	EventDeathPublished  EventKind = "death_published"
	EventPublishFailed   EventKind = "publish_failed"
	EventStopped         EventKind = "stopped"
)

// Event is a diagnostic record of something that happened to a session.
//
// Events never carry credentials or payloads.
type Event struct {
	ID       string
	Kind     EventKind
	ClientID string

	// Reason is set for connect_failed and disconnected.
	Reason ReasonCode

	// Clean is set for disconnected: true when the disconnect was requested
	// or the transport reported an orderly close.
	Clean bool

	// Topic is set for presence, publish_failed and subscribe_failed events.
	Topic string

	Err  error
	Time time.Time
}

// Observer receives session events.
//
// OnEvent is called synchronously, from the event loop for transport events
// and from the caller's goroutine for publish and stop events. It must be
// safe for concurrent use and must not block.
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event)

// OnEvent calls f(ev).
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

func newEvent(kind EventKind, clientID string) Event {
	return Event{
		ID:       uuid.NewString(),
		Kind:     kind,
		ClientID: clientID,
		Time:     time.Now().UTC(),
	}
}

// logObserver renders events as diagnostic log lines.
type logObserver struct {
	logger Logger
}

func (o logObserver) OnEvent(ev Event) {
	switch ev.Kind {
	case EventConnected:
		o.logger.Info("connected to MQTT broker", "client_id", ev.ClientID)
	case EventConnectFailed:
		o.logger.Warn("MQTT connect failed",
			"client_id", ev.ClientID,
			"reason_code", int(ev.Reason),
			"reason", ev.Reason.String(),
			"error", ev.Err,
		)
	case EventDisconnected:
		if ev.Clean {
			o.logger.Info("disconnected from MQTT broker", "client_id", ev.ClientID)
			return
		}
		o.logger.Warn("unexpected disconnect (auto-reconnect enabled)",
			"client_id", ev.ClientID,
			"reason_code", int(ev.Reason),
			"reason", ev.Reason.String(),
			"error", ev.Err,
		)
	case EventSubscribeFailed:
		o.logger.Warn("MQTT subscribe failed", "topic", ev.Topic, "error", ev.Err)
	case EventBirthPublished:
		o.logger.Info("birth announced", "topic", ev.Topic)
	case EventDeathPublished:
		o.logger.Info("death announced", "topic", ev.Topic)
	case EventPublishFailed:
		o.logger.Warn("MQTT publish failed", "topic", ev.Topic, "error", ev.Err)
	case EventStopped:
		o.logger.Info("MQTT session stopped", "client_id", ev.ClientID)
	}
}
