package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"
)

// Transport is the connection primitive a Session drives.
//
// Implementations run their own network I/O and must deliver events to the
// EventHandler they were built with one at a time, never concurrently.
// The Session is the only caller of a Transport.
type Transport interface {
	// Connect issues an asynchronous connect and starts the event loop.
	// Connection failures are reported through HandleConnect, not returned.
	Connect() error

	// Disconnect closes the connection and halts the event loop. It is a
	// no-op when the transport is not running.
	Disconnect(quiesce time.Duration)

	// Subscribe submits a subscription without waiting for the SUBACK.
	Subscribe(topic string, qos byte) error

	// Publish submits a message. A non-nil error means the transport refused
	// the submission; acknowledgement is observed through the Delivery.
	Publish(topic string, payload []byte, qos byte, retained bool) (Delivery, error)
}

// Delivery tracks an in-flight publish.
type Delivery interface {
	// Wait blocks until the broker acknowledges the message or timeout
	// elapses. A zero timeout waits indefinitely.
	Wait(timeout time.Duration) error
}

// EventHandler receives serialized transport events.
type EventHandler interface {
	HandleConnect(result ConnectResult)
	HandleMessage(topic string, payload []byte)
	HandleDisconnect(reason DisconnectReason)
}

// TransportFactory builds the Transport owned by a Session.
type TransportFactory func(cfg TransportConfig, handler EventHandler) (Transport, error)

// TransportConfig is the fully resolved connection setup handed to a Transport.
type TransportConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string

	// TLS carries the CA pool; peer verification is always on.
	TLS *tls.Config

	Keepalive time.Duration

	// Will is nil when no death announcement is configured.
	Will *Will

	// ReconnectMin and ReconnectMax bound the transport's retry backoff.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// Will is a Last Will and Testament registered with the broker at connect time.
type Will struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// ReasonCode is an MQTT 3.1.1 CONNACK return code, reused to describe why a
// connection ended.
type ReasonCode byte

// Reason codes.
const (
	ReasonSuccess               ReasonCode = 0x00
	ReasonBadProtocolVersion    ReasonCode = 0x01
	ReasonIdentifierRejected    ReasonCode = 0x02
	ReasonServerUnavailable     ReasonCode = 0x03
	ReasonBadUsernameOrPassword ReasonCode = 0x04
	ReasonNotAuthorized         ReasonCode = 0x05
	ReasonNetworkError          ReasonCode = 0xFE
	ReasonProtocolViolation     ReasonCode = 0xFF

	// ReasonNormalDisconnect marks a disconnect the client asked for.
	ReasonNormalDisconnect = ReasonSuccess
)

var reasonNames = map[ReasonCode]string{
	ReasonSuccess:               "success",
	ReasonBadProtocolVersion:    "refused: bad protocol version",
	ReasonIdentifierRejected:    "refused: identifier rejected",
	ReasonServerUnavailable:     "refused: server unavailable",
	ReasonBadUsernameOrPassword: "refused: bad username or password",
	ReasonNotAuthorized:         "refused: not authorised",
	ReasonNetworkError:          "network error",
	ReasonProtocolViolation:     "protocol violation",
}

func (r ReasonCode) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason 0x%02x", byte(r))
}

// ConnectResult is the outcome of one connection attempt.
type ConnectResult struct {
	Code ReasonCode
	Err  error
}

// Success reports whether the broker accepted the connection.
func (r ConnectResult) Success() bool {
	return r.Code == ReasonSuccess && r.Err == nil
}

// DisconnectReason describes why an established connection ended.
type DisconnectReason struct {
	Code ReasonCode
	Err  error
}

// Normal reports whether the transport saw an orderly disconnect.
func (r DisconnectReason) Normal() bool {
	return r.Code == ReasonNormalDisconnect && r.Err == nil
}
