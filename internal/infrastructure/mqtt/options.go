package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout limits a single dial + CONNECT handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultDeathTimeout bounds the wait for the graceful death announcement.
	defaultDeathTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time allowed for in-flight work on disconnect.
	defaultDisconnectQuiesce = 250 * time.Millisecond

	// protocolVersion311 pins MQTT 3.1.1.
	protocolVersion311 = 4

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildTransportConfig validates the session config and resolves it into the
// form a Transport consumes. Any problem is reported as ErrInvalidConfig.
func buildTransportConfig(cfg config.MQTTConfig) (TransportConfig, error) {
	var missing []string
	if cfg.Broker.Host == "" {
		missing = append(missing, "broker host")
	}
	if cfg.Auth.Username == "" {
		missing = append(missing, "username")
	}
	if cfg.Auth.Password == "" {
		missing = append(missing, "password")
	}
	if cfg.Broker.CACert == "" {
		missing = append(missing, "CA certificate path")
	}
	if len(missing) > 0 {
		return TransportConfig{}, fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}

	if cfg.Subscribe.QoS < 0 || cfg.Subscribe.QoS > maxQoS || cfg.Presence.QoS < 0 || cfg.Presence.QoS > maxQoS {
		return TransportConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidQoS)
	}

	tlsConfig, err := buildTLSConfig(cfg.Broker.CACert)
	if err != nil {
		return TransportConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	tc := TransportConfig{
		BrokerURL:    brokerURL(cfg.Broker.Host, cfg.Broker.Port),
		ClientID:     cfg.Broker.ClientID,
		Username:     cfg.Auth.Username,
		Password:     cfg.Auth.Password,
		TLS:          tlsConfig,
		Keepalive:    cfg.KeepaliveDuration(),
		ReconnectMin: time.Duration(cfg.Reconnect.InitialDelay) * time.Second,
		ReconnectMax: time.Duration(cfg.Reconnect.MaxDelay) * time.Second,
	}

	if death, ok := deathAnnouncement(cfg.Presence); ok {
		tc.Will = &Will{
			Topic:    death.topic,
			Payload:  []byte(death.payload),
			QoS:      death.qos,
			Retained: death.retain,
		}
	}

	return tc, nil
}

// brokerURL builds the TLS broker URL; IPv6 literals are bracketed.
func brokerURL(host string, port int) string {
	return "ssl://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// buildTLSConfig loads the CA bundle used to verify the broker certificate.
//
// Peer verification is mandatory: InsecureSkipVerify is never set and no
// client certificate is offered.
func buildTLSConfig(caPath string) (*tls.Config, error) {
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, fmt.Errorf("reading CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no PEM certificates found in %s", caPath)
	}

	return &tls.Config{
		RootCAs:    pool,
		MinVersion: tlsMinVersion,
	}, nil
}

// buildClientOptions creates paho MQTT options from the transport config.
//
// This configures:
//   - Broker URL (always ssl://)
//   - Client ID and MQTT 3.1.1
//   - Authentication credentials
//   - Last Will and Testament (when configured)
//   - Auto-reconnect with backoff bounded by ReconnectMin/ReconnectMax
//   - Clean session mode (subscriptions are re-issued on every connect)
func buildClientOptions(cfg TransportConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetProtocolVersion(protocolVersion311)

	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetTLSConfig(cfg.TLS)

	if cfg.Will != nil {
		opts.SetBinaryWill(cfg.Will.Topic, cfg.Will.Payload, cfg.Will.QoS, cfg.Will.Retained)
	}

	// Clean session - the session re-subscribes from its connect handler
	opts.SetCleanSession(true)
	opts.SetResumeSubs(false)

	// The first connect retries at a fixed interval; later reconnects back off
	// exponentially up to MaxReconnectInterval.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(cfg.ReconnectMin)
	opts.SetMaxReconnectInterval(cfg.ReconnectMax)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(cfg.Keepalive)

	return opts
}
