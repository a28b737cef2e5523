package mqtt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/config"
)

// =============================================================================
// Test PKI
// =============================================================================

// testPKI is a throwaway CA plus a localhost server certificate signed by it.
type testPKI struct {
	caPath     string
	serverCert tls.Certificate
}

// newTestPKI writes the CA certificate to a temp dir and returns the paths
// and server key pair the in-process broker needs.
func newTestPKI(t *testing.T) testPKI {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating CA key: %v", err)
	}
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "greenhouse-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("creating CA certificate: %v", err)
	}
	caCert, err := x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("parsing CA certificate: %v", err)
	}

	serverKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating server key: %v", err)
	}
	serverTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	serverDER, err := x509.CreateCertificate(rand.Reader, serverTemplate, caCert, &serverKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("creating server certificate: %v", err)
	}

	caPath := filepath.Join(t.TempDir(), "ca.crt")
	caPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER})
	if err := os.WriteFile(caPath, caPEM, 0o600); err != nil {
		t.Fatalf("writing CA certificate: %v", err)
	}

	return testPKI{
		caPath: caPath,
		serverCert: tls.Certificate{
			Certificate: [][]byte{serverDER},
			PrivateKey:  serverKey,
		},
	}
}

// testSessionConfig returns a complete session config using a fresh CA.
func testSessionConfig(t *testing.T) config.MQTTConfig {
	t.Helper()

	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "broker.local",
			Port:     8883,
			ClientID: "dev1",
			CACert:   newTestPKI(t).caPath,
		},
		Auth: config.MQTTAuthConfig{
			Username: "greenhouse",
			Password: "s3cret",
		},
		Keepalive: 60,
		Subscribe: config.MQTTSubscribeConfig{
			Topic: "#",
			QoS:   1,
		},
		Presence: config.MQTTPresenceConfig{
			BirthTopic:   "presence/dev1",
			BirthPayload: "online",
			DeathTopic:   "presence/dev1",
			DeathPayload: "offline",
			QoS:          1,
			Retain:       true,
		},
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     30,
		},
		PublishTimeout: 1,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// =============================================================================
// Fake transport
// =============================================================================

type fakePublish struct {
	topic    string
	payload  string
	qos      byte
	retained bool
}

// fakeTransport records every call in order. Events are injected by the
// test through handler.
type fakeTransport struct {
	mu sync.Mutex

	cfg     TransportConfig
	handler EventHandler

	calls     []string
	publishes []fakePublish
	waits     []time.Duration

	connectErr   error
	subscribeErr error
	publishErr   error
	waitErr      error

	// lostOnDisconnect makes Disconnect report a connection loss
	// synchronously, the way a transport might while tearing down.
	lostOnDisconnect bool
}

func (f *fakeTransport) factory(cfg TransportConfig, handler EventHandler) (Transport, error) {
	f.cfg = cfg
	f.handler = handler
	return f, nil
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeTransport) Connect() error {
	f.record("connect")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connectErr
}

func (f *fakeTransport) Disconnect(_ time.Duration) {
	f.record("disconnect")
	if f.lostOnDisconnect {
		f.handler.HandleDisconnect(DisconnectReason{Code: ReasonNetworkError, Err: io.EOF})
	}
}

func (f *fakeTransport) Subscribe(topic string, qos byte) error {
	f.record(fmt.Sprintf("subscribe %s qos=%d", topic, qos))
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribeErr
}

func (f *fakeTransport) Publish(topic string, payload []byte, qos byte, retained bool) (Delivery, error) {
	f.record(fmt.Sprintf("publish %s %s qos=%d retain=%t", topic, payload, qos, retained))

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	f.publishes = append(f.publishes, fakePublish{topic: topic, payload: string(payload), qos: qos, retained: retained})
	return fakeDelivery{transport: f}, nil
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) Publishes() []fakePublish {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakePublish(nil), f.publishes...)
}

func (f *fakeTransport) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waits...)
}

func (f *fakeTransport) set(fn func(f *fakeTransport)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fakeDelivery struct {
	transport *fakeTransport
}

func (d fakeDelivery) Wait(timeout time.Duration) error {
	d.transport.mu.Lock()
	defer d.transport.mu.Unlock()
	d.transport.waits = append(d.transport.waits, timeout)
	return d.transport.waitErr
}

// =============================================================================
// Event recorder
// =============================================================================

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) Kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (r *eventRecorder) Count(kind EventKind) int {
	n := 0
	for _, k := range r.Kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

// newTestSession builds a session over a fake transport.
func newTestSession(t *testing.T, cfg config.MQTTConfig, router Router) (*Session, *fakeTransport, *eventRecorder) {
	t.Helper()

	ft := &fakeTransport{}
	rec := &eventRecorder{}

	s, err := NewSession(cfg, router,
		WithTransportFactory(ft.factory),
		WithLogger(discardLogger()),
		WithObserver(rec),
	)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s, ft, rec
}

// connectSession starts the session and simulates a successful CONNACK.
func connectSession(t *testing.T, s *Session, ft *fakeTransport) {
	t.Helper()

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	ft.handler.HandleConnect(ConnectResult{Code: ReasonSuccess})
}
