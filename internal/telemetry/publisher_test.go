package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/config"
)

type sent struct {
	topic   string
	payload string
	qos     byte
	retain  bool
	wait    bool
}

// fakeSession accepts or refuses publishes on demand.
type fakeSession struct {
	mu     sync.Mutex
	accept bool
	calls  []sent
}

func (f *fakeSession) PublishText(topic, payload string, qos byte, retain, wait bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sent{topic, payload, qos, retain, wait})
	return f.accept
}

func (f *fakeSession) setAccept(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accept = v
}

func (f *fakeSession) Calls() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.calls...)
}

type mirrored struct {
	deviceID string
	topic    string
	counter  int64
	at       time.Time
}

type fakeMirror struct {
	mu     sync.Mutex
	points []mirrored
}

func (m *fakeMirror) WriteTelemetry(deviceID, topic string, counter int64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, mirrored{deviceID, topic, counter, at})
}

var fixedTime = time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("CET", 3600))

func newTestPublisher(session *fakeSession, opts ...Option) *Publisher {
	p := New(Config{
		DeviceID: "raspi-1",
		Topic:    "greenhouse/telemetry/counter",
		Interval: 10 * time.Millisecond,
		QoS:      1,
	}, session, opts...)
	p.now = func() time.Time { return fixedTime }
	return p
}

func TestPublishNow_Success(t *testing.T) {
	session := &fakeSession{accept: true}
	mirror := &fakeMirror{}
	p := newTestPublisher(session, WithMirror(mirror))

	require.True(t, p.PublishNow())
	require.True(t, p.PublishNow())

	calls := session.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, sent{
		topic:   "greenhouse/telemetry/counter",
		payload: "1 @ 2026-03-01T08:30:00Z",
		qos:     1,
	}, calls[0])
	assert.Equal(t, "2 @ 2026-03-01T08:30:00Z", calls[1].payload)
	assert.Equal(t, int64(3), p.Counter())

	require.Len(t, mirror.points, 2)
	assert.Equal(t, mirrored{"raspi-1", "greenhouse/telemetry/counter", 1, fixedTime.UTC()}, mirror.points[0])
}

func TestPublishNow_FailureDoesNotAdvance(t *testing.T) {
	session := &fakeSession{accept: false}
	mirror := &fakeMirror{}
	p := newTestPublisher(session, WithMirror(mirror))

	assert.False(t, p.PublishNow())
	assert.False(t, p.PublishNow())
	assert.Equal(t, int64(1), p.Counter())
	assert.Empty(t, mirror.points)

	session.setAccept(true)
	assert.True(t, p.PublishNow())

	calls := session.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, "1 @ 2026-03-01T08:30:00Z", c.payload, "the same value is retried until it is sent")
	}
	assert.Equal(t, int64(2), p.Counter())
}

func TestPublishNow_Wait(t *testing.T) {
	session := &fakeSession{accept: true}
	p := New(Config{Topic: "t", QoS: 2, Wait: true}, session)

	p.PublishNow()

	calls := session.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].wait)
	assert.Equal(t, byte(2), calls[0].qos)
	assert.False(t, calls[0].retain)
}

func TestStart_PublishesImmediatelyAndOnTick(t *testing.T) {
	session := &fakeSession{accept: true}
	p := newTestPublisher(session)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	require.Eventually(t, func() bool { return len(session.Calls()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	p.Stop()

	n := len(session.Calls())
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, session.Calls(), n, "no publishes after Stop")
	assert.Equal(t, int64(n+1), p.Counter())
}

func TestStart_StopsOnContextCancel(t *testing.T) {
	session := &fakeSession{accept: true}
	p := newTestPublisher(session)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	require.Eventually(t, func() bool { return len(session.Calls()) >= 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	p.wg.Wait()

	n := len(session.Calls())
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, session.Calls(), n)

	// Stop after cancellation is still safe, and idempotent
	p.Stop()
	p.Stop()
}

func TestNew_DefaultInterval(t *testing.T) {
	p := New(Config{Topic: "t"}, &fakeSession{})
	assert.Equal(t, defaultInterval, p.cfg.Interval)
}

func TestConfigFrom(t *testing.T) {
	cfg := &config.Config{
		MQTT: config.MQTTConfig{Broker: config.MQTTBrokerConfig{ClientID: "raspi-1"}},
		Telemetry: config.TelemetryConfig{
			Enabled:  true,
			Topic:    "greenhouse/telemetry/counter",
			Interval: 10,
			QoS:      1,
		},
	}

	assert.Equal(t, Config{
		DeviceID: "raspi-1",
		Topic:    "greenhouse/telemetry/counter",
		Interval: 10 * time.Second,
		QoS:      1,
	}, ConfigFrom(cfg))
}
