// Package telemetry periodically publishes the device's counter heartbeat.
//
// Each tick publishes "{counter} @ {timestamp}" to the telemetry topic. The
// counter only advances when the session accepted the message, so a value
// that could not be sent is retried on the next tick.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/config"
)

const defaultInterval = 10 * time.Second

// TextPublisher is the subset of the MQTT session the publisher needs.
type TextPublisher interface {
	PublishText(topic, payload string, qos byte, retain, wait bool) bool
}

// CounterMirror receives every counter value that was published.
// It is implemented by the InfluxDB client.
type CounterMirror interface {
	WriteTelemetry(deviceID, topic string, counter int64, at time.Time)
}

// Logger is the logging interface used by the publisher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Config holds publisher settings.
type Config struct {
	DeviceID string
	Topic    string
	Interval time.Duration
	QoS      byte

	// Wait blocks each publish until the broker acknowledges it.
	Wait bool
}

// ConfigFrom derives publisher settings from the agent configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		DeviceID: cfg.MQTT.Broker.ClientID,
		Topic:    cfg.Telemetry.Topic,
		Interval: cfg.TelemetryInterval(),
		QoS:      byte(cfg.Telemetry.QoS), // #nosec G115 -- validated 0..2
	}
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(p *Publisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMirror records every published counter value in m.
func WithMirror(m CounterMirror) Option {
	return func(p *Publisher) {
		p.mirror = m
	}
}

// Publisher sends the counter heartbeat on a fixed interval.
type Publisher struct {
	cfg       Config
	publisher TextPublisher
	mirror    CounterMirror
	logger    Logger
	now       func() time.Time

	// counter is the next value to publish; it starts at 1.
	counter atomic.Int64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a publisher. Call Start to begin publishing.
func New(cfg Config, publisher TextPublisher, opts ...Option) *Publisher {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}

	p := &Publisher{
		cfg:       cfg,
		publisher: publisher,
		logger:    nopLogger{},
		now:       time.Now,
		done:      make(chan struct{}),
	}
	p.counter.Store(1)

	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start publishes once immediately and then on every interval until ctx is
// cancelled or Stop is called.
func (p *Publisher) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop ends the publish loop and waits for it to exit.
// Safe to call multiple times.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

// Counter returns the next value that will be published.
func (p *Publisher) Counter() int64 {
	return p.counter.Load()
}

// PublishNow sends the current counter value and reports whether the
// session accepted it. The counter advances only on success.
func (p *Publisher) PublishNow() bool {
	n := p.counter.Load()
	at := p.now().UTC()
	payload := fmt.Sprintf("%d @ %s", n, at.Format(time.RFC3339Nano))

	if !p.publisher.PublishText(p.cfg.Topic, payload, p.cfg.QoS, false, p.cfg.Wait) {
		p.logger.Warn("telemetry publish not sent, will retry",
			"topic", p.cfg.Topic,
			"counter", n,
		)
		return false
	}

	p.counter.Add(1)
	p.logger.Debug("telemetry published", "topic", p.cfg.Topic, "counter", n)

	if p.mirror != nil {
		p.mirror.WriteTelemetry(p.cfg.DeviceID, p.cfg.Topic, n, at)
	}
	return true
}

func (p *Publisher) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.PublishNow()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
			p.PublishNow()
		}
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
