package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/config"
)

// Logger interface for diagnostic output.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// State is the lifecycle state of a Session.
type State int32

// Session states.
const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session is a TLS-authenticated MQTT session with presence management.
//
// On every successful connect it subscribes to the configured topic and
// announces birth. On Stop it announces death before disconnecting; on a
// crash the broker publishes the same death payload as the Last Will.
//
// Thread Safety:
//   - Transport events are handled on the transport's single event loop.
//   - Publish, PublishText, IsConnected and State are safe from any goroutine.
//   - Start and Stop are serialised against each other.
//   - Stop must not be called from the Router.
type Session struct {
	cfg            config.MQTTConfig
	router         Router
	transport      Transport
	logger         Logger
	observers      []Observer
	publishTimeout time.Duration

	// connected mirrors the most recent connect/disconnect event and gates
	// every publish.
	connected atomic.Bool

	// stopping is set by Stop so a subsequent disconnect is classified clean.
	stopping atomic.Bool

	state atomic.Int32

	lifecycleMu sync.Mutex
}

// Option configures a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	factory   TransportFactory
	logger    Logger
	observers []Observer
}

// WithTransportFactory replaces the paho transport.
func WithTransportFactory(factory TransportFactory) Option {
	return func(o *sessionOptions) {
		o.factory = factory
	}
}

// WithLogger sets the logger used for diagnostics and router panics.
func WithLogger(logger Logger) Option {
	return func(o *sessionOptions) {
		o.logger = logger
	}
}

// WithObserver registers an additional event observer. It may be repeated.
func WithObserver(observer Observer) Option {
	return func(o *sessionOptions) {
		if observer != nil {
			o.observers = append(o.observers, observer)
		}
	}
}

// NewSession validates cfg, prepares TLS and the Last Will, and builds the
// transport. No network activity happens until Start.
//
// Returns ErrInvalidConfig when the broker host, username, password or CA
// certificate is missing, or when the CA file cannot be used.
func NewSession(cfg config.MQTTConfig, router Router, opts ...Option) (*Session, error) {
	o := sessionOptions{factory: NewPahoTransport}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	tc, err := buildTransportConfig(cfg)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:            cfg,
		router:         router,
		logger:         o.logger,
		publishTimeout: cfg.PublishTimeoutDuration(),
	}
	s.observers = append([]Observer{logObserver{logger: o.logger}}, o.observers...)

	transport, err := o.factory(tc, (*sessionEvents)(s))
	if err != nil {
		return nil, fmt.Errorf("creating transport: %w", err)
	}
	s.transport = transport

	return s, nil
}

// Start issues an asynchronous connect. The session becomes Connected when
// the broker accepts; failed attempts are retried by the transport.
//
// Start is valid from Idle or Stopped and returns ErrAlreadyStarted otherwise.
func (s *Session) Start() error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	prev := s.State()
	if prev != StateIdle && prev != StateStopped {
		return ErrAlreadyStarted
	}

	s.stopping.Store(false)
	s.connected.Store(false)
	s.state.Store(int32(StateConnecting))

	if err := s.transport.Connect(); err != nil {
		s.state.Store(int32(prev))
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

// Stop announces death if connected, disconnects and halts the transport.
// Calling Stop again is a no-op apart from a redundant disconnect request.
func (s *Session) Stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.stopping.Store(true)

	if death, ok := deathAnnouncement(s.cfg.Presence); ok && s.connected.Load() {
		s.announce(death, EventDeathPublished, true, defaultDeathTimeout)
	}

	s.transport.Disconnect(defaultDisconnectQuiesce)
	s.connected.Store(false)

	if State(s.state.Swap(int32(StateStopped))) != StateStopped {
		s.emit(newEvent(EventStopped, s.cfg.Broker.ClientID))
	}
}

// IsConnected returns the state reported by the most recent transport event.
func (s *Session) IsConnected() bool {
	return s.connected.Load()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// HealthCheck reports whether the session is connected.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Session) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !s.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// setState moves to next unless the session has been stopped.
func (s *Session) setState(next State) {
	for {
		cur := s.state.Load()
		if State(cur) == StateStopped {
			return
		}
		if s.state.CompareAndSwap(cur, int32(next)) {
			return
		}
	}
}

func (s *Session) emit(ev Event) {
	for _, o := range s.observers {
		o.OnEvent(ev)
	}
}

// sessionEvents is the EventHandler view of a Session. Keeping the handler
// methods off Session stops callers from injecting fake transport events.
type sessionEvents Session

func (h *sessionEvents) HandleConnect(result ConnectResult) {
	s := (*Session)(h)

	if !result.Success() {
		s.connected.Store(false)
		s.setState(StateConnecting)

		ev := newEvent(EventConnectFailed, s.cfg.Broker.ClientID)
		ev.Reason = result.Code
		ev.Err = result.Err
		s.emit(ev)
		return
	}

	s.connected.Store(true)
	s.setState(StateConnected)
	s.emit(newEvent(EventConnected, s.cfg.Broker.ClientID))

	if s.stopping.Load() {
		return
	}

	if topic := s.cfg.Subscribe.Topic; topic != "" {
		if err := s.transport.Subscribe(topic, byte(s.cfg.Subscribe.QoS)); err != nil {
			ev := newEvent(EventSubscribeFailed, s.cfg.Broker.ClientID)
			ev.Topic = topic
			ev.Err = err
			s.emit(ev)
		}
	}

	if birth, ok := birthAnnouncement(s.cfg.Presence); ok {
		s.announce(birth, EventBirthPublished, false, 0)
	}
}

func (h *sessionEvents) HandleMessage(topic string, payload []byte) {
	(*Session)(h).dispatch(topic, payload)
}

func (h *sessionEvents) HandleDisconnect(reason DisconnectReason) {
	s := (*Session)(h)

	s.connected.Store(false)

	stopping := s.stopping.Load()
	if !stopping {
		s.setState(StateDisconnected)
	}

	ev := newEvent(EventDisconnected, s.cfg.Broker.ClientID)
	ev.Reason = reason.Code
	ev.Err = reason.Err
	ev.Clean = stopping || reason.Normal()
	s.emit(ev)
}
