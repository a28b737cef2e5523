package mqtt

import (
	"errors"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// eventBufferSize is the capacity of the channel between paho's goroutines
// and the event loop.
const eventBufferSize = 256

type eventType int

const (
	eventConnect eventType = iota
	eventMessage
	eventDisconnect
)

type transportEvent struct {
	typ        eventType
	connect    ConnectResult
	disconnect DisconnectReason
	topic      string
	payload    []byte
}

// PahoTransport adapts paho.mqtt.golang to the Transport interface.
//
// paho invokes OnConnect and ConnectionLost on fresh goroutines, so callbacks
// are funnelled into one channel and drained by a single event-loop
// goroutine. The EventHandler therefore never runs concurrently with itself.
//
// A new paho client is built on every Connect; paho clients must not be
// reused after Disconnect.
type PahoTransport struct {
	cfg     TransportConfig
	handler EventHandler

	mu     sync.Mutex
	client pahomqtt.Client
	done   chan struct{}
	loop   sync.WaitGroup
}

// NewPahoTransport is the default TransportFactory.
func NewPahoTransport(cfg TransportConfig, handler EventHandler) (Transport, error) {
	if handler == nil {
		return nil, errors.New("mqtt: transport requires an event handler")
	}
	return &PahoTransport{cfg: cfg, handler: handler}, nil
}

// Connect builds a paho client, starts the event loop and issues an
// asynchronous connect. paho keeps retrying until Disconnect is called.
func (t *PahoTransport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return ErrAlreadyStarted
	}

	events := make(chan transportEvent, eventBufferSize)
	done := make(chan struct{})

	deliver := func(ev transportEvent) {
		select {
		case events <- ev:
		case <-done:
		}
	}

	opts := buildClientOptions(t.cfg)

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		deliver(transportEvent{typ: eventConnect, connect: ConnectResult{Code: ReasonSuccess}})
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		deliver(transportEvent{
			typ:        eventDisconnect,
			disconnect: DisconnectReason{Code: reasonFromError(err), Err: err},
		})
	})

	// Failed attempts only surface through connection notifications; the
	// connect token stays pending while ConnectRetry is on.
	opts.SetConnectionNotificationHandler(func(_ pahomqtt.Client, n pahomqtt.ConnectionNotification) {
		failed, ok := n.(pahomqtt.ConnectionNotificationFailed)
		if !ok {
			return
		}
		deliver(transportEvent{
			typ:     eventConnect,
			connect: ConnectResult{Code: reasonFromError(failed.Reason), Err: failed.Reason},
		})
	})

	// With no per-subscription callback every message lands here.
	opts.SetDefaultPublishHandler(func(_ pahomqtt.Client, msg pahomqtt.Message) {
		deliver(transportEvent{typ: eventMessage, topic: msg.Topic(), payload: msg.Payload()})
	})

	t.client = pahomqtt.NewClient(opts)
	t.done = done

	t.loop.Add(1)
	go t.run(events, done)

	t.client.Connect()
	return nil
}

// Disconnect stops the paho client and waits for the event loop to exit.
// It must not be called from inside an EventHandler method.
func (t *PahoTransport) Disconnect(quiesce time.Duration) {
	t.mu.Lock()
	client, done := t.client, t.done
	t.client, t.done = nil, nil
	t.mu.Unlock()

	if client == nil {
		return
	}

	client.Disconnect(uint(quiesce.Milliseconds()))
	close(done)
	t.loop.Wait()
}

// Subscribe submits a subscription. Only an immediate refusal is reported.
func (t *PahoTransport) Subscribe(topic string, qos byte) error {
	client := t.current()
	if client == nil {
		return ErrNotConnected
	}
	return immediateError(client.Subscribe(topic, qos, nil))
}

// Publish submits a message and returns a Delivery for its acknowledgement.
func (t *PahoTransport) Publish(topic string, payload []byte, qos byte, retained bool) (Delivery, error) {
	client := t.current()
	if client == nil {
		return nil, ErrNotConnected
	}

	token := client.Publish(topic, qos, retained, payload)
	if err := immediateError(token); err != nil {
		return nil, err
	}
	return pahoDelivery{token: token}, nil
}

func (t *PahoTransport) current() pahomqtt.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

func (t *PahoTransport) run(events <-chan transportEvent, done <-chan struct{}) {
	defer t.loop.Done()

	for {
		select {
		case <-done:
			return
		case ev := <-events:
			switch ev.typ {
			case eventConnect:
				t.handler.HandleConnect(ev.connect)
			case eventMessage:
				t.handler.HandleMessage(ev.topic, ev.payload)
			case eventDisconnect:
				t.handler.HandleDisconnect(ev.disconnect)
			}
		}
	}
}

// immediateError returns the token's error if paho completed it during
// submission, without waiting for the broker.
func immediateError(token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	default:
		return nil
	}
}

type pahoDelivery struct {
	token pahomqtt.Token
}

func (d pahoDelivery) Wait(timeout time.Duration) error {
	if timeout <= 0 {
		d.token.Wait()
		return d.token.Error()
	}
	if !d.token.WaitTimeout(timeout) {
		return ErrTimeout
	}
	return d.token.Error()
}

// reasonFromError recovers the CONNACK return code paho folded into err.
// A nil error is an orderly disconnect; anything unrecognised is a network
// error.
func reasonFromError(err error) ReasonCode {
	if err == nil {
		return ReasonSuccess
	}
	for code, connErr := range packets.ConnErrors {
		if connErr != nil && code != packets.ErrNetworkError && errors.Is(err, connErr) {
			return ReasonCode(code)
		}
	}
	return ReasonNetworkError
}
