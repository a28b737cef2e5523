// Package mqtt provides the secure MQTT session used by the greenhouse agent.
//
// This package manages:
//   - A single TLS + username/password connection to the broker
//   - Automatic reconnect with bounded backoff (delegated to paho)
//   - Presence: birth on every connect, death on Stop, and the same death
//     payload registered as Last Will for crashes
//   - A publish guard that refuses to touch the transport while disconnected
//   - Inbound dispatch to a Router with lossy UTF-8 decoding
//
// # Architecture
//
//	Session ──publish/subscribe──► PahoTransport ──► Broker
//	Session ◄──── EventHandler ──── event loop (one goroutine)
//
// paho runs its callbacks on separate goroutines. PahoTransport funnels them
// through one channel so the session's connect, message and disconnect
// handlers never run concurrently. The connected flag is atomic because
// publishers read it from their own goroutines.
//
// # Lifecycle
//
//	Idle ──Start──► Connecting ──connack──► Connected ──lost──► Disconnected
//	                    ▲                                           │
//	                    └──────────── transport retry ◄─────────────┘
//	any ──Stop──► Stopped ──Start──► Connecting
//
// # Security Considerations
//
//   - TLS is mandatory; the broker certificate is verified against the
//     configured CA and no client certificate is offered
//   - Credentials never appear in events or log output
//
// # Usage
//
//	session, err := mqtt.NewSession(cfg.MQTT, router.New(os.Stdout).Route,
//	    mqtt.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := session.Start(); err != nil {
//	    return err
//	}
//	defer session.Stop()
//
//	ok := session.PublishText(mqtt.Topics{}.Telemetry("counter"), "1", 1, false, false)
package mqtt
