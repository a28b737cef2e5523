package mqtt

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Router receives every inbound message with its payload decoded as text.
//
// It runs synchronously on the transport's event loop, so it must return
// quickly and must not call Session.Stop.
type Router func(topic, payload string)

// DecodePayload decodes payload as UTF-8, replacing each invalid byte
// sequence with U+FFFD. It never fails.
func DecodePayload(payload []byte) string {
	decoded, err := unicode.UTF8.NewDecoder().Bytes(payload)
	if err != nil {
		return strings.ToValidUTF8(string(payload), "\uFFFD")
	}
	return string(decoded)
}

// dispatch hands a message to the router with panic recovery.
func (s *Session) dispatch(topic string, payload []byte) {
	if s.router == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("MQTT router panic recovered",
				"topic", topic,
				"panic", r,
			)
		}
	}()

	s.router(topic, DecodePayload(payload))
}
