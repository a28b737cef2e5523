package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/mqtt"
)

// Measurement names written by this package.
const (
	MeasurementTelemetry     = "telemetry"
	MeasurementSessionEvents = "session_events"
)

// WriteTelemetry records one successfully published telemetry counter value.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteTelemetry("raspi-1", "greenhouse/telemetry/counter", 42, time.Now())
func (c *Client) WriteTelemetry(deviceID, topic string, counter int64, at time.Time) {
	c.writePoint(
		MeasurementTelemetry,
		map[string]string{
			"device_id": deviceID,
			"topic":     topic,
		},
		map[string]interface{}{
			"counter": counter,
		},
		at,
	)
}

// WriteSessionEvent records an MQTT session lifecycle event.
//
// It has the shape of an mqtt.Observer callback, so it can be registered with
// mqtt.WithObserver(mqtt.ObserverFunc(client.WriteSessionEvent)).
func (c *Client) WriteSessionEvent(ev mqtt.Event) {
	fields := map[string]interface{}{
		"reason_code": int64(ev.Reason),
		"clean":       ev.Clean,
	}
	if ev.Topic != "" {
		fields["topic"] = ev.Topic
	}
	if ev.Err != nil {
		fields["error"] = ev.Err.Error()
	}

	at := ev.Time
	if at.IsZero() {
		at = time.Now()
	}

	c.writePoint(
		MeasurementSessionEvents,
		map[string]string{
			"client_id": ev.ClientID,
			"kind":      string(ev.Kind),
		},
		fields,
		at,
	)
}

// writePoint queues a point unless the client has been closed.
func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}, at time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
