// Package influxdb mirrors greenhouse telemetry and MQTT session events into
// InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health monitoring.
//
// # Measurements
//
//   - telemetry: one point per acknowledged counter publish
//     (tags device_id, topic; field counter)
//   - session_events: one point per mqtt.Event
//     (tags client_id, kind; fields reason_code, clean, topic, error)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	session, err := mqtt.NewSession(cfg.MQTT, route,
//	    mqtt.WithObserver(mqtt.ObserverFunc(client.WriteSessionEvent)))
//
// # Error Handling
//
// Writes never block the caller. Failed batches are reported through the
// SetOnError callback wrapped in ErrWriteFailed; connection and health check
// errors are returned directly.
package influxdb
