// Package journal keeps an on-device history of MQTT session lifecycle
// events in the session_events SQLite table.
//
// A Recorder is registered as a session observer; it queues events and
// writes them from a background goroutine so the session's event loop is
// never held up by storage. The Repository is also used directly to read the
// history back, most recent first:
//
//	repo := journal.NewSQLiteRepository(db.DB)
//	rec := journal.NewRecorder(repo, logger)
//	defer rec.Close()
//
//	session, err := mqtt.NewSession(cfg.MQTT, route, mqtt.WithObserver(rec))
//
//	page, err := repo.List(ctx, journal.Filter{Kind: mqtt.EventDisconnected})
package journal
