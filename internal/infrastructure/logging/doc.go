// Package logging provides structured logging for the greenhouse agent.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for log collectors that prefer logfmt
//   - Coloured console output for a developer watching the device
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text, console
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("session started", "broker", "ssl://broker:8883")
//	logger.Error("failed to open journal", "error", err)
//
// # Security
//
// Never log broker passwords or InfluxDB tokens.
package logging
