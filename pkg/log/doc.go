// Package log provides strata's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Records are routed through log/slog via
// a bridge handler that hands them to a Formatter and one or more Outputs, so
// the slog ecosystem is available without changing how output looks.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("lazy-stream"), log.Str("name", "orders-0"))
//	l.Info("created and opened a new stream", log.Int64("stream_id", 42))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config: level and format
// strings, optional redacted keys, and optional per-message sampling.
//
// # Interop
//
// Pebble and other libraries log through the standard library logger. Use
// RedirectStdLog to send those lines through a Logger, or ToStdLogger to get a
// *log.Logger that writes into one.
package log
