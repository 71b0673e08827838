// Package log provides the structured logging facade used across the
// enrichment services.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Internally it is backed by the standard
// library slog through a handler that routes records into a pluggable
// formatter/output pipeline, so output stays consistent whether a component
// logs through this facade or through an injected *slog.Logger.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("worker"))
//	l.Info("claimed items", log.Int("count", 8))
//
// Loggers are passed explicitly via constructor injection; there is no global
// default logger.
package log
