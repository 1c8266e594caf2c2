package logger

import (
	"go.uber.org/zap"
)

// Symbol-aware logging helpers.
// These functions log with the symbol as a structured field, not in the message.
//
// Usage:
//
//	// Instead of:
//	logger.Infow(ConnSymbol + " socket up", "dc", dcID)
//
//	// Use:
//	logger.ConnInfow("socket up", "dc", dcID)
//
// This makes logs queryable by symbol and keeps messages clean.
const (
	// ConnSymbol marks connection lifecycle events (connect/reconnect/close).
	ConnSymbol = "☍"
	// HandshakeSymbol marks auth-key handshake supervision events.
	HandshakeSymbol = "✿"
	// MigrateSymbol marks datacenter migration events.
	MigrateSymbol = "➜"
	// RetrySymbol marks request retry/backoff decisions.
	RetrySymbol = "↻"
)

// ConnInfow logs an info message tagged with the connection symbol.
func ConnInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, ConnSymbol}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// ConnWarnw logs a warning message tagged with the connection symbol.
func ConnWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, ConnSymbol}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// HandshakeInfow logs an info message tagged with the handshake symbol.
func HandshakeInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, HandshakeSymbol}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// MigrateInfow logs an info message tagged with the migration symbol.
func MigrateInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, MigrateSymbol}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// RetryDebugw logs a debug message tagged with the retry symbol.
func RetryDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, RetrySymbol}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// WithSymbol returns a logger with the given symbol as a field.
func WithSymbol(symbol string) *zap.SugaredLogger {
	return Logger.With(FieldSymbol, symbol)
}

// SymbolInfow logs with any symbol - for dynamic symbol usage.
func SymbolInfow(symbol, msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, symbol}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}
