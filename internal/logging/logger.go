package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent.
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "MYHOME_LOG_LEVEL"

// Frame directions as printed by LogFrame.
const (
	DirectionIn  = "<="
	DirectionOut = "=>"
)

// Initialize creates a new logger with the specified level.
// If level is empty, it checks the MYHOME_LOG_LEVEL environment variable.
// If neither is set, logging is disabled.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(level)),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// ResolveLevel picks the level to pass to Initialize: level, then
// MYHOME_LOG_LEVEL, then "info" when frames are logged so they reach the
// console. It returns "" (silent) otherwise.
func ResolveLevel(level string, frames bool) string {
	if level != "" {
		return level
	}
	if env := os.Getenv(LogLevelEnvVar); env != "" {
		return env
	}
	if frames {
		return "info"
	}
	return ""
}

// InitializeFromEnv initializes the logger from MYHOME_LOG_LEVEL.
func InitializeFromEnv() error {
	return Initialize("")
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		// Unknown level - use info when explicitly set to something
		return zapcore.InfoLevel
	}
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Named returns a child of the global logger for one component
// (e.g. "monitor", "bridge"). Pass it to openwebnet.Params.Logger.
func Named(component string) *zap.Logger {
	return GetLogger().Named(component)
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// Connection events
const (
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
)

// LogConnection logs a client connection event on l.
func LogConnection(l *zap.Logger, remoteAddr string, event string) {
	if l == nil {
		return
	}
	l.Info("Connection event",
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogFrame logs one OpenWebNet frame on l, tagged with the connection mode
// and the direction ("<=" received, "=>" sent).
func LogFrame(l *zap.Logger, mode string, direction string, frame string) {
	if l == nil {
		return
	}
	l.Info(FormatFrame(mode, direction, frame),
		zap.String("mode", mode),
		zap.String("direction", direction),
		zap.String("frame", frame),
	)
}

// FormatFrame renders a frame the way LogFrame prints it: "MON <= *#*1##".
func FormatFrame(mode string, direction string, frame string) string {
	return mode + " " + direction + " " + frame
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
