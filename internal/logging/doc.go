// Package logging provides structured logging for the myhome tools.
//
// This package wraps a zap logger with convenience functions used by the
// command line tools and the HTTP/MQTT bridges. The OpenWebNet engine itself
// never reaches for the global logger: it receives a *zap.Logger through its
// parameters, and Named returns a child logger suitable for that.
//
// # Log Levels
//
//   - Debug: frame level traffic, handshake transitions
//   - Info: connections, sessions, bridge activity
//   - Warn: malformed or unexpected frames
//   - Error: transport failures, startup failures
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When no level is given, MYHOME_LOG_LEVEL is consulted. When that is also
// empty the package stays silent (nop logger).
//
// # Frame Logging
//
// LogFrame renders one line per frame, tagged with the connection mode and
// direction, e.g. "MON <= *#*1##" for a frame received on the monitor
// connection and "CMD => *#4*1##" for a frame sent on a command connection.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
