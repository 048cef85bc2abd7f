// Package engine implements the thermoregulation and discovery exchanges
// of an OpenWebNet gateway on top of openwebnet command sessions.
//
// Every operation comes in two forms. The callback form (GetStatus,
// ScanSystem, SetTemperatureAsync, ...) returns the running session at
// once and reports through a callback on the session's goroutine. The
// blocking form (Status, Scan, SetTemperature, Raw, ...) takes a context,
// waits for the outcome and closes the session when the context ends.
//
// Decoding is pattern based: ZoneStatus.Apply matches a frame against the
// five zone patterns and updates exactly one field of one zone record.
// The same decoder serves status queries and monitor events.
package engine
