// Package ui provides terminal UI components for the myhome CLI.
//
// Two kinds of output live here. One-shot commands (status, scan, set-temp,
// set-mode, send) print a Header before talking to the gateway and a Result
// box afterwards through a Printer. Failure boxes carry troubleshooting tips
// derived from the error (NACK, refused connection, stalled login).
//
// The watch command runs WatchModel, a Bubble Tea program that renders the
// zone table and the most recent monitor frames. Notifications reach the
// model through a Feed, which the client's subscriber fills without ever
// blocking the monitor connection:
//
//	feed := ui.NewFeed(256)
//	client, err := openwebnet.NewClient(ctx, openwebnet.Options{OnNotify: feed.Push})
//	...
//	err = ui.RunWatch(ctx, ui.NewWatchModel(addr, reg.ZoneName, feed))
//
// # Logging Integration
//
// This package expects logging to be controlled via the MYHOME_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, so the
// styled output and the dashboard are not interleaved with log lines.
package ui
