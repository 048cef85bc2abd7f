// Package server exposes a gateway over HTTP.
//
// Routes:
//
//	GET  /api/health                    liveness and monitor state
//	GET  /api/zones                     zone records decoded from monitor events
//	GET  /api/zones/{zone}              live status query of one zone
//	PUT  /api/zones/{zone}/setpoint     {"celsius": 21.5}
//	PUT  /api/zones/{zone}/mode         {"mode": "off" | "antifreeze" | "auto"}
//	GET  /api/scan?filter=configured    device scan
//	POST /api/frames                    {"frame": "*#4*1##"} raw command
//	GET  /ws                            websocket stream of monitor notifications
//	GET  /metrics                       Prometheus metrics
//
// Gateway operations go through a Controller, which *engine.Engine
// implements; monitor notifications come from a Notifier, which
// *openwebnet.Client implements. Every request gets its own timeout so a
// silent gateway cannot hold a handler forever.
//
// # Websocket messages
//
// Each monitor notification is sent as one JSON text message:
//
//	{"type":"event","frame":"*#4*1*0*0215##","time":"...","reading":{"zone":"1","field":"operating_temperature","value":"0215"}}
//
// Slow websocket clients are dropped rather than allowed to block the
// monitor connection.
package server
