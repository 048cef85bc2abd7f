// Package openwebnet implements the client side of the OpenWebNet protocol
// spoken by home-automation gateways over TCP.
//
// # Frames
//
// Every message is a text frame that starts with '*' and ends with "##".
// Frames never nest and a single TCP read may carry several of them, or only
// part of one. Splitter turns the byte stream into frames and keeps any
// unterminated tail for the next read.
//
//	*#*1##    ACK
//	*#*0##    NACK
//	*99*1##   start monitor session
//	*99*9##   start command session
//	*99*0##   start config session
//	*#<n>##   login nonce
//
// # Handshake
//
// A connection moves through Unconnected, Connecting, LoggingIn and
// Connected. The gateway ACKs first; the client answers with the start frame
// for its Mode; the gateway then either ACKs again (no password) or sends a
// numeric nonce that the client answers with a token derived from the
// password. Transition is the pure state function, Conn drives it over a
// socket:
//
//	conn, err := openwebnet.Dial(ctx, params, openwebnet.HandlerFunc(
//	    func(c *openwebnet.Conn, ev openwebnet.Event) {
//	        if ev.Kind == openwebnet.EventFrame {
//	            fmt.Println(ev.Frame)
//	        }
//	    }))
//
// # Sessions
//
// Client keeps one monitor connection open for unsolicited events and opens
// a fresh command connection for each CommandRequest:
//
//	client, err := openwebnet.NewClient(ctx, openwebnet.Options{Host: "192.168.0.35"})
//	client.SendCommand(openwebnet.CommandRequest{
//	    Command: "*#4*1##",
//	    StopOn:  []string{openwebnet.ACK, openwebnet.NACK},
//	    OnFrame: func(s *openwebnet.CommandSession, frame string) { ... },
//	    OnComplete: func(frame string, index int) { ... },
//	})
//
// # Thread Safety
//
// Callbacks for one connection run on that connection's read goroutine, in
// frame order, and never overlap. Separate connections share nothing but the
// immutable Params. Send, Close and State are safe to call from any goroutine.
package openwebnet
