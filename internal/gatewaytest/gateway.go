// Package gatewaytest provides a loopback OpenWebNet gateway for tests.
//
// The gateway performs the real handshake (optionally with a password
// challenge), keeps monitor connections open for Broadcast, and answers
// frames on command and config connections through a Handle function.
//
//	gw := gatewaytest.New(t, gatewaytest.Options{
//	    Handle: func(mode, frame string) []string {
//	        return []string{"*#4*1*0*0215##", openwebnet.ACK}
//	    },
//	})
//	client, _ := openwebnet.NewClient(ctx, openwebnet.Options{Host: gw.Host(), Port: gw.Port()})
package gatewaytest

import (
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muurk/myhome/internal/openpass"
	"github.com/muurk/myhome/internal/openwebnet"
)

// DefaultNonce is the challenge sent when Options.Nonce is empty.
const DefaultNonce = "603356072"

// HandleFunc answers one frame received on a command or config connection.
// mode is "CMD" or "CNF". The returned frames are written in a single write.
type HandleFunc func(mode string, frame string) []string

// Options configure a Gateway.
type Options struct {
	// Password enables the nonce challenge when non-empty.
	Password string

	// Nonce overrides DefaultNonce.
	Nonce string

	// RejectLogin answers a correct token with NACK instead of ACK.
	RejectLogin bool

	// Handle answers command and config frames. A nil Handle answers ACK.
	Handle HandleFunc
}

// Gateway is a fake OpenWebNet gateway listening on 127.0.0.1.
type Gateway struct {
	opts     Options
	listener net.Listener
	wg       sync.WaitGroup

	mu       sync.Mutex
	monitors []net.Conn
	conns    []net.Conn
	received []string
	modes    []string

	monitorReady chan struct{}
	readyOnce    sync.Once
}

// New starts a gateway and registers its shutdown with t.Cleanup.
func New(t testing.TB, opts Options) *Gateway {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("gatewaytest: listen: %v", err)
	}
	if opts.Nonce == "" {
		opts.Nonce = DefaultNonce
	}

	g := &Gateway{
		opts:         opts,
		listener:     l,
		monitorReady: make(chan struct{}),
	}

	g.wg.Add(1)
	go g.acceptLoop()

	t.Cleanup(g.Close)
	return g
}

// Host returns the listening host.
func (g *Gateway) Host() string {
	return "127.0.0.1"
}

// Port returns the listening port.
func (g *Gateway) Port() int {
	return g.listener.Addr().(*net.TCPAddr).Port
}

// Close stops the listener and closes every connection.
func (g *Gateway) Close() {
	_ = g.listener.Close()

	g.mu.Lock()
	for _, c := range g.conns {
		_ = c.Close()
	}
	g.mu.Unlock()

	g.wg.Wait()
}

// Broadcast writes frame to every authenticated monitor connection.
func (g *Gateway) Broadcast(frame string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range g.monitors {
		_, _ = io.WriteString(c, frame)
	}
}

// WaitMonitor blocks until a monitor connection has been authenticated.
func (g *Gateway) WaitMonitor(timeout time.Duration) bool {
	select {
	case <-g.monitorReady:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Received returns every frame received on command and config
// connections after their handshake, in arrival order.
func (g *Gateway) Received() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.received...)
}

// Sessions returns the mode tag of every connection that completed the
// handshake, in order.
func (g *Gateway) Sessions() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.modes...)
}

func (g *Gateway) acceptLoop() {
	defer g.wg.Done()

	for {
		conn, err := g.listener.Accept()
		if err != nil {
			return
		}

		g.mu.Lock()
		g.conns = append(g.conns, conn)
		g.mu.Unlock()

		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			defer conn.Close()
			g.serve(conn)
		}()
	}
}

func (g *Gateway) serve(conn net.Conn) {
	r := &frameReader{conn: conn}

	if _, err := io.WriteString(conn, openwebnet.ACK); err != nil {
		return
	}

	start, err := r.next()
	if err != nil {
		return
	}

	var mode string
	switch start {
	case openwebnet.StartMonitorFrame:
		mode = "MON"
	case openwebnet.StartCommandFrame:
		mode = "CMD"
	case openwebnet.StartConfigFrame:
		mode = "CNF"
	default:
		_, _ = io.WriteString(conn, openwebnet.NACK)
		return
	}

	if !g.login(conn, r) {
		// stay silent like a gateway that rejected the login
		_, _ = io.Copy(io.Discard, conn)
		return
	}

	g.mu.Lock()
	g.modes = append(g.modes, mode)
	if mode == "MON" {
		g.monitors = append(g.monitors, conn)
	}
	g.mu.Unlock()

	if mode == "MON" {
		g.readyOnce.Do(func() { close(g.monitorReady) })
		_, _ = io.Copy(io.Discard, conn)
		return
	}

	for {
		frame, err := r.next()
		if err != nil {
			return
		}

		g.mu.Lock()
		g.received = append(g.received, frame)
		g.mu.Unlock()

		replies := []string{openwebnet.ACK}
		if g.opts.Handle != nil {
			replies = g.opts.Handle(mode, frame)
		}
		if len(replies) == 0 {
			continue
		}
		if _, err := io.WriteString(conn, strings.Join(replies, "")); err != nil {
			return
		}
	}
}

// login runs the password challenge. It reports whether the session was
// accepted.
func (g *Gateway) login(conn net.Conn, r *frameReader) bool {
	if g.opts.Password == "" {
		_, err := io.WriteString(conn, openwebnet.ACK)
		return err == nil
	}

	if _, err := io.WriteString(conn, "*#"+g.opts.Nonce+"##"); err != nil {
		return false
	}

	answer, err := r.next()
	if err != nil {
		return false
	}

	token, err := openpass.Calculate(g.opts.Password, g.opts.Nonce)
	if err != nil || answer != "*#"+token+"##" || g.opts.RejectLogin {
		_, _ = io.WriteString(conn, openwebnet.NACK)
		return false
	}

	_, err = io.WriteString(conn, openwebnet.ACK)
	return err == nil
}

// frameReader reads frames from a connection one at a time.
type frameReader struct {
	conn     net.Conn
	splitter openwebnet.Splitter
	queue    []string
}

func (r *frameReader) next() (string, error) {
	buf := make([]byte, 1024)
	for len(r.queue) == 0 {
		n, err := r.conn.Read(buf)
		if n > 0 {
			r.queue = append(r.queue, r.splitter.Feed(buf[:n])...)
		}
		if err != nil && len(r.queue) == 0 {
			return "", err
		}
	}

	frame := r.queue[0]
	r.queue = r.queue[1:]
	return frame, nil
}

// ScanReply builds the frame a gateway sends for one device during a
// system scan.
func ScanReply(a, b, c int, id uint64) string {
	return "*#" + strconv.Itoa(a) + "*" + strconv.Itoa(b) + "*" + strconv.Itoa(c) + "*" +
		strconv.FormatUint(id, 10) + "##"
}
