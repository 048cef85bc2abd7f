package openwebnet

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/logging"
	"github.com/muurk/myhome/internal/metrics"
)

const readBufferSize = 4096

// ErrNotConnected is returned by CommandSession.Send before the session's
// connection exists.
var ErrNotConnected = errors.New("not connected")

// Handler receives the events of one connection.
type Handler interface {
	HandleEvent(c *Conn, ev Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(c *Conn, ev Event)

// HandleEvent calls f(c, ev).
func (f HandlerFunc) HandleEvent(c *Conn, ev Event) {
	f(c, ev)
}

// Conn is one TCP connection to the gateway, driven through the handshake.
// It owns its socket for its whole life and never reconnects.
type Conn struct {
	params  Params
	log     *zap.Logger
	netConn net.Conn
	handler Handler
	state   atomic.Int32

	writeMu     sync.Mutex
	writeClosed bool

	closeOnce sync.Once
	done      chan struct{}
	err       error
}

// Dial connects to the gateway and starts the read loop. Events are
// delivered to h on the connection's own goroutine; h may be nil.
// ctx only bounds the TCP connect.
func Dial(ctx context.Context, p Params, h Handler) (*Conn, error) {
	p = p.WithDefaults()

	d := net.Dialer{Timeout: p.DialTimeout}
	nc, err := d.DialContext(ctx, "tcp", p.Addr())
	if err != nil {
		return nil, ClassifyError("dial", p, err)
	}

	c := newConn(p, nc, h)
	c.log.Debug("Connected to gateway", zap.String("addr", p.Addr()))
	go c.readLoop()
	return c, nil
}

func newConn(p Params, nc net.Conn, h Handler) *Conn {
	return &Conn{
		params:  p,
		log:     p.logger().With(zap.String("mode", p.Mode.String())),
		netConn: nc,
		handler: h,
		done:    make(chan struct{}),
	}
}

// Params returns the connection parameters.
func (c *Conn) Params() Params {
	return c.params
}

// State returns the current handshake state.
func (c *Conn) State() State {
	return State(c.state.Load())
}

// Send writes one frame to the gateway.
func (c *Conn) Send(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeClosed {
		return ClassifyError("write", c.params, net.ErrClosed)
	}

	if c.params.LogFrames {
		logging.LogFrame(c.log, c.params.Mode.String(), logging.DirectionOut, frame)
	}
	metrics.FramesTotal.WithLabelValues(c.params.Mode.String(), "out").Inc()

	if _, err := io.WriteString(c.netConn, frame); err != nil {
		return ClassifyError("write", c.params, err)
	}
	return nil
}

// CloseWrite half-closes the connection: nothing more is sent, but frames
// from the gateway are still received until it closes its side.
func (c *Conn) CloseWrite() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeClosed {
		return nil
	}
	c.writeClosed = true

	if hc, ok := c.netConn.(interface{ CloseWrite() error }); ok {
		return hc.CloseWrite()
	}
	return nil
}

// Close closes the socket. It is safe to call more than once and from a
// Handler; only the first call closes.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.writeClosed = true
		c.writeMu.Unlock()
		err = c.netConn.Close()
	})
	return err
}

// Done is closed when the read loop has ended and the socket is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err returns why the read loop ended. It is only meaningful after Done is
// closed; IsClosed(err) is true for an orderly close by either side.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Conn) readLoop() {
	splitter := Splitter{OnOverflow: func(dropped int) {
		c.log.Warn("Dropping unterminated frame", zap.Int("bytes", dropped), zap.Int("limit", MaxPending))
	}}
	buf := make([]byte, readBufferSize)

	var readErr error
	for {
		n, err := c.netConn.Read(buf)
		if n > 0 {
			for _, frame := range splitter.Feed(buf[:n]) {
				c.process(frame)
			}
		}
		if err != nil {
			readErr = err
			break
		}
	}

	if rest := splitter.Pending(); rest != "" {
		c.log.Debug("Discarding unterminated data", zap.String("data", rest))
	}

	c.err = ClassifyError("read", c.params, readErr)
	_ = c.Close()
	c.log.Debug("Connection ended", zap.String("state", c.State().String()), zap.Error(c.err))
	close(c.done)
}

// process runs one received frame through the handshake.
func (c *Conn) process(frame string) {
	mode := c.params.Mode.String()
	if c.params.LogFrames {
		logging.LogFrame(c.log, mode, logging.DirectionIn, frame)
	}
	metrics.FramesTotal.WithLabelValues(mode, "in").Inc()

	prev := c.State()
	step := Transition(prev, frame, c.params)
	c.state.Store(int32(step.State))

	if step.Note != "" {
		if prev == StateUnconnected {
			c.log.Debug(step.Note, zap.String("frame", frame))
		} else {
			c.log.Warn(step.Note,
				zap.String("frame", frame),
				zap.String("state", prev.String()),
			)
			metrics.MalformedFrames.WithLabelValues(mode, prev.String()).Inc()
		}
	}

	if step.State != prev {
		c.log.Debug("Handshake transition",
			zap.String("from", prev.String()),
			zap.String("to", step.State.String()),
		)
		metrics.Handshakes.WithLabelValues(mode, step.State.String()).Inc()
	}

	if c.handler != nil {
		for _, ev := range step.Events {
			c.handler.HandleEvent(c, ev)
		}
	}

	for _, out := range step.Send {
		if err := c.Send(out); err != nil {
			c.log.Warn("Failed to send handshake frame",
				zap.String("frame", out),
				zap.Error(err),
			)
		}
	}
}
