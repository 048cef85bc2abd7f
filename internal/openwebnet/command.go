package openwebnet

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/metrics"
)

// CommandRequest describes one request/response exchange on its own
// connection.
type CommandRequest struct {
	// Command is sent once the connection is authenticated. It may be empty
	// when OnFrame drives the exchange itself.
	Command string

	// Mode of the connection. The zero value is ModeCommand.
	Mode Mode

	// StopOn lists terminal frames. A received frame equal to StopOn[i]
	// ends the session and OnComplete gets index i. A single entry is the
	// scalar form and always yields index 0.
	StopOn []string

	// StopWhen, if set, replaces StopOn with an arbitrary predicate.
	StopWhen func(frame string) (index int, stop bool)

	// OnFrame receives every post-authentication frame that did not stop
	// the session. With no stop condition the session stays open until the
	// caller closes it.
	OnFrame func(s *CommandSession, frame string)

	// OnComplete is called once, after the connection is closed, with the
	// frame that matched the stop condition and its index.
	OnComplete func(frame string, index int)

	// OnError is called once if the connection fails or the gateway closes
	// it before the stop condition matched. It is not called after Close.
	OnError func(err error)
}

func (r *CommandRequest) hasStop() bool {
	return r.StopWhen != nil || len(r.StopOn) > 0
}

func (r *CommandRequest) match(frame string) (int, bool) {
	if r.StopWhen != nil {
		return r.StopWhen(frame)
	}
	for i, stop := range r.StopOn {
		if stop == frame {
			return i, true
		}
	}
	return -1, false
}

// CommandSession is the live side of a CommandRequest.
type CommandSession struct {
	req    CommandRequest
	params Params
	log    *zap.Logger

	mu       sync.Mutex
	conn     *Conn
	closed   bool // closed by the caller
	finished bool // OnComplete or OnError reported

	done chan struct{}
}

func newCommandSession(p Params, req CommandRequest) *CommandSession {
	p.Mode = req.Mode
	return &CommandSession{
		req:    req,
		params: p,
		log:    p.logger().With(zap.String("command", req.Command)),
		done:   make(chan struct{}),
	}
}

// run dials and supervises the session until its socket is closed.
func (s *CommandSession) run(ctx context.Context) {
	metrics.CommandSessionsActive.Inc()
	defer metrics.CommandSessionsActive.Dec()
	defer close(s.done)

	conn, err := Dial(ctx, s.params, HandlerFunc(s.handle))
	if err != nil {
		s.log.Warn("Command connection failed", zap.Error(err))
		s.fail(err)
		return
	}
	s.bind(conn)

	<-conn.Done()

	s.mu.Lock()
	report := !s.finished && !s.closed
	closed := s.closed
	s.mu.Unlock()

	switch {
	case report:
		err := conn.Err()
		if err == nil {
			err = ErrSessionClosed
		}
		s.log.Warn("Command connection ended before completion", zap.Error(err))
		s.fail(err)
	case closed:
		metrics.CommandResults.WithLabelValues("closed").Inc()
	}
}

// bind records the connection and closes it straight away if the caller
// closed the session while it was being dialed.
func (s *CommandSession) bind(c *Conn) {
	s.mu.Lock()
	if s.conn == nil {
		s.conn = c
	}
	closed := s.closed
	s.mu.Unlock()

	if closed {
		_ = c.Close()
	}
}

func (s *CommandSession) handle(c *Conn, ev Event) {
	s.bind(c)

	switch ev.Kind {
	case EventConnected:
		if s.req.Command == "" {
			return
		}
		if err := c.Send(s.req.Command); err != nil {
			s.log.Warn("Failed to send command", zap.Error(err))
		}

	case EventFrame:
		s.mu.Lock()
		ignore := s.finished || s.closed
		s.mu.Unlock()
		if ignore {
			s.log.Debug("Ignoring frame after session end", zap.String("frame", ev.Frame))
			return
		}

		if s.req.hasStop() {
			if index, ok := s.req.match(ev.Frame); ok {
				s.complete(c, ev.Frame, index)
				return
			}
		}
		if s.req.OnFrame != nil {
			s.req.OnFrame(s, ev.Frame)
		}
	}
}

func (s *CommandSession) complete(c *Conn, frame string, index int) {
	s.mu.Lock()
	if s.finished || s.closed {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.mu.Unlock()

	_ = c.Close()
	metrics.CommandResults.WithLabelValues("complete").Inc()

	if s.req.OnComplete != nil {
		s.req.OnComplete(frame, index)
	}
}

func (s *CommandSession) fail(err error) {
	s.mu.Lock()
	if s.finished || s.closed {
		s.mu.Unlock()
		return
	}
	s.finished = true
	s.mu.Unlock()

	metrics.CommandResults.WithLabelValues("error").Inc()
	if s.req.OnError != nil {
		s.req.OnError(err)
	}
}

// Send writes an extra frame on the session's connection. It is meant for
// multi-step exchanges driven from OnFrame.
func (s *CommandSession) Send(frame string) error {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()

	if c == nil {
		return ErrNotConnected
	}
	return c.Send(frame)
}

// Close ends the session and closes its socket. It may be called from
// OnFrame, from any goroutine, or before the connection was established.
// Neither OnComplete nor OnError fire after Close.
func (s *CommandSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	c := s.conn
	s.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.Close()
}

// Done is closed once the session's socket is closed and its outcome, if
// any, has been reported.
func (s *CommandSession) Done() <-chan struct{} {
	return s.done
}

// Mode returns the mode of the session's connection.
func (s *CommandSession) Mode() Mode {
	return s.params.Mode
}
