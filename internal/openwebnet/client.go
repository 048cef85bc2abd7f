package openwebnet

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/metrics"
)

// NotificationKind identifies what a Client reports to its subscribers.
type NotificationKind int

const (
	// NotifyMonitoring is sent once the monitor connection is authenticated.
	NotifyMonitoring NotificationKind = iota
	// NotifyEvent carries one unsolicited frame from the monitor connection.
	NotifyEvent
)

// String returns a human-readable notification name
func (k NotificationKind) String() string {
	if k == NotifyMonitoring {
		return "monitoring"
	}
	return "event"
}

// Notification is delivered to Client subscribers.
type Notification struct {
	Kind  NotificationKind
	Frame string
	Time  time.Time
}

// Options configure a Client. Empty fields take the package defaults.
type Options struct {
	Host        string
	Port        int
	Password    string
	Respond     ResponseFunc
	Logger      *zap.Logger
	LogFrames   bool
	DialTimeout time.Duration

	// OnNotify, if set, is subscribed before the monitor connection is
	// dialed so it cannot miss NotifyMonitoring.
	OnNotify func(Notification)
}

// Client multiplexes gateway sessions: one persistent monitor connection
// for unsolicited events, plus one short-lived connection per command.
type Client struct {
	params  Params
	log     *zap.Logger
	monitor *Conn

	mu     sync.RWMutex
	subs   map[int]func(Notification)
	nextID int
}

// NewClient dials the monitor connection and returns once the TCP connect
// succeeded; authentication continues in the background and is reported
// as NotifyMonitoring.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	params := Params{
		Host:        opts.Host,
		Port:        opts.Port,
		Password:    opts.Password,
		Respond:     opts.Respond,
		Logger:      opts.Logger,
		LogFrames:   opts.LogFrames,
		DialTimeout: opts.DialTimeout,
	}.WithDefaults()

	c := &Client{
		params: params,
		log:    params.logger(),
		subs:   make(map[int]func(Notification)),
	}
	if opts.OnNotify != nil {
		c.Subscribe(opts.OnNotify)
	}

	mp := params
	mp.Mode = ModeMonitor
	monitor, err := Dial(ctx, mp, HandlerFunc(c.handleMonitor))
	if err != nil {
		return nil, err
	}
	c.monitor = monitor

	go func() {
		<-monitor.Done()
		metrics.MonitorConnected.Set(0)
		c.log.Info("Monitor connection ended", zap.Error(monitor.Err()))
	}()

	return c, nil
}

func (c *Client) handleMonitor(_ *Conn, ev Event) {
	switch ev.Kind {
	case EventConnected:
		metrics.MonitorConnected.Set(1)
		c.log.Info("Monitoring started", zap.String("addr", c.params.Addr()))
		c.notify(Notification{Kind: NotifyMonitoring, Time: time.Now()})
	case EventFrame:
		c.notify(Notification{Kind: NotifyEvent, Frame: ev.Frame, Time: time.Now()})
	}
}

func (c *Client) notify(n Notification) {
	c.mu.RLock()
	subs := make([]func(Notification), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.RUnlock()

	for _, fn := range subs {
		fn(n)
	}
}

// Subscribe registers fn for monitor notifications and returns a function
// that removes it. fn runs on the monitor connection's goroutine and must
// not block.
func (c *Client) Subscribe(fn func(Notification)) (cancel func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Params returns the shared connection parameters (Mode is meaningless).
func (c *Client) Params() Params {
	return c.params
}

// Monitor returns the monitor connection.
func (c *Client) Monitor() *Conn {
	return c.monitor
}

// Monitoring reports whether the monitor connection is authenticated.
func (c *Client) Monitoring() bool {
	return c.monitor != nil && c.monitor.State() == StateConnected
}

// SendCommand starts req on a new connection and returns immediately.
// The outcome is reported through the request callbacks.
func (c *Client) SendCommand(req CommandRequest) *CommandSession {
	return c.SendCommandContext(context.Background(), req)
}

// SendCommandContext is SendCommand with ctx bounding the TCP connect.
// Cancelling ctx later has no effect on the session; use Close.
func (c *Client) SendCommandContext(ctx context.Context, req CommandRequest) *CommandSession {
	s := newCommandSession(c.params, req)
	go s.run(ctx)
	return s
}

// Close closes the monitor connection. Command sessions in flight are not
// affected.
func (c *Client) Close() error {
	if c.monitor == nil {
		return nil
	}
	return c.monitor.Close()
}

// Done is closed when the monitor connection has ended.
func (c *Client) Done() <-chan struct{} {
	return c.monitor.Done()
}
