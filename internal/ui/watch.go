package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/myhome/internal/engine"
	"github.com/muurk/myhome/internal/openwebnet"
)

// DefaultEventLines is how many monitor frames the dashboard keeps on a
// small terminal.
const DefaultEventLines = 12

// rows taken by the header, the zone table and the help line
const watchChromeRows = 20

// NotificationMsg carries one monitor notification into the dashboard.
type NotificationMsg openwebnet.Notification

// MonitorClosedMsg is sent once the feed is closed.
type MonitorClosedMsg struct{}

// Feed hands monitor notifications from the client goroutine to the
// dashboard without blocking the monitor connection. Notifications that
// arrive while the buffer is full are dropped and counted.
type Feed struct {
	mu      sync.Mutex
	ch      chan openwebnet.Notification
	closed  bool
	dropped int
}

// NewFeed creates a feed buffering up to size notifications.
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 64
	}
	return &Feed{ch: make(chan openwebnet.Notification, size)}
}

// Push queues n. It never blocks.
func (f *Feed) Push(n openwebnet.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- n:
	default:
		f.dropped++
	}
}

// Close ends the feed; the dashboard receives MonitorClosedMsg after the
// queued notifications.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}

// Dropped returns the number of notifications lost to a full buffer.
func (f *Feed) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Next returns a command that waits for the next notification.
func (f *Feed) Next() tea.Cmd {
	if f == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-f.ch
		if !ok {
			return MonitorClosedMsg{}
		}
		return NotificationMsg(n)
	}
}

type eventLine struct {
	at    time.Time
	frame string
	text  string
}

// WatchModel is the bubbletea model behind `myhome watch`: a zone table
// built from monitor frames and a log of the most recent frames.
type WatchModel struct {
	Gateway string
	Names   ZoneNamer

	feed       *Feed
	spinner    spinner.Model
	status     engine.ZoneStatus
	events     []eventLine
	maxEvents  int
	frames     int
	monitoring bool
	closed     bool
	width      int
}

// NewWatchModel creates a dashboard reading from feed.
func NewWatchModel(gateway string, names ZoneNamer, feed *Feed) WatchModel {
	width, height := GetTerminalSize()
	return WatchModel{
		Gateway:   gateway,
		Names:     names,
		feed:      feed,
		spinner:   spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(StatusPendingStyle)),
		status:    engine.ZoneStatus{},
		maxEvents: eventLines(height),
		width:     width,
	}
}

// eventLines is the size of the event log for a terminal height: whatever
// the header and zone table leave free, but at least DefaultEventLines.
func eventLines(height int) int {
	if n := height - watchChromeRows; n > DefaultEventLines {
		return n
	}
	return DefaultEventLines
}

// Status returns a copy of the zone status collected so far.
func (m WatchModel) Status() engine.ZoneStatus {
	return m.status.Clone()
}

// Monitoring reports whether the monitor connection is authenticated.
func (m WatchModel) Monitoring() bool {
	return m.monitoring
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.feed.Next())
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "c":
			m.events = nil
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.maxEvents = eventLines(msg.Height)
		if len(m.events) > m.maxEvents {
			m.events = m.events[len(m.events)-m.maxEvents:]
		}
		return m, nil

	case spinner.TickMsg:
		if m.monitoring || m.closed {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case NotificationMsg:
		switch msg.Kind {
		case openwebnet.NotifyMonitoring:
			m.monitoring = true
		case openwebnet.NotifyEvent:
			m.record(msg.Frame, msg.Time)
		}
		return m, m.feed.Next()

	case MonitorClosedMsg:
		m.closed = true
		m.monitoring = false
		return m, nil
	}
	return m, nil
}

func (m *WatchModel) record(frame string, at time.Time) {
	m.frames++
	// status is shared with earlier copies of the model; copy on write.
	m.status = m.status.Clone()
	text := ""
	if r, ok := m.status.Apply(frame); ok {
		text = DescribeReading(r, m.Names)
	}
	m.events = append(m.events, eventLine{at: at, frame: frame, text: text})
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	var state string
	switch {
	case m.closed:
		state = ErrorTitleStyle.Render(FailureMarker + " monitor connection closed")
	case m.monitoring:
		state = StatusOnlineStyle.Render(OnlineMarker + " monitoring")
	default:
		state = m.spinner.View() + StatusPendingStyle.Render(" connecting")
	}
	header := NewHeader("MyHome Watch", "myhome watch",
		Param{Key: "Gateway", Value: m.Gateway},
		Param{Key: "Status", Value: state},
		Param{Key: "Frames", Value: fmt.Sprintf("%d", m.frames)},
	).SetWidth(m.width)
	b.WriteString(header.Render())
	b.WriteString("\n")

	b.WriteString(PanelStyle(m.width).Render(RenderZoneTable(m.status, m.Names)))
	b.WriteString("\n")

	var lines []string
	if len(m.events) == 0 {
		lines = append(lines, HelpStyle.Render("waiting for events"))
	}
	for _, e := range m.events {
		line := EventTimeStyle.Render(e.at.Format("15:04:05")) + " " + EventFrameStyle.Render(e.frame)
		if e.text != "" {
			line += "  " + HelpStyle.Render(e.text)
		}
		lines = append(lines, line)
	}
	b.WriteString(PanelStyle(m.width).Render(strings.Join(lines, "\n")))
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("  q quit • c clear events"))
	b.WriteString("\n")
	return b.String()
}

// RunWatch runs the dashboard until the user quits or ctx ends.
func RunWatch(ctx context.Context, m WatchModel) error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
