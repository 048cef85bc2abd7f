package openwebnet_test

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muurk/myhome/internal/gatewaytest"
	"github.com/muurk/myhome/internal/openwebnet"
)

const testTimeout = 5 * time.Second

func newClient(t *testing.T, gw *gatewaytest.Gateway, password string, onNotify func(openwebnet.Notification)) *openwebnet.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	client, err := openwebnet.NewClient(ctx, openwebnet.Options{
		Host:     gw.Host(),
		Port:     gw.Port(),
		Password: password,
		OnNotify: onNotify,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for session")
	}
}

func TestDial_HandshakeWithPassword(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{Password: "12345"})

	var mu sync.Mutex
	var got []openwebnet.EventKind
	connected := make(chan struct{})

	conn, err := openwebnet.Dial(context.Background(), openwebnet.Params{
		Host:     gw.Host(),
		Port:     gw.Port(),
		Mode:     openwebnet.ModeCommand,
		Password: "12345",
	}, openwebnet.HandlerFunc(func(c *openwebnet.Conn, ev openwebnet.Event) {
		mu.Lock()
		got = append(got, ev.Kind)
		mu.Unlock()
		if ev.Kind == openwebnet.EventConnected {
			close(connected)
		}
	}))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	waitDone(t, connected)

	mu.Lock()
	defer mu.Unlock()
	want := []openwebnet.EventKind{openwebnet.EventConnecting, openwebnet.EventLoggingIn, openwebnet.EventConnected}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if conn.State() != openwebnet.StateConnected {
		t.Errorf("State() = %v, want connected", conn.State())
	}
}

func TestDial_WrongPasswordStalls(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{Password: "12345"})

	conn, err := openwebnet.Dial(context.Background(), openwebnet.Params{
		Host:     gw.Host(),
		Port:     gw.Port(),
		Password: "54321",
	}, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(testTimeout)
	for conn.State() != openwebnet.StateLoginStalled {
		if time.Now().After(deadline) {
			t.Fatalf("State() = %v, want login_stalled", conn.State())
		}
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-conn.Done():
		t.Error("a stalled login must not close the connection")
	default:
	}
}

func TestDial_Refused(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{})
	port := gw.Port()
	gw.Close()

	_, err := openwebnet.Dial(context.Background(), openwebnet.Params{Host: "127.0.0.1", Port: port}, nil)
	if err == nil {
		t.Fatal("Dial() to a closed port should fail")
	}
	if _, ok := err.(*openwebnet.Error); !ok {
		t.Errorf("Dial() error type = %T, want *openwebnet.Error", err)
	}
}

func TestClient_MonitorEvents(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{})

	monitoring := make(chan struct{})
	events := make(chan string, 8)
	client := newClient(t, gw, "", func(n openwebnet.Notification) {
		switch n.Kind {
		case openwebnet.NotifyMonitoring:
			close(monitoring)
		case openwebnet.NotifyEvent:
			events <- n.Frame
		}
	})

	waitDone(t, monitoring)
	if !client.Monitoring() {
		t.Error("Monitoring() = false after NotifyMonitoring")
	}
	if !gw.WaitMonitor(testTimeout) {
		t.Fatal("gateway never saw the monitor session")
	}

	gw.Broadcast("*4*1*1##*#4*1*0*0215##")

	for _, want := range []string{"*4*1*1##", "*#4*1*0*0215##"} {
		select {
		case got := <-events:
			if got != want {
				t.Errorf("event = %q, want %q", got, want)
			}
		case <-time.After(testTimeout):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
}

func TestClient_SubscribeCancel(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{})

	monitoring := make(chan struct{})
	client := newClient(t, gw, "", func(n openwebnet.Notification) {
		if n.Kind == openwebnet.NotifyMonitoring {
			close(monitoring)
		}
	})
	waitDone(t, monitoring)
	gw.WaitMonitor(testTimeout)

	var mu sync.Mutex
	count := 0
	cancel := client.Subscribe(func(openwebnet.Notification) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	cancel()

	// a second subscriber proves delivery still happens
	seen := make(chan struct{}, 1)
	client.Subscribe(func(openwebnet.Notification) { seen <- struct{}{} })

	gw.Broadcast("*1*1*11##")
	waitDone(t, seen)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("cancelled subscriber got %d notifications", count)
	}
}

func TestClient_SendCommandStopList(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{
		Password: "12345",
		Handle: func(mode, frame string) []string {
			return []string{"*#4*1*0*0215##", "*#4*1*14*0200*3##", openwebnet.NACK}
		},
	})
	client := newClient(t, gw, "12345", nil)

	var frames []string
	var gotFrame string
	gotIndex := -1

	session := client.SendCommand(openwebnet.CommandRequest{
		Command: "*#4*1##",
		StopOn:  []string{openwebnet.ACK, openwebnet.NACK},
		OnFrame: func(s *openwebnet.CommandSession, frame string) {
			frames = append(frames, frame)
		},
		OnComplete: func(frame string, index int) {
			gotFrame = frame
			gotIndex = index
		},
	})
	waitDone(t, session.Done())

	if gotIndex != 1 || gotFrame != openwebnet.NACK {
		t.Errorf("OnComplete(%q, %d), want (NACK, 1)", gotFrame, gotIndex)
	}
	if len(frames) != 2 {
		t.Errorf("OnFrame saw %q, want two status frames", frames)
	}
	if got := gw.Received(); len(got) != 1 || got[0] != "*#4*1##" {
		t.Errorf("gateway received %q", got)
	}
}

func TestClient_SendCommandScalarStop(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{
		Handle: func(mode, frame string) []string {
			return []string{"*1*1*11##", "*1*0*11##"}
		},
	})
	client := newClient(t, gw, "", nil)

	gotIndex := -1
	session := client.SendCommand(openwebnet.CommandRequest{
		Command:    "*1*0*11##",
		StopOn:     []string{"*1*0*11##"},
		OnComplete: func(frame string, index int) { gotIndex = index },
	})
	waitDone(t, session.Done())

	if gotIndex != 0 {
		t.Errorf("index = %d, want 0", gotIndex)
	}
}

func TestClient_SendCommandPredicate(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{
		Handle: func(mode, frame string) []string {
			return []string{"*#13**16*1*2*3##"}
		},
	})
	client := newClient(t, gw, "", nil)

	var got string
	session := client.SendCommand(openwebnet.CommandRequest{
		Command: "*#13**16##",
		StopWhen: func(frame string) (int, bool) {
			return 7, strings.HasPrefix(frame, "*#13**16*")
		},
		OnComplete: func(frame string, index int) {
			if index == 7 {
				got = frame
			}
		},
	})
	waitDone(t, session.Done())

	if got != "*#13**16*1*2*3##" {
		t.Errorf("completed with %q", got)
	}
}

func TestClient_DuplicateStopFramesCompleteOnce(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{
		Handle: func(mode, frame string) []string {
			return []string{openwebnet.ACK, openwebnet.ACK, openwebnet.NACK}
		},
	})
	client := newClient(t, gw, "", nil)

	var mu sync.Mutex
	completions := 0
	session := client.SendCommand(openwebnet.CommandRequest{
		Command: "*4*303*1##",
		StopOn:  []string{openwebnet.ACK, openwebnet.NACK},
		OnComplete: func(string, int) {
			mu.Lock()
			completions++
			mu.Unlock()
		},
		OnError: func(err error) { t.Errorf("unexpected OnError(%v)", err) },
	})
	waitDone(t, session.Done())

	mu.Lock()
	defer mu.Unlock()
	if completions != 1 {
		t.Errorf("OnComplete called %d times, want 1", completions)
	}
}

func TestClient_ConcurrentSessionsAreIsolated(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{
		Handle: func(mode, frame string) []string {
			switch frame {
			case "*#4*1##":
				return []string{"*#4*1*0*0201##", "*#4*1*13*00##", openwebnet.ACK}
			case "*#4*2##":
				return []string{"*#4*2*0*0187##", openwebnet.NACK}
			}
			return []string{openwebnet.NACK}
		},
	})
	client := newClient(t, gw, "", nil)

	type result struct {
		frames []string
		index  int
	}
	run := func(cmd string, out *result) *openwebnet.CommandSession {
		return client.SendCommand(openwebnet.CommandRequest{
			Command:    cmd,
			StopOn:     []string{openwebnet.ACK, openwebnet.NACK},
			OnFrame:    func(_ *openwebnet.CommandSession, f string) { out.frames = append(out.frames, f) },
			OnComplete: func(_ string, i int) { out.index = i },
		})
	}

	var a, b result
	sa := run("*#4*1##", &a)
	sb := run("*#4*2##", &b)
	waitDone(t, sa.Done())
	waitDone(t, sb.Done())

	for _, f := range a.frames {
		if !strings.HasPrefix(f, "*#4*1*") {
			t.Errorf("session A saw foreign frame %q", f)
		}
	}
	for _, f := range b.frames {
		if !strings.HasPrefix(f, "*#4*2*") {
			t.Errorf("session B saw foreign frame %q", f)
		}
	}
	if len(a.frames) != 2 || a.index != 0 {
		t.Errorf("session A = %+v", a)
	}
	if len(b.frames) != 1 || b.index != 1 {
		t.Errorf("session B = %+v", b)
	}
}

func TestClient_NoStopConditionCallerCloses(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{
		Handle: func(mode, frame string) []string {
			if frame == "*1001*12*0##" {
				return []string{openwebnet.ACK}
			}
			return []string{"*#1001*1*2*5##", openwebnet.ACK}
		},
	})
	client := newClient(t, gw, "", nil)

	var frames []string
	session := client.SendCommand(openwebnet.CommandRequest{
		Command: "*1001*12*0##",
		Mode:    openwebnet.ModeConfig,
		OnFrame: func(s *openwebnet.CommandSession, frame string) {
			frames = append(frames, frame)
			switch len(frames) {
			case 1:
				if err := s.Send("*#1001*0*13##"); err != nil {
					t.Errorf("Send() error = %v", err)
				}
			case 3:
				_ = s.Close()
			}
		},
		OnComplete: func(string, int) { t.Error("OnComplete without stop condition") },
		OnError:    func(err error) { t.Errorf("OnError after Close: %v", err) },
	})
	waitDone(t, session.Done())

	if len(frames) != 3 {
		t.Errorf("frames = %q, want 3", frames)
	}
	if session.Mode() != openwebnet.ModeConfig {
		t.Errorf("Mode() = %v", session.Mode())
	}
	if !slices.Contains(gw.Sessions(), "CNF") {
		t.Errorf("gateway sessions = %q, want a CNF session", gw.Sessions())
	}
}

func TestClient_SessionReportsPrematureClose(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{
		Handle: func(mode, frame string) []string { return nil },
	})
	client := newClient(t, gw, "", nil)

	errs := make(chan error, 1)
	session := client.SendCommand(openwebnet.CommandRequest{
		Command: "*#4*1##",
		StopOn:  []string{openwebnet.ACK},
		OnError: func(err error) { errs <- err },
	})

	// wait until the gateway has the command, then drop everything
	deadline := time.Now().Add(testTimeout)
	for len(gw.Received()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("command never reached the gateway")
		}
		time.Sleep(10 * time.Millisecond)
	}
	gw.Close()

	waitDone(t, session.Done())
	select {
	case err := <-errs:
		if !openwebnet.IsClosed(err) {
			t.Errorf("OnError(%v), want a closed error", err)
		}
	default:
		t.Error("OnError was not called")
	}
}

func TestClient_DialFailureReportsError(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{})
	client := newClient(t, gw, "", nil)

	params := client.Params()
	if params.Host != gw.Host() || params.Port != gw.Port() {
		t.Errorf("Params() = %+v", params)
	}

	gw.Close()

	errs := make(chan error, 1)
	session := client.SendCommand(openwebnet.CommandRequest{
		Command: "*#4*1##",
		StopOn:  []string{openwebnet.ACK},
		OnError: func(err error) { errs <- err },
	})
	waitDone(t, session.Done())

	select {
	case err := <-errs:
		if err == nil {
			t.Error("OnError(nil)")
		}
	default:
		t.Error("OnError was not called for a failed dial")
	}
}

func TestCommandSession_CloseBeforeConnected(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{})
	client := newClient(t, gw, "", nil)

	session := client.SendCommand(openwebnet.CommandRequest{
		Command:    "*#4*1##",
		StopOn:     []string{openwebnet.ACK},
		OnComplete: func(string, int) {},
	})
	if err := session.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := session.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	waitDone(t, session.Done())
}
