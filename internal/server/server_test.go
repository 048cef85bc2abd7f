package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/myhome/internal/engine"
	"github.com/muurk/myhome/internal/gatewaytest"
	"github.com/muurk/myhome/internal/openwebnet"
)

type fakeController struct {
	mu       sync.Mutex
	status   engine.ZoneStatus
	err      error
	setPoint float64
	mode     string
	frame    string
	filter   engine.ScanFilter
}

func (f *fakeController) Status(ctx context.Context, zone string) (engine.ZoneStatus, error) {
	if _, err := engine.SetTemperatureFrame(zone, engine.MinSetPoint); err != nil {
		return nil, err
	}
	return f.status, f.err
}

func (f *fakeController) SetTemperature(ctx context.Context, zone string, celsius float64) error {
	if _, err := engine.SetTemperatureFrame(zone, celsius); err != nil {
		return err
	}
	f.mu.Lock()
	f.setPoint = celsius
	f.mu.Unlock()
	return f.err
}

func (f *fakeController) SetMode(ctx context.Context, zone, mode string) error {
	if _, err := engine.ModeFrame(zone, mode); err != nil {
		return err
	}
	f.mu.Lock()
	f.mode = mode
	f.mu.Unlock()
	return f.err
}

func (f *fakeController) Scan(ctx context.Context, filter engine.ScanFilter) ([]uint64, error) {
	f.mu.Lock()
	f.filter = filter
	f.mu.Unlock()
	return []uint64{7, 9}, f.err
}

func (f *fakeController) Raw(ctx context.Context, frame string) ([]string, engine.Result, error) {
	f.mu.Lock()
	f.frame = frame
	f.mu.Unlock()
	return []string{"*1*1*11##"}, engine.ResultAck, f.err
}

type fakeNotifier struct {
	mu         sync.Mutex
	fn         func(openwebnet.Notification)
	monitoring bool
}

func (n *fakeNotifier) Monitoring() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.monitoring
}

func (n *fakeNotifier) Subscribe(fn func(openwebnet.Notification)) func() {
	n.mu.Lock()
	n.fn = fn
	n.mu.Unlock()
	return func() {
		n.mu.Lock()
		n.fn = nil
		n.mu.Unlock()
	}
}

func (n *fakeNotifier) emit(kind openwebnet.NotificationKind, frame string) {
	n.mu.Lock()
	fn := n.fn
	n.mu.Unlock()
	if fn != nil {
		fn(openwebnet.Notification{Kind: kind, Frame: frame, Time: time.Now()})
	}
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestZoneStatus(t *testing.T) {
	status := make(engine.ZoneStatus)
	status.Apply("*#4*1*0*0215##")
	ctrl := &fakeController{status: status}
	s := New(Config{}, ctrl, nil)

	rec := do(t, s, http.MethodGet, "/api/zones/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var resp zoneResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Zone != "1" || resp.Record.OperatingTemperature != "0215" || resp.Result != "ack" {
		t.Errorf("response = %+v", resp)
	}
}

func TestZoneStatus_Nack(t *testing.T) {
	ctrl := &fakeController{status: engine.ZoneStatus{}, err: engine.ErrNack}
	s := New(Config{}, ctrl, nil)

	rec := do(t, s, http.MethodGet, "/api/zones/3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"result":"nack"`) {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		method string
		path   string
		body   string
		want   int
	}{
		{"invalid zone", nil, http.MethodGet, "/api/zones/abc", "", http.StatusBadRequest},
		{"timeout", context.DeadlineExceeded, http.MethodGet, "/api/zones/1", "", http.StatusGatewayTimeout},
		{"gateway down", errors.New("connection refused"), http.MethodGet, "/api/zones/1", "", http.StatusBadGateway},
		{"nack on set", engine.ErrNack, http.MethodPut, "/api/zones/1/mode", `{"mode":"off"}`, http.StatusConflict},
		{"bad temperature", nil, http.MethodPut, "/api/zones/1/setpoint", `{"celsius":80}`, http.StatusBadRequest},
		{"unknown mode", nil, http.MethodPut, "/api/zones/1/mode", `{"mode":"turbo"}`, http.StatusBadRequest},
		{"missing celsius", nil, http.MethodPut, "/api/zones/1/setpoint", `{}`, http.StatusBadRequest},
		{"unknown field", nil, http.MethodPut, "/api/zones/1/mode", `{"mode":"off","x":1}`, http.StatusBadRequest},
		{"bad filter", nil, http.MethodGet, "/api/scan?filter=some", "", http.StatusBadRequest},
		{"bad frame", nil, http.MethodPost, "/api/frames", `{"frame":"*1*1"}`, http.StatusBadRequest},
		{"two frames", nil, http.MethodPost, "/api/frames", `{"frame":"*1*1*11##*1*0*11##"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Config{}, &fakeController{status: engine.ZoneStatus{}, err: tt.err}, nil)
			rec := do(t, s, tt.method, tt.path, tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestSetPointAndMode(t *testing.T) {
	ctrl := &fakeController{}
	s := New(Config{}, ctrl, nil)

	if rec := do(t, s, http.MethodPut, "/api/zones/2/setpoint", `{"celsius":21.5}`); rec.Code != http.StatusNoContent {
		t.Fatalf("setpoint status = %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPut, "/api/zones/2/mode", `{"mode":"auto"}`); rec.Code != http.StatusNoContent {
		t.Fatalf("mode status = %d", rec.Code)
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	if ctrl.setPoint != 21.5 || ctrl.mode != "auto" {
		t.Errorf("controller got setpoint %v mode %q", ctrl.setPoint, ctrl.mode)
	}
}

func TestScanAndRaw(t *testing.T) {
	ctrl := &fakeController{}
	s := New(Config{}, ctrl, nil)

	rec := do(t, s, http.MethodGet, "/api/scan?filter=configured", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("scan status = %d", rec.Code)
	}
	var scan scanResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &scan)
	if scan.Filter != "configured" || len(scan.Devices) != 2 {
		t.Errorf("scan = %+v", scan)
	}

	rec = do(t, s, http.MethodPost, "/api/frames", `{"frame":"*#1*11##"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("raw status = %d", rec.Code)
	}
	var raw rawResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &raw)
	if raw.Result != "ack" || len(raw.Frames) != 1 {
		t.Errorf("raw = %+v", raw)
	}
	if ctrl.frame != "*#1*11##" {
		t.Errorf("controller got frame %q", ctrl.frame)
	}
}

func TestLiveZonesAndHealth(t *testing.T) {
	n := &fakeNotifier{}
	s := New(Config{}, &fakeController{}, n)

	n.emit(openwebnet.NotifyMonitoring, "")
	n.emit(openwebnet.NotifyEvent, "*#4*5*0*0190##")
	n.emit(openwebnet.NotifyEvent, "*1*1*11##")

	rec := do(t, s, http.MethodGet, "/api/zones", "")
	var zones engine.ZoneStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &zones); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if zones["5"] == nil || zones["5"].OperatingTemperature != "0190" {
		t.Errorf("zones = %s", rec.Body)
	}

	rec = do(t, s, http.MethodGet, "/api/health", "")
	var health healthResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &health)
	if !health.Monitoring || health.LastEvent == nil {
		t.Errorf("health = %+v", health)
	}

	s.Close()
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fn != nil {
		t.Error("Close() did not cancel the subscription")
	}
}

func TestHealth_MonitorAuthenticatedBeforeNew(t *testing.T) {
	gw := gatewaytest.New(t, gatewaytest.Options{Password: "12345"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := openwebnet.NewClient(ctx, openwebnet.Options{
		Host:     gw.Host(),
		Port:     gw.Port(),
		Password: "12345",
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	defer client.Close()

	for !client.Monitoring() {
		select {
		case <-ctx.Done():
			t.Fatal("monitor never authenticated")
		case <-time.After(10 * time.Millisecond):
		}
	}

	s := New(Config{}, &fakeController{}, client)
	defer s.Close()

	rec := do(t, s, http.MethodGet, "/api/health", "")
	var health healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !health.Monitoring {
		t.Errorf("health = %s, want monitoring", rec.Body)
	}
}

func TestWebSocket_GreetsWhenMonitorAlreadyUp(t *testing.T) {
	n := &fakeNotifier{monitoring: true}
	s := New(Config{}, &fakeController{}, n)
	defer s.Close()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "monitoring" {
		t.Errorf("first message = %+v, want monitoring", msg)
	}
}

func TestMetricsRoute(t *testing.T) {
	with := New(Config{Metrics: true}, &fakeController{}, nil)
	if rec := do(t, with, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Errorf("metrics status = %d", rec.Code)
	}

	without := New(Config{}, &fakeController{}, nil)
	if rec := do(t, without, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("metrics status = %d, want 404", rec.Code)
	}
}

func TestWebSocketStream(t *testing.T) {
	n := &fakeNotifier{}
	s := New(Config{}, &fakeController{}, n)
	n.emit(openwebnet.NotifyMonitoring, "")

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	read := func() message {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}

	if msg := read(); msg.Type != "monitoring" {
		t.Fatalf("first message = %+v, want monitoring", msg)
	}

	// the client is registered once the upgrade returned and the greeting arrived
	deadline := time.Now().Add(2 * time.Second)
	for s.hub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	n.emit(openwebnet.NotifyEvent, "*#4*1*14*0200*3##")

	msg := read()
	if msg.Type != "event" || msg.Frame != "*#4*1*14*0200*3##" {
		t.Fatalf("message = %+v", msg)
	}
	if msg.Reading == nil || msg.Reading.Field != "set_point_temperature" || msg.Reading.Value != "0200" {
		t.Errorf("reading = %+v", msg.Reading)
	}
}

func TestValidFrame(t *testing.T) {
	tests := map[string]bool{
		"*#4*1##":       true,
		"*#*1##":        true,
		"":              false,
		"*4*1":          false,
		"x*4*1##":       false,
		"*1*1##*1*2##":  false,
		"*1*1##garbage": false,
	}
	for frame, want := range tests {
		if got := validFrame(frame); got != want {
			t.Errorf("validFrame(%q) = %v, want %v", frame, got, want)
		}
	}
}
