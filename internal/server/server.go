package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/engine"
	"github.com/muurk/myhome/internal/openwebnet"
)

const (
	// DefaultRequestTimeout bounds every gateway operation of a request
	DefaultRequestTimeout = 10 * time.Second

	shutdownTimeout = 5 * time.Second
)

// Controller runs gateway operations. *engine.Engine implements it.
type Controller interface {
	Status(ctx context.Context, zone string) (engine.ZoneStatus, error)
	SetTemperature(ctx context.Context, zone string, celsius float64) error
	SetMode(ctx context.Context, zone, mode string) error
	Scan(ctx context.Context, filter engine.ScanFilter) ([]uint64, error)
	Raw(ctx context.Context, frame string) ([]string, engine.Result, error)
}

// Notifier delivers monitor notifications. *openwebnet.Client implements it.
type Notifier interface {
	Subscribe(fn func(openwebnet.Notification)) (cancel func())
	Monitoring() bool
}

// Config holds the server configuration
type Config struct {
	Listen         string
	Metrics        bool
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// Server serves the HTTP API and the websocket event stream.
type Server struct {
	config   Config
	ctrl     Controller
	log      *zap.Logger
	hub      *hub
	router   chi.Router
	cancel   func()
	listener net.Listener

	mu         sync.RWMutex
	zones      engine.ZoneStatus
	monitoring bool
	lastEvent  time.Time
}

// New creates a Server. Notifications from n feed the websocket stream
// and the live zone table; n may be nil. A monitor that authenticated
// before New is reported as monitoring straight away.
func New(config Config, ctrl Controller, n Notifier) *Server {
	if config.RequestTimeout == 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	s := &Server{
		config: config,
		ctrl:   ctrl,
		log:    config.Logger,
		zones:  make(engine.ZoneStatus),
	}
	s.hub = newHub(s.log)
	s.router = s.routes()

	if n != nil {
		s.cancel = n.Subscribe(s.handleNotification)
		if n.Monitoring() {
			s.mu.Lock()
			s.monitoring = true
			s.mu.Unlock()
		}
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/api/health", s.handleHealth)
	r.Route("/api/zones", func(r chi.Router) {
		r.Get("/", s.handleZones)
		r.Get("/{zone}", s.handleZoneStatus)
		r.Put("/{zone}/setpoint", s.handleSetPoint)
		r.Put("/{zone}/mode", s.handleSetMode)
	})
	r.Get("/api/scan", s.handleScan)
	r.Post("/api/frames", s.handleRaw)
	r.Get("/ws", s.handleWebSocket)

	if s.config.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleNotification runs on the monitor connection's goroutine.
func (s *Server) handleNotification(n openwebnet.Notification) {
	msg := message{Type: n.Kind.String(), Frame: n.Frame, Time: n.Time}

	s.mu.Lock()
	switch n.Kind {
	case openwebnet.NotifyMonitoring:
		s.monitoring = true
	case openwebnet.NotifyEvent:
		s.lastEvent = n.Time
		if r, ok := s.zones.Apply(n.Frame); ok {
			msg.Reading = newReading(r)
		}
	}
	s.mu.Unlock()

	s.hub.broadcast(msg)
}

// Start listens on the configured address and serves until ctx is done,
// then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.listener = listener
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("Server listening for connections",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("metrics", s.config.Metrics),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("Shutdown requested, stopping server...")
	case err := <-errChan:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Addr returns the listening address once Serve has started.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Close stops the notification feed and disconnects websocket clients.
func (s *Server) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.hub.closeAll()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
