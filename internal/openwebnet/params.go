package openwebnet

import (
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/openpass"
)

const (
	// DefaultHost is the gateway address used when none is configured
	DefaultHost = "192.168.0.35"

	// DefaultPort is the OpenWebNet TCP port
	DefaultPort = 20000

	// DefaultPassword is the factory OPEN password
	DefaultPassword = "12345"

	// DefaultDialTimeout bounds the TCP connect only, never a session
	DefaultDialTimeout = 10 * time.Second
)

// Params are the connection parameters of one Conn. They are copied by
// value and never modified after the connection is created.
type Params struct {
	Host     string
	Port     int
	Mode     Mode
	Password string

	// Respond computes the login token. Defaults to openpass.Calculate.
	Respond ResponseFunc

	// Logger receives advisory messages. Defaults to a nop logger.
	Logger *zap.Logger

	// LogFrames logs every frame sent and received at info level.
	LogFrames bool

	// DialTimeout bounds the TCP connect. Defaults to DefaultDialTimeout.
	DialTimeout time.Duration
}

// WithDefaults returns a copy of p with empty fields set to the defaults.
func (p Params) WithDefaults() Params {
	if p.Host == "" {
		p.Host = DefaultHost
	}
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	if p.Password == "" {
		p.Password = DefaultPassword
	}
	if p.DialTimeout == 0 {
		p.DialTimeout = DefaultDialTimeout
	}
	return p
}

// Addr returns host:port.
func (p Params) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

func (p Params) respond() ResponseFunc {
	if p.Respond != nil {
		return p.Respond
	}
	return openpass.Calculate
}

func (p Params) logger() *zap.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.NewNop()
}
