package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/openwebnet"
)

var (
	// ErrNack is returned by the blocking helpers when the gateway answered
	// the command with NACK.
	ErrNack = errors.New("gateway answered NACK")

	// ErrInvalidTemperature is returned for set points outside
	// MinSetPoint..MaxSetPoint.
	ErrInvalidTemperature = errors.New("temperature out of range")

	// ErrUnknownMode is returned for a zone mode name that has no command.
	ErrUnknownMode = errors.New("unknown zone mode")

	// ErrInvalidZone is returned for zone identifiers that are not numeric.
	ErrInvalidZone = errors.New("invalid zone")
)

// Result is the terminal answer of a command exchange.
type Result int

const (
	// ResultUnknown means the session ended without a terminal frame.
	ResultUnknown Result = iota
	// ResultAck is the gateway's ACK.
	ResultAck
	// ResultNack is the gateway's NACK.
	ResultNack
)

// String returns "ack", "nack" or "unknown".
func (r Result) String() string {
	switch r {
	case ResultAck:
		return "ack"
	case ResultNack:
		return "nack"
	default:
		return "unknown"
	}
}

// Err maps a Result to nil, ErrNack or ErrSessionClosed.
func (r Result) Err() error {
	switch r {
	case ResultAck:
		return nil
	case ResultNack:
		return ErrNack
	default:
		return openwebnet.ErrSessionClosed
	}
}

// resultOf maps a terminal frame to its Result.
func resultOf(frame string) Result {
	switch frame {
	case openwebnet.ACK:
		return ResultAck
	case openwebnet.NACK:
		return ResultNack
	default:
		return ResultUnknown
	}
}

// terminal is the stop list shared by every query and command.
var terminal = []string{openwebnet.ACK, openwebnet.NACK}

// Sender starts command sessions. *openwebnet.Client implements it.
type Sender interface {
	SendCommandContext(ctx context.Context, req openwebnet.CommandRequest) *openwebnet.CommandSession
}

// Engine runs gateway exchanges through a Sender.
type Engine struct {
	sender Sender
	log    *zap.Logger
}

// New returns an Engine. A nil logger is replaced by a nop logger.
func New(sender Sender, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{sender: sender, log: log}
}

func (e *Engine) start(ctx context.Context, req openwebnet.CommandRequest) *openwebnet.CommandSession {
	return e.sender.SendCommandContext(ctx, req)
}

// await blocks until s has ended. When ctx ends first the session is
// closed and ctx.Err() returned.
func await(ctx context.Context, s *openwebnet.CommandSession) error {
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		_ = s.Close()
		<-s.Done()
		return ctx.Err()
	}
}

// Raw sends one frame on a command connection and collects every frame
// received until ACK or NACK.
func (e *Engine) Raw(ctx context.Context, frame string) ([]string, Result, error) {
	var (
		frames []string
		result Result
		failed error
	)

	s := e.start(ctx, openwebnet.CommandRequest{
		Command: frame,
		StopOn:  terminal,
		OnFrame: func(_ *openwebnet.CommandSession, f string) {
			frames = append(frames, f)
		},
		OnComplete: func(f string, _ int) {
			result = resultOf(f)
		},
		OnError: func(err error) {
			failed = err
		},
	})

	if err := await(ctx, s); err != nil {
		return frames, ResultUnknown, err
	}
	if failed != nil {
		return frames, ResultUnknown, failed
	}
	return frames, result, nil
}
