package engine

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/openwebnet"
)

const (
	// MinSetPoint is the lowest accepted set point in degrees Celsius.
	MinSetPoint = 5.0
	// MaxSetPoint is the highest accepted set point in degrees Celsius.
	MaxSetPoint = 40.0
)

// Zone mode names accepted by ModeFrame.
const (
	ModeOff        = "off"
	ModeAntifreeze = "antifreeze"
	ModeAuto       = "auto"
)

// Modes lists the settable zone modes.
var Modes = []string{ModeOff, ModeAntifreeze, ModeAuto}

// SetTemperatureFrame builds the manual set point command for zone. The
// value is sent in tenths of a degree as four digits.
func SetTemperatureFrame(zone string, celsius float64) (string, error) {
	if err := checkZone(zone); err != nil {
		return "", err
	}
	if math.IsNaN(celsius) || celsius < MinSetPoint || celsius > MaxSetPoint {
		return "", fmt.Errorf("%w: %.1f not in %.1f..%.1f", ErrInvalidTemperature, celsius, MinSetPoint, MaxSetPoint)
	}
	tenths := int(math.Round(celsius * 10))
	return fmt.Sprintf("*#4*%s*#14*%04d*1##", zone, tenths), nil
}

// ModeFrame builds the command switching zone to mode.
func ModeFrame(zone, mode string) (string, error) {
	if err := checkZone(zone); err != nil {
		return "", err
	}
	switch strings.ToLower(mode) {
	case ModeOff:
		return "*4*303*" + zone + "##", nil
	case ModeAntifreeze:
		return "*4*102*" + zone + "##", nil
	case ModeAuto:
		return "*4*311*#" + zone + "##", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// command runs a single frame with the terminal stop list and reports
// only the Result.
func (e *Engine) command(ctx context.Context, frame string, cb func(Result, error)) *openwebnet.CommandSession {
	log := e.log.With(zap.String("command", frame))
	return e.start(ctx, openwebnet.CommandRequest{
		Command: frame,
		StopOn:  terminal,
		OnFrame: func(_ *openwebnet.CommandSession, f string) {
			log.Debug("Ignoring reply frame", zap.String("frame", f))
		},
		OnComplete: func(f string, _ int) {
			r := resultOf(f)
			log.Debug("Command finished", zap.Stringer("result", r))
			if cb != nil {
				cb(r, nil)
			}
		},
		OnError: func(err error) {
			if cb != nil {
				cb(ResultUnknown, err)
			}
		},
	})
}

// runCommand is the blocking form of command. NACK is returned as ErrNack.
func (e *Engine) runCommand(ctx context.Context, frame string) error {
	var failed error = openwebnet.ErrSessionClosed
	s := e.command(ctx, frame, func(r Result, err error) {
		if err == nil {
			err = r.Err()
		}
		failed = err
	})
	if err := await(ctx, s); err != nil {
		return err
	}
	return failed
}

// SetTemperatureAsync sets the manual set point of zone.
func (e *Engine) SetTemperatureAsync(zone string, celsius float64, cb func(Result, error)) (*openwebnet.CommandSession, error) {
	frame, err := SetTemperatureFrame(zone, celsius)
	if err != nil {
		return nil, err
	}
	return e.command(context.Background(), frame, cb), nil
}

// SetModeOffAsync switches zone off.
func (e *Engine) SetModeOffAsync(zone string, cb func(Result, error)) (*openwebnet.CommandSession, error) {
	return e.setModeAsync(zone, ModeOff, cb)
}

// SetModeAntifreezeAsync switches zone to antifreeze.
func (e *Engine) SetModeAntifreezeAsync(zone string, cb func(Result, error)) (*openwebnet.CommandSession, error) {
	return e.setModeAsync(zone, ModeAntifreeze, cb)
}

// SetModeAutoAsync switches zone to its automatic program.
func (e *Engine) SetModeAutoAsync(zone string, cb func(Result, error)) (*openwebnet.CommandSession, error) {
	return e.setModeAsync(zone, ModeAuto, cb)
}

func (e *Engine) setModeAsync(zone, mode string, cb func(Result, error)) (*openwebnet.CommandSession, error) {
	frame, err := ModeFrame(zone, mode)
	if err != nil {
		return nil, err
	}
	return e.command(context.Background(), frame, cb), nil
}

// SetTemperature sets the manual set point of zone and waits for the
// gateway's answer.
func (e *Engine) SetTemperature(ctx context.Context, zone string, celsius float64) error {
	frame, err := SetTemperatureFrame(zone, celsius)
	if err != nil {
		return err
	}
	return e.runCommand(ctx, frame)
}

// SetMode switches zone to one of Modes and waits for the gateway's answer.
func (e *Engine) SetMode(ctx context.Context, zone, mode string) error {
	frame, err := ModeFrame(zone, mode)
	if err != nil {
		return err
	}
	return e.runCommand(ctx, frame)
}
