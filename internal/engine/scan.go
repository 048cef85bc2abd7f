package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/metrics"
	"github.com/muurk/myhome/internal/openwebnet"
)

// PrimeScanFrame is sent on the config connection before any scan.
const PrimeScanFrame = "*1001*12*0##"

// ScanFilter selects which devices a scan reports.
type ScanFilter int

const (
	ScanAll ScanFilter = iota
	ScanUnconfigured
	ScanConfigured
)

// String returns "all", "unconfigured" or "configured".
func (f ScanFilter) String() string {
	switch f {
	case ScanUnconfigured:
		return "unconfigured"
	case ScanConfigured:
		return "configured"
	default:
		return "all"
	}
}

// Frame returns the scan start frame for the filter.
func (f ScanFilter) Frame() string {
	switch f {
	case ScanUnconfigured:
		return "*#1001*0*13#0##"
	case ScanConfigured:
		return "*#1001*0*13#1##"
	default:
		return "*#1001*0*13##"
	}
}

// ParseScanFilter parses the String form of a ScanFilter.
func ParseScanFilter(s string) (ScanFilter, error) {
	switch s {
	case "", "all":
		return ScanAll, nil
	case "unconfigured":
		return ScanUnconfigured, nil
	case "configured":
		return ScanConfigured, nil
	}
	return ScanAll, fmt.Errorf("unknown scan filter %q", s)
}

var scanReply = regexp.MustCompile(`^\*#(\d+)\*(\d+)\*(\d+)\*(\d+)##$`)

type scanState int

const (
	scanInit scanState = iota
	scanReceiving
)

// scanner is the two-state exchange run inside one config session.
type scanner struct {
	filter ScanFilter
	log    *zap.Logger
	state  scanState
	ids    []uint64
	done   func(ids []uint64)
}

// handle processes one frame. It closes s when the final ACK arrives.
func (sc *scanner) handle(s *openwebnet.CommandSession, frame string) {
	switch sc.state {
	case scanInit:
		if frame != openwebnet.ACK {
			sc.log.Warn("Unexpected frame while priming scan",
				zap.String("want", openwebnet.ACK), zap.String("frame", frame))
			return
		}
		sc.state = scanReceiving
		if err := s.Send(sc.filter.Frame()); err != nil {
			sc.log.Warn("Failed to start scan", zap.Error(err))
		}

	case scanReceiving:
		if frame == openwebnet.ACK {
			_ = s.Close()
			sc.log.Debug("Scan finished", zap.Int("devices", len(sc.ids)))
			if sc.done != nil {
				sc.done(sc.ids)
			}
			return
		}

		m := scanReply.FindStringSubmatch(frame)
		if m == nil {
			sc.log.Warn("Malformed scan reply", zap.String("frame", frame))
			metrics.MalformedFrames.WithLabelValues(openwebnet.ModeConfig.String(), "scan").Inc()
			return
		}
		id, err := strconv.ParseUint(m[4], 10, 64)
		if err != nil {
			sc.log.Warn("Scan reply id out of range", zap.String("frame", frame), zap.Error(err))
			metrics.MalformedFrames.WithLabelValues(openwebnet.ModeConfig.String(), "scan").Inc()
			return
		}
		sc.ids = append(sc.ids, id)
	}
}

// StartScan opens a config session and enumerates devices. done receives
// the device ids in arrival order once the gateway ends the scan. onError
// is called instead if the connection fails first.
func (e *Engine) StartScan(filter ScanFilter, done func(ids []uint64), onError func(error)) *openwebnet.CommandSession {
	return e.startScan(context.Background(), filter, done, onError)
}

func (e *Engine) startScan(ctx context.Context, filter ScanFilter, done func([]uint64), onError func(error)) *openwebnet.CommandSession {
	sc := &scanner{
		filter: filter,
		log:    e.log.With(zap.Stringer("scan", filter)),
		done:   done,
	}
	return e.start(ctx, openwebnet.CommandRequest{
		Command: PrimeScanFrame,
		Mode:    openwebnet.ModeConfig,
		OnFrame: sc.handle,
		OnError: onError,
	})
}

// ScanSystem enumerates every device.
func (e *Engine) ScanSystem(done func(ids []uint64), onError func(error)) *openwebnet.CommandSession {
	return e.StartScan(ScanAll, done, onError)
}

// ScanUnconfigured enumerates devices without a configuration.
func (e *Engine) ScanUnconfigured(done func(ids []uint64), onError func(error)) *openwebnet.CommandSession {
	return e.StartScan(ScanUnconfigured, done, onError)
}

// ScanConfigured enumerates configured devices.
func (e *Engine) ScanConfigured(done func(ids []uint64), onError func(error)) *openwebnet.CommandSession {
	return e.StartScan(ScanConfigured, done, onError)
}

// Scan is the blocking form of StartScan.
func (e *Engine) Scan(ctx context.Context, filter ScanFilter) ([]uint64, error) {
	var (
		ids      []uint64
		finished bool
		failed   error
	)
	s := e.startScan(ctx, filter,
		func(found []uint64) {
			ids = found
			finished = true
		},
		func(err error) { failed = err },
	)
	if err := await(ctx, s); err != nil {
		return nil, err
	}
	if failed != nil {
		return nil, failed
	}
	if !finished {
		return nil, openwebnet.ErrSessionClosed
	}
	return ids, nil
}
