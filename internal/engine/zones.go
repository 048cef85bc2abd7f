package engine

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/muurk/myhome/internal/openwebnet"
)

// Field names one value of a ZoneRecord.
type Field int

const (
	FieldOperatingTemperature Field = iota
	FieldOffsetAdjustedTemperature
	FieldOperatingMode
	FieldLocalOffsetKnob
	FieldSetPointTemperature
)

var fieldNames = [...]string{
	FieldOperatingTemperature:      "operating_temperature",
	FieldOffsetAdjustedTemperature: "offset_adjusted_temperature",
	FieldOperatingMode:             "operating_mode",
	FieldLocalOffsetKnob:           "local_offset_knob",
	FieldSetPointTemperature:       "set_point_temperature",
}

// String returns the snake_case field name used in JSON and MQTT topics.
func (f Field) String() string {
	if f >= 0 && int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return "field(" + strconv.Itoa(int(f)) + ")"
}

// zonePattern decodes one field. zone and value are capture group indexes.
type zonePattern struct {
	field Field
	re    *regexp.Regexp
	zone  int
	value int
}

// Patterns are tried in order and the first match wins. The mode frame
// carries the value before the zone.
var zonePatterns = []zonePattern{
	{FieldOperatingTemperature, regexp.MustCompile(`^\*#4\*(\d+)\*0\*(\d+)##`), 1, 2},
	{FieldOffsetAdjustedTemperature, regexp.MustCompile(`^\*#4\*(\d+)\*12\*(\d+)\*3##`), 1, 2},
	{FieldOperatingMode, regexp.MustCompile(`^\*4\*(\d+)\*(\d+)##`), 2, 1},
	{FieldLocalOffsetKnob, regexp.MustCompile(`^\*#4\*(\d+)\*13\*(\d+)##`), 1, 2},
	{FieldSetPointTemperature, regexp.MustCompile(`^\*#4\*(\d+)\*14\*(\d+)\*3##`), 1, 2},
}

// Reading is one decoded zone value.
type Reading struct {
	Zone  string `json:"zone"`
	Field Field  `json:"-"`
	Value string `json:"value"`
}

// Decode matches frame against the zone patterns.
func Decode(frame string) (Reading, bool) {
	for _, p := range zonePatterns {
		m := p.re.FindStringSubmatch(frame)
		if m == nil {
			continue
		}
		return Reading{Zone: m[p.zone], Field: p.field, Value: m[p.value]}, true
	}
	return Reading{}, false
}

// ZoneRecord holds the raw digit strings reported for one zone. Empty
// means not reported yet.
type ZoneRecord struct {
	OperatingTemperature      string `json:"operating_temperature,omitempty" yaml:"operating_temperature,omitempty"`
	OffsetAdjustedTemperature string `json:"offset_adjusted_temperature,omitempty" yaml:"offset_adjusted_temperature,omitempty"`
	OperatingMode             string `json:"operating_mode,omitempty" yaml:"operating_mode,omitempty"`
	LocalOffsetKnob           string `json:"local_offset_knob,omitempty" yaml:"local_offset_knob,omitempty"`
	SetPointTemperature       string `json:"set_point_temperature,omitempty" yaml:"set_point_temperature,omitempty"`
}

// Set stores value in field f.
func (r *ZoneRecord) Set(f Field, value string) {
	switch f {
	case FieldOperatingTemperature:
		r.OperatingTemperature = value
	case FieldOffsetAdjustedTemperature:
		r.OffsetAdjustedTemperature = value
	case FieldOperatingMode:
		r.OperatingMode = value
	case FieldLocalOffsetKnob:
		r.LocalOffsetKnob = value
	case FieldSetPointTemperature:
		r.SetPointTemperature = value
	}
}

// Get returns the value of field f.
func (r *ZoneRecord) Get(f Field) string {
	switch f {
	case FieldOperatingTemperature:
		return r.OperatingTemperature
	case FieldOffsetAdjustedTemperature:
		return r.OffsetAdjustedTemperature
	case FieldOperatingMode:
		return r.OperatingMode
	case FieldLocalOffsetKnob:
		return r.LocalOffsetKnob
	case FieldSetPointTemperature:
		return r.SetPointTemperature
	}
	return ""
}

// ZoneStatus maps zone ids to their records. Records and fields are only
// ever added or overwritten, never removed.
type ZoneStatus map[string]*ZoneRecord

// Apply decodes frame and stores the value in its zone record. Frames
// matching no pattern are ignored.
func (z ZoneStatus) Apply(frame string) (Reading, bool) {
	r, ok := Decode(frame)
	if !ok {
		return Reading{}, false
	}
	rec := z[r.Zone]
	if rec == nil {
		rec = &ZoneRecord{}
		z[r.Zone] = rec
	}
	rec.Set(r.Field, r.Value)
	return r, true
}

// Clone returns a deep copy.
func (z ZoneStatus) Clone() ZoneStatus {
	out := make(ZoneStatus, len(z))
	for id, rec := range z {
		cp := *rec
		out[id] = &cp
	}
	return out
}

// Temperature converts a reported value in tenths of a degree.
func Temperature(raw string) (float64, bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return float64(n) / 10, true
}

var modeNames = map[string]string{
	"0":   "conditioning",
	"1":   "heating",
	"102": "antifreeze",
	"202": "thermal protection",
	"303": "off",
}

// ModeName describes an operating mode code.
func ModeName(code string) string {
	if name, ok := modeNames[code]; ok {
		return name
	}
	return "mode " + code
}

var knobNames = map[string]string{
	"00": "0",
	"01": "+1",
	"11": "-1",
	"02": "+2",
	"12": "-2",
	"03": "+3",
	"13": "-3",
	"4":  "local off",
	"5":  "local protection",
}

// KnobName describes a local offset knob position.
func KnobName(code string) string {
	if name, ok := knobNames[code]; ok {
		return name
	}
	return "knob " + code
}

var zoneID = regexp.MustCompile(`^\d+$`)

func checkZone(zone string) error {
	if !zoneID.MatchString(zone) {
		return fmt.Errorf("%w: %q", ErrInvalidZone, zone)
	}
	return nil
}

// GetStatus queries one zone. Every reply frame is decoded into a
// ZoneStatus, which cb receives with the terminal Result. If the session
// fails before a terminal frame, cb receives what was decoded so far,
// ResultUnknown and the error.
func (e *Engine) GetStatus(zone string, cb func(ZoneStatus, Result, error)) (*openwebnet.CommandSession, error) {
	return e.getStatus(context.Background(), zone, cb)
}

func (e *Engine) getStatus(ctx context.Context, zone string, cb func(ZoneStatus, Result, error)) (*openwebnet.CommandSession, error) {
	if err := checkZone(zone); err != nil {
		return nil, err
	}

	status := make(ZoneStatus)
	log := e.log.With(zap.String("zone", zone))

	return e.start(ctx, openwebnet.CommandRequest{
		Command: "*#4*" + zone + "##",
		StopOn:  terminal,
		OnFrame: func(_ *openwebnet.CommandSession, frame string) {
			if r, ok := status.Apply(frame); ok {
				log.Debug("Zone value", zap.String("zone_reported", r.Zone),
					zap.Stringer("field", r.Field), zap.String("value", r.Value))
				return
			}
			log.Debug("Skipping frame", zap.String("frame", frame))
		},
		OnComplete: func(frame string, _ int) {
			if cb != nil {
				cb(status, resultOf(frame), nil)
			}
		},
		OnError: func(err error) {
			if cb != nil {
				cb(status, ResultUnknown, err)
			}
		},
	}), nil
}

// Status is the blocking form of GetStatus. A NACK is returned as ErrNack
// together with whatever was decoded.
func (e *Engine) Status(ctx context.Context, zone string) (ZoneStatus, error) {
	var (
		status ZoneStatus
		failed error
	)
	s, err := e.getStatus(ctx, zone, func(z ZoneStatus, r Result, err error) {
		status = z
		if err == nil {
			err = r.Err()
		}
		failed = err
	})
	if err != nil {
		return nil, err
	}
	if err := await(ctx, s); err != nil {
		return nil, err
	}
	if status == nil {
		return nil, openwebnet.ErrSessionClosed
	}
	return status, failed
}
