package ui

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/myhome/internal/engine"
)

// ZoneNamer returns the display name of a zone. A nil ZoneNamer shows ids.
type ZoneNamer func(zone string) string

type column struct {
	title string
	width int
}

var zoneColumns = []column{
	{"ZONE", 6},
	{"NAME", 16},
	{"TEMP", 9},
	{"ADJUSTED", 10},
	{"SET POINT", 10},
	{"MODE", 14},
	{"KNOB", 8},
}

// FormatTemperature renders a raw tenths value, or "-" when unset.
func FormatTemperature(raw string) string {
	c, ok := engine.Temperature(raw)
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.1f°C", c)
}

// FormatValue renders one decoded zone value for humans.
func FormatValue(f engine.Field, raw string) string {
	if raw == "" {
		return "-"
	}
	switch f {
	case engine.FieldOperatingMode:
		return engine.ModeName(raw)
	case engine.FieldLocalOffsetKnob:
		return engine.KnobName(raw)
	default:
		return FormatTemperature(raw)
	}
}

// DescribeReading renders a decoded monitor frame as one line.
func DescribeReading(r engine.Reading, name ZoneNamer) string {
	label := strings.ReplaceAll(r.Field.String(), "_", " ")
	return fmt.Sprintf("%s %s %s", zoneLabel(r.Zone, name), label, FormatValue(r.Field, r.Value))
}

func zoneLabel(zone string, name ZoneNamer) string {
	if name == nil {
		return "zone " + zone
	}
	return name(zone)
}

// SortedZones returns the zone ids of status in numeric order.
func SortedZones(status engine.ZoneStatus) []string {
	zones := make([]string, 0, len(status))
	for z := range status {
		zones = append(zones, z)
	}
	slices.SortFunc(zones, func(a, b string) int {
		na, errA := strconv.Atoi(a)
		nb, errB := strconv.Atoi(b)
		if errA == nil && errB == nil && na != nb {
			return na - nb
		}
		return strings.Compare(a, b)
	})
	return zones
}

// RenderZoneTable renders status as a fixed-width table.
func RenderZoneTable(status engine.ZoneStatus, name ZoneNamer) string {
	if len(status) == 0 {
		return HelpStyle.Render("  no zone readings yet")
	}

	header := make([]string, len(zoneColumns))
	for i, c := range zoneColumns {
		header[i] = TableHeaderStyle.Width(c.width).Render(c.title)
	}
	rows := []string{lipgloss.JoinHorizontal(lipgloss.Top, header...)}

	for _, zone := range SortedZones(status) {
		rec := status[zone]
		display := ""
		if name != nil {
			display = name(zone)
		}
		cells := []string{
			zone,
			display,
			FormatTemperature(rec.OperatingTemperature),
			FormatTemperature(rec.OffsetAdjustedTemperature),
			FormatTemperature(rec.SetPointTemperature),
			FormatValue(engine.FieldOperatingMode, rec.OperatingMode),
			FormatValue(engine.FieldLocalOffsetKnob, rec.LocalOffsetKnob),
		}
		for i, c := range zoneColumns {
			cells[i] = TableCellStyle.Width(c.width).MaxWidth(c.width).Render(cells[i])
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return strings.Join(rows, "\n")
}
