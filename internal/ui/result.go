package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/myhome/internal/engine"
	"github.com/muurk/myhome/internal/openwebnet"
)

// ResultType indicates success or failure
type ResultType int

const (
	ResultSuccess ResultType = iota
	ResultFailure
	ResultWarning
)

// Result represents a result box (success, failure, or warning)
type Result struct {
	Type            ResultType
	Title           string  // e.g., "Set point accepted"
	Details         []Param // shown in order
	Error           error   // failure results only
	Troubleshooting []string
	Width           int
}

// NewSuccessResult creates a success result box
func NewSuccessResult(title string, details ...Param) *Result {
	return &Result{
		Type:    ResultSuccess,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// NewFailureResult creates a failure result box. Troubleshooting tips are
// derived from err.
func NewFailureResult(title string, err error) *Result {
	return &Result{
		Type:            ResultFailure,
		Title:           title,
		Error:           err,
		Troubleshooting: Troubleshoot(err),
		Width:           GetTerminalWidth(),
	}
}

// NewWarningResult creates a warning result box
func NewWarningResult(title string, details ...Param) *Result {
	return &Result{
		Type:    ResultWarning,
		Title:   title,
		Details: details,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (r *Result) SetWidth(width int) *Result {
	r.Width = width
	return r
}

// Render returns the styled result box as a string
func (r *Result) Render() string {
	width := r.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	switch r.Type {
	case ResultFailure:
		return r.renderFailure(width)
	case ResultWarning:
		title := lipgloss.NewStyle().Foreground(WarningColor).Bold(true).
			Render(fmt.Sprintf("   ⚠  WARNING  ─  %s", r.Title))
		return lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(WarningColor).
			Width(width-2).
			Padding(0, 2).
			Render(r.body(title))
	default:
		title := SuccessTitleStyle.Render(fmt.Sprintf("   %s  SUCCESS  ─  %s", SuccessMarker, r.Title))
		return SuccessBoxStyle(width).Render(r.body(title))
	}
}

func (r *Result) body(title string) string {
	lines := []string{"", title, ""}
	if len(r.Details) > 0 {
		lines = append(lines, renderParams(r.Details, ResultKeyStyle, ResultValueStyle, "   "), "")
	}
	return strings.Join(lines, "\n")
}

func (r *Result) renderFailure(width int) string {
	lines := []string{
		"",
		ErrorTitleStyle.Render(fmt.Sprintf("   %s  FAILED  ─  %s", FailureMarker, r.Title)),
		"",
	}

	if r.Error != nil {
		lines = append(lines, ErrorMessageStyle.Render("   Error: "+r.Error.Error()), "")
	}

	if len(r.Troubleshooting) > 0 {
		tips := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
		for _, tip := range r.Troubleshooting {
			tips = append(tips, TroubleshootingItemStyle.Render("  • "+tip))
		}
		lines = append(lines, TroubleshootingBoxStyle(width).Render(strings.Join(tips, "\n")), "")
	}

	return ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// String implements fmt.Stringer
func (r *Result) String() string {
	return r.Render()
}

// Troubleshoot returns hints for the common ways talking to a gateway fails.
func Troubleshoot(err error) []string {
	var owErr *openwebnet.Error
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrNack):
		return []string{
			"The gateway rejected the command (NACK)",
			"Check the zone number exists on this installation",
			"Run 'myhome scan' to list configured devices",
		}
	case errors.Is(err, engine.ErrInvalidTemperature), errors.Is(err, engine.ErrUnknownMode),
		errors.Is(err, engine.ErrInvalidZone):
		return nil
	case errors.As(err, &owErr):
		switch owErr.Kind {
		case openwebnet.ErrKindRefused:
			return []string{
				"Verify the gateway address and port (default 20000)",
				"Only a limited number of OpenWebNet sessions are allowed at once",
			}
		case openwebnet.ErrKindTimeout, openwebnet.ErrKindDNS, openwebnet.ErrKindDial:
			return []string{
				"Check the gateway is powered and on the same network",
				"Run 'myhome locate' to find it via mDNS",
			}
		case openwebnet.ErrKindClosed:
			return []string{
				"The gateway dropped the connection",
				"A wrong OPEN password stalls the login; check --password",
			}
		}
	case errors.Is(err, openwebnet.ErrSessionClosed):
		return []string{
			"The session ended before the gateway answered",
			"Increase --timeout if the gateway is slow to respond",
		}
	}
	return []string{"Re-run with MYHOME_LOG_LEVEL=debug to see every frame"}
}
