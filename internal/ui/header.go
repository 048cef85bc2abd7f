package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Param is one labelled value shown under a header or inside a result box.
type Param struct {
	Key   string
	Value string
}

// Header is the banner printed before a command talks to the gateway.
type Header struct {
	Title   string  // e.g., "ZONE STATUS"
	Command string  // e.g., "myhome status 1"
	Params  []Param // e.g., {"Gateway", "192.168.0.35:20000"}
	Width   int
}

// NewHeader creates a new header sized to the terminal
func NewHeader(title, command string, params ...Param) *Header {
	return &Header{
		Title:   title,
		Command: command,
		Params:  params,
		Width:   GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Render returns the styled header as a string
func (h *Header) Render() string {
	width := h.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	titleLine := HeaderTitleStyle.Render(strings.ToUpper(h.Title))
	commandLine := HeaderCommandStyle.Render(h.Command)
	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, commandLine)

	if len(h.Params) > 0 {
		dividerWidth := width - 6 // border and padding
		if dividerWidth < 10 {
			dividerWidth = 10
		}
		content = lipgloss.JoinVertical(lipgloss.Left,
			content,
			RenderHorizontalDivider(dividerWidth, "─"),
			renderParams(h.Params, HeaderParamKeyStyle, HeaderParamValueStyle, ""),
		)
	}

	return HeaderBorderStyle(width).Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}

func renderParams(params []Param, key, value lipgloss.Style, indent string) string {
	lines := make([]string, 0, len(params))
	for _, p := range params {
		lines = append(lines, key.Render(indent+p.Key+":")+" "+value.Render(p.Value))
	}
	return strings.Join(lines, "\n")
}
