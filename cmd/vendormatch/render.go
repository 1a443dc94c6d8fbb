package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/apflow/vendormatch/internal/resolve"
)

var (
	labelStyle = lipgloss.NewStyle().Faint(true).Width(12)
	matchStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	ambigStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	newStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	rejStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

func renderVerdict(v resolve.ResolutionVerdict) string {
	var b strings.Builder

	style := newStyle
	switch v.Verdict {
	case resolve.VerdictMatch:
		style = matchStyle
	case resolve.VerdictAmbiguous:
		style = ambigStyle
	case resolve.VerdictInvalidVendor:
		style = rejStyle
	}

	row := func(label, value string) {
		if value == "" {
			return
		}
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	b.WriteString(style.Render(string(v.Verdict)))
	b.WriteByte('\n')
	row("vendor", v.VendorID)
	row("confidence", fmt.Sprintf("%.2f", v.Confidence))
	row("method", string(v.Method))
	row("risk", string(v.Risk))
	row("reasoning", v.Reasoning)
	if !v.Mutations.Empty() {
		row("learned", strings.TrimSpace(strings.Join([]string{v.Mutations.Alias, v.Mutations.Domain, v.Mutations.Address}, " ")))
	}
	return strings.TrimRight(b.String(), "\n")
}
