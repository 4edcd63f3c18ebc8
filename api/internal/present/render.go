package present

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"lens-capture/api/internal/products"
)

var (
	accent  = lipgloss.Color("#FFB3BA")
	muted   = lipgloss.Color("#6B7280")
	success = lipgloss.Color("#A8E6CF")
	warn    = lipgloss.Color("214")
	danger  = lipgloss.Color("203")

	titleStyle    = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(muted)
	priceStyle    = lipgloss.NewStyle().Foreground(success).Bold(true)
	advisoryStyle = lipgloss.NewStyle().Foreground(warn)
	linkStyle     = lipgloss.NewStyle().Foreground(muted).Underline(true)
)

// Render draws the results surface as a bordered terminal box.
func Render(v View, width int) string {
	if width < 40 {
		width = 40
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("Description"))
	b.WriteString("\n")
	b.WriteString(v.Description)
	b.WriteString("\n")
	if v.Advisory != "" {
		b.WriteString("\n")
		b.WriteString(advisoryStyle.Render(v.Advisory))
		b.WriteString("\n")
	}

	order := "price: low to high"
	if v.Direction == products.Descending {
		order = "price: high to low"
	}
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Similar products"))
	b.WriteString(" ")
	b.WriteString(mutedStyle.Render("(" + order + ")"))
	b.WriteString("\n")

	if v.Empty() {
		b.WriteString(mutedStyle.Render(NoProducts))
	}
	for i, it := range v.Items() {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderItem(it))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Width(width)
	return box.Render(b.String())
}

func renderItem(it Item) string {
	line := "• " + it.Name
	if it.Fallback && it.Query != "" {
		line += mutedStyle.Render(fmt.Sprintf(" %q", it.Query))
	}
	if it.Price != "" {
		line += "  " + priceStyle.Render(it.Price)
	}
	if it.Source != "" {
		line += "  " + mutedStyle.Render(it.Source)
	}
	rows := []string{line}
	for _, l := range it.Links {
		rows = append(rows, "  "+l.Label+": "+linkStyle.Render(l.URL))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

// RenderNotice draws a one-line notification colored by level.
func RenderNotice(n Notice) string {
	style := lipgloss.NewStyle().Foreground(success)
	switch n.Level {
	case Warning:
		style = style.Foreground(warn)
	case Error:
		style = style.Foreground(danger)
	}
	return style.Render(n.Text)
}
