package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"

	"github.com/ShayCichocki/askgate/pkg/models"
)

// printStatus prints a status line with color
func printStatus(w io.Writer, symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Fprintf(w, "%s %s\n", c.Sprint(symbol), message)
}

func printOK(w io.Writer, message string) { printStatus(w, "✓", message, color.FgGreen) }
func printFail(w io.Writer, message string) { printStatus(w, "✗", message, color.FgRed) }
func printWarn(w io.Writer, message string) { printStatus(w, "!", message, color.FgYellow) }

var statusColors = map[models.SuiteStatus]color.Attribute{
	models.StatusPass:  color.FgGreen,
	models.StatusFail:  color.FgRed,
	models.StatusSkip:  color.FgYellow,
	models.StatusError: color.FgMagenta,
}

// colorStatus colourises a suite status word.
func colorStatus(s models.SuiteStatus) string {
	attr, ok := statusColors[s]
	if !ok {
		return string(s)
	}
	return color.New(attr, color.Bold).Sprint(string(s))
}

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// newTable returns a bordered table with the shared header style.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers(headers...)
}

// orDash dereferences optional strings for display.
func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
