package cluster

import (
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Render defaults.
const (
	DefaultTop             = 20
	DefaultExampleClusters = 5
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// RenderSummary prints the top clusters as a table, examples for the first
// exampleClusters clusters, then the technical failures.
func RenderSummary(w io.Writer, res *Result, top, exampleClusters int) {
	if top <= 0 {
		top = DefaultTop
	}
	if exampleClusters < 0 {
		exampleClusters = DefaultExampleClusters
	}

	routingTotal := 0
	for _, c := range res.Routing {
		routingTotal += c.Count
	}
	fmt.Fprintf(w, "misses: %d (routing %d, technical %d)\n\n", res.Total, routingTotal, res.Total-routingTotal)

	if len(res.Routing) > 0 {
		t := table.New().
			Border(lipgloss.NormalBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return cellStyle
			}).
			Headers("#", "expected_entity", "got_entity", "count", "score_avg", "score_min", "score_max")
		for i, c := range res.Routing {
			if i == top {
				break
			}
			t.Row(strconv.Itoa(i+1), c.ExpectedEntity, c.GotEntity, strconv.Itoa(c.Count),
				formatScore(c.Scores.Avg), formatScore(c.Scores.Min), formatScore(c.Scores.Max))
		}
		fmt.Fprintln(w, t.Render())
		if len(res.Routing) > top {
			fmt.Fprintf(w, "... %d more clusters\n", len(res.Routing)-top)
		}
	}

	for i, c := range res.Routing {
		if i == exampleClusters {
			break
		}
		fmt.Fprintf(w, "\n[%d] %s (%d)\n", i+1, c.Key(), c.Count)
		for _, ex := range c.Examples {
			fmt.Fprintf(w, "  - %s  (intent %s -> %s, score %s)\n",
				ex.Question, orNone(ex.ExpectedIntent), orNone(ex.GotIntent), formatScore(ex.Score))
		}
	}

	if len(res.Technical) > 0 {
		fmt.Fprintln(w, "\ntechnical failures:")
		for _, t := range res.Technical {
			fmt.Fprintf(w, "  %-24s %d\n", t.Reason, t.Count)
			for _, q := range t.Examples {
				fmt.Fprintf(w, "      %s\n", q)
			}
		}
	}
}

func formatScore(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 3, 64)
}
