package formatpolicy

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteMarkdown writes the report as a Markdown document.
func WriteMarkdown(w io.Writer, r *Report) error {
	var b strings.Builder
	status := "PASS"
	if !r.OK() {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "# Formatting policy duplicates\n\n")
	fmt.Fprintf(&b, "- File: `%s`\n", r.Path)
	fmt.Fprintf(&b, "- Status: %s\n", status)
	fmt.Fprintf(&b, "- Placeholder duplicates: %d\n", len(r.Placeholders))
	fmt.Fprintf(&b, "- Filter duplicates: %d\n", len(r.Filters))
	fmt.Fprintf(&b, "- Term duplicates: %d\n", len(r.Terms))

	if len(r.Placeholders) > 0 {
		b.WriteString("\n## Placeholders\n\n| field | index | line | filter |\n|---|---|---|---|\n")
		for _, d := range r.Placeholders {
			for _, o := range d.Occurrences {
				fmt.Fprintf(&b, "| %s | %d | %d | %s |\n", cell(o.Field), o.Index, o.Line, cell(o.Filter))
			}
		}
	}
	if len(r.Filters) > 0 {
		b.WriteString("\n## Filters\n\n| key | lines |\n|---|---|\n")
		for _, d := range r.Filters {
			fmt.Fprintf(&b, "| %s | %s |\n", cell(d.Key), joinLines(d.Lines))
		}
	}
	if len(r.Terms) > 0 {
		b.WriteString("\n## Terms\n\n| name | scope | version | lines |\n|---|---|---|---|\n")
		for _, d := range r.Terms {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", cell(d.Name), cell(d.Scope), cell(d.Version), joinLines(d.Lines))
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func cell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

func joinLines(lines []int) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = strconv.Itoa(l)
	}
	return strings.Join(parts, ", ")
}
