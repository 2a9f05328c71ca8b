// Package formatpolicy finds duplicate entries in the answer formatting
// policy: placeholder fields, filter keys and glossary terms.
package formatpolicy

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
	"golang.org/x/text/cases"
)

// Occurrence is one placeholder entry sharing a duplicated field.
type Occurrence struct {
	Index  int    `json:"index"`
	Line   int    `json:"line"`
	Field  string `json:"field"`
	Filter string `json:"filter"`
}

// PlaceholderDup groups placeholders whose folded field collides.
type PlaceholderDup struct {
	Field       string       `json:"field"`
	Occurrences []Occurrence `json:"occurrences"`
}

// FilterDup is a filters key that appears more than once.
type FilterDup struct {
	Key   string `json:"key"`
	Lines []int  `json:"lines"`
}

// TermDup groups terms with the same (name, scope, version).
type TermDup struct {
	Name    string `json:"name"`
	Scope   string `json:"scope"`
	Version string `json:"version"`
	Lines   []int  `json:"lines"`
}

// Report lists every duplicate found in one policy file.
type Report struct {
	Path         string           `json:"path"`
	Placeholders []PlaceholderDup `json:"placeholders"`
	Filters      []FilterDup      `json:"filters"`
	Terms        []TermDup        `json:"terms"`
}

// OK reports whether the policy has no duplicates.
func (r *Report) OK() bool {
	return len(r.Placeholders) == 0 && len(r.Filters) == 0 && len(r.Terms) == 0
}

// Check loads the policy at path and collects its duplicates.
func Check(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return CheckData(path, data)
}

// CheckData is Check over raw bytes. path is used in errors.
func CheckData(path string, data []byte) (*Report, error) {
	// Decoding into a Node keeps duplicate keys instead of rejecting them.
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: parse policy: %w", path, err)
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: policy must be a mapping", path)
	}

	r := &Report{Path: path}
	fold := cases.Fold()
	r.Placeholders = placeholderDups(lookup(root, "placeholders"), fold)
	r.Terms = termDups(lookup(root, "terms"), fold)
	r.Filters = filterDups(data)
	return r, nil
}

// lookup returns the value of the first occurrence of key in a mapping.
func lookup(m *yaml.Node, key string) *yaml.Node {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func scalar(m *yaml.Node, key string) string {
	n := lookup(m, key)
	if n == nil || n.Kind != yaml.ScalarNode {
		return ""
	}
	return strings.TrimSpace(n.Value)
}

func placeholderDups(seq *yaml.Node, fold cases.Caser) []PlaceholderDup {
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return nil
	}
	groups := make(map[string][]Occurrence)
	var order []string
	for i, item := range seq.Content {
		field := scalar(item, "field")
		if field == "" {
			continue
		}
		key := fold.String(field)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], Occurrence{Index: i, Line: item.Line, Field: field, Filter: scalar(item, "filter")})
	}
	var dups []PlaceholderDup
	for _, key := range order {
		if occ := groups[key]; len(occ) > 1 {
			dups = append(dups, PlaceholderDup{Field: key, Occurrences: occ})
		}
	}
	return dups
}

func termDups(seq *yaml.Node, fold cases.Caser) []TermDup {
	if seq == nil || seq.Kind != yaml.SequenceNode {
		return nil
	}
	type key struct{ name, scope, version string }
	groups := make(map[key][]int)
	var order []key
	for _, item := range seq.Content {
		name := scalar(item, "name")
		if name == "" {
			continue
		}
		k := key{fold.String(name), fold.String(scalar(item, "scope")), scalar(item, "version")}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], item.Line)
	}
	var dups []TermDup
	for _, k := range order {
		if lines := groups[k]; len(lines) > 1 {
			dups = append(dups, TermDup{Name: k.name, Scope: k.scope, Version: k.version, Lines: lines})
		}
	}
	return dups
}

var (
	filtersLine = regexp.MustCompile(`^(\s*)filters\s*:\s*(#.*)?$`)
	keyLine     = regexp.MustCompile(`^(\s*)(?:"([^"]+)"|'([^']+)'|([^\s:#'"-][^:#]*?))\s*:(?:\s|$)`)
)

// filterDups re-scans the raw text for the filters block: the loader
// coalesces duplicate keys, so the lines are the only record of them.
func filterDups(data []byte) []FilterDup {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	inBlock := false
	blockIndent := -1
	parentIndent := 0
	lines := make(map[string][]int)
	var order []string

	for lineNo := 1; sc.Scan(); lineNo++ {
		text := strings.TrimRight(sc.Text(), " \t\r")
		trimmed := strings.TrimSpace(text)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		indent := len(text) - len(strings.TrimLeft(text, " \t"))

		if !inBlock {
			if m := filtersLine.FindStringSubmatch(text); m != nil {
				inBlock = true
				parentIndent = len(m[1])
				blockIndent = -1
			}
			continue
		}
		if indent <= parentIndent {
			inBlock = false
			if m := filtersLine.FindStringSubmatch(text); m != nil {
				inBlock = true
				parentIndent = len(m[1])
				blockIndent = -1
			}
			continue
		}
		if blockIndent < 0 {
			blockIndent = indent
		}
		if indent != blockIndent {
			continue
		}
		m := keyLine.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		key := strings.TrimSpace(m[2] + m[3] + m[4])
		if _, ok := lines[key]; !ok {
			order = append(order, key)
		}
		lines[key] = append(lines[key], lineNo)
	}

	var dups []FilterDup
	for _, key := range order {
		if l := lines[key]; len(l) > 1 {
			dups = append(dups, FilterDup{Key: key, Lines: l})
		}
	}
	sort.SliceStable(dups, func(i, j int) bool { return dups[i].Lines[0] < dups[j].Lines[0] })
	return dups
}
