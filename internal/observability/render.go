package observability

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"unicode"
)

// Engine selects the template backend.
type Engine string

const (
	// EngineTemplate renders with text/template.
	EngineTemplate Engine = "template"
	// EngineMinimal renders with the built-in {{ expr }} evaluator.
	EngineMinimal Engine = "minimal"
)

// ParseEngine validates an engine name. Empty means EngineTemplate.
func ParseEngine(s string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(s))) {
	case "", EngineTemplate:
		return EngineTemplate, nil
	case EngineMinimal:
		return EngineMinimal, nil
	default:
		return "", fmt.Errorf("unknown template engine %q (want template or minimal)", s)
	}
}

// Func is a template function taking string arguments.
type Func func(args ...string) string

// Renderer renders templates against one config.
type Renderer struct {
	engine Engine
	ns     Namespace
	funcs  map[string]Func
}

// NewRenderer builds a Renderer for cfg.
func NewRenderer(cfg *Config, engine Engine) *Renderer {
	return &Renderer{
		engine: engine,
		ns:     NewNamespace(cfg),
		funcs: map[string]Func{
			"promql_filter": PromQLFilter(cfg),
		},
	}
}

// Render renders src. Both engines produce identical output for templates
// restricted to dotted paths, quoted literals and function calls with
// quoted arguments.
func (r *Renderer) Render(name, src string) (string, error) {
	switch r.engine {
	case EngineMinimal:
		return renderMinimal(name, src, r.ns, r.funcs)
	default:
		return r.renderTemplate(name, src)
	}
}

func (r *Renderer) renderTemplate(name, src string) (string, error) {
	funcs := template.FuncMap{}
	for k, fn := range r.funcs {
		funcs[k] = fn
	}
	t, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]any(r.ns)); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// renderMinimal substitutes every {{ expr }} in src.
func renderMinimal(name, src string, ns Namespace, funcs map[string]Func) (string, error) {
	var out strings.Builder
	rest := src
	offset := 0
	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			out.WriteString(rest)
			return out.String(), nil
		}
		out.WriteString(rest[:open])

		body := rest[open+2:]
		end, err := closingDelim(body)
		if err != nil {
			return "", fmt.Errorf("render template %s: offset %d: %w", name, offset+open, err)
		}
		value, err := evalExpr(strings.TrimSpace(body[:end]), ns, funcs)
		if err != nil {
			return "", fmt.Errorf("render template %s: offset %d: %w", name, offset+open, err)
		}
		out.WriteString(value)

		consumed := open + 2 + end + 2
		offset += consumed
		rest = rest[consumed:]
	}
}

// closingDelim returns the index of the "}}" closing an expression,
// ignoring braces inside quoted strings.
func closingDelim(body string) (int, error) {
	var quote byte
	for i := 0; i < len(body); i++ {
		c := body[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '`':
			quote = c
		case c == '}' && i+1 < len(body) && body[i+1] == '}':
			return i, nil
		}
	}
	return 0, fmt.Errorf("unclosed {{ expression")
}

func evalExpr(expr string, ns Namespace, funcs map[string]Func) (string, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return "", err
	}
	if len(tokens) == 0 {
		return "", fmt.Errorf("empty expression")
	}

	head := tokens[0]
	switch {
	case head.quoted:
		if len(tokens) > 1 {
			return "", fmt.Errorf("unexpected %q after string literal", tokens[1].text)
		}
		return head.text, nil
	case strings.HasPrefix(head.text, "."):
		if len(tokens) > 1 {
			return "", fmt.Errorf("unexpected %q after %s", tokens[1].text, head.text)
		}
		return lookup(ns, head.text)
	}

	fn, ok := funcs[head.text]
	if !ok {
		return "", fmt.Errorf("function %q not defined (known: %s)", head.text, strings.Join(funcNames(funcs), ", "))
	}
	args := make([]string, 0, len(tokens)-1)
	for _, t := range tokens[1:] {
		if !t.quoted {
			return "", fmt.Errorf("%s: argument %s must be a quoted string", head.text, t.text)
		}
		args = append(args, t.text)
	}
	return fn(args...), nil
}

// lookup resolves a dotted path such as .thresholds.latency.p95_ms.
func lookup(ns Namespace, path string) (string, error) {
	var cur any = map[string]any(ns)
	for _, seg := range strings.Split(strings.TrimPrefix(path, "."), ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return "", fmt.Errorf("%s: cannot read %q of %T", path, seg, cur)
		}
		next, ok := m[seg]
		if !ok {
			return "", fmt.Errorf("%s: map has no entry for key %q", path, seg)
		}
		cur = next
	}
	if _, ok := cur.(map[string]any); ok {
		return "", fmt.Errorf("%s: is a mapping, not a value", path)
	}
	return fmt.Sprint(cur), nil
}

type token struct {
	text   string
	quoted bool
}

// tokenize splits an expression on whitespace, keeping quoted strings whole
// and unquoting them with Go string syntax.
func tokenize(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		if unicode.IsSpace(rune(c)) {
			i++
			continue
		}
		if c == '"' || c == '`' {
			j := i + 1
			for j < len(expr) && expr[j] != c {
				if c == '"' && expr[j] == '\\' {
					j++
				}
				j++
			}
			if j >= len(expr) {
				return nil, fmt.Errorf("unterminated string in %q", expr)
			}
			s, err := strconv.Unquote(expr[i : j+1])
			if err != nil {
				return nil, fmt.Errorf("bad string literal %s: %w", expr[i:j+1], err)
			}
			tokens = append(tokens, token{text: s, quoted: true})
			i = j + 1
			continue
		}
		j := i
		for j < len(expr) && !unicode.IsSpace(rune(expr[j])) {
			j++
		}
		tokens = append(tokens, token{text: expr[i:j]})
		i = j
	}
	return tokens, nil
}

func funcNames(funcs map[string]Func) []string {
	names := make([]string, 0, len(funcs))
	for k := range funcs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
