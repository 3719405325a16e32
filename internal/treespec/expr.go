package treespec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/recompose/internal/ir"
)

// Reference roots.
const (
	RootState = "state"
	RootItem  = "item"
	RootIndex = "index"
)

// Ref is a reference inside a template, such as state.user.name.
type Ref struct {
	Root string
	Path []string
}

func (r Ref) String() string {
	if len(r.Path) == 0 {
		return r.Root
	}
	return r.Root + "." + strings.Join(r.Path, ".")
}

type segment struct {
	text string
	ref  *Ref
}

// Expr is a compiled attribute value: a literal or a template.
type Expr struct {
	src  string
	lit  ir.Value
	segs []segment
}

// Literal returns an expression that always evaluates to v.
func Literal(v ir.Value) Expr {
	return Expr{lit: v}
}

// ParseTemplate compiles a string with ${...} references.
func ParseTemplate(s string) (Expr, error) {
	e := Expr{src: s}
	rest := s
	for {
		i := strings.Index(rest, "${")
		if i < 0 {
			break
		}
		j := strings.Index(rest[i:], "}")
		if j < 0 {
			return Expr{}, fmt.Errorf("unterminated reference in %q", s)
		}
		if i > 0 {
			e.segs = append(e.segs, segment{text: rest[:i]})
		}
		ref, err := parseRef(rest[i+2 : i+j])
		if err != nil {
			return Expr{}, fmt.Errorf("%q: %w", s, err)
		}
		e.segs = append(e.segs, segment{ref: &ref})
		rest = rest[i+j+1:]
	}
	if len(e.segs) == 0 {
		e.lit = ir.String(s)
		return e, nil
	}
	if rest != "" {
		e.segs = append(e.segs, segment{text: rest})
	}
	return e, nil
}

func parseRef(s string) (Ref, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	for _, p := range parts {
		if p == "" {
			return Ref{}, fmt.Errorf("empty path element in ${%s}", s)
		}
	}
	ref := Ref{Root: parts[0], Path: parts[1:]}
	switch ref.Root {
	case RootState:
		if len(ref.Path) == 0 {
			return Ref{}, fmt.Errorf("${state} needs a state name")
		}
	case RootItem:
	case RootIndex:
		if len(ref.Path) > 0 {
			return Ref{}, fmt.Errorf("${index} has no fields")
		}
	default:
		return Ref{}, fmt.Errorf("unknown reference root %q (want state, item or index)", ref.Root)
	}
	return ref, nil
}

// IsZero reports whether the expression was never set.
func (e Expr) IsZero() bool {
	return e.lit == nil && e.segs == nil
}

// Refs returns the references of the expression in source order.
func (e Expr) Refs() []Ref {
	var out []Ref
	for _, s := range e.segs {
		if s.ref != nil {
			out = append(out, *s.ref)
		}
	}
	return out
}

// Whole returns the reference when the expression is exactly one reference.
func (e Expr) Whole() (Ref, bool) {
	if len(e.segs) == 1 && e.segs[0].ref != nil {
		return *e.segs[0].ref, true
	}
	return Ref{}, false
}

func (e Expr) String() string {
	if e.lit != nil && e.src == "" {
		return ir.Render(e.lit)
	}
	return e.src
}

// Eval evaluates the expression, resolving references with lookup.
func (e Expr) Eval(lookup func(Ref) (ir.Value, error)) (ir.Value, error) {
	if e.lit != nil {
		return e.lit, nil
	}
	if ref, ok := e.Whole(); ok {
		return lookup(ref)
	}
	var b strings.Builder
	for _, s := range e.segs {
		if s.ref == nil {
			b.WriteString(s.text)
			continue
		}
		v, err := lookup(*s.ref)
		if err != nil {
			return nil, err
		}
		b.WriteString(ir.Render(v))
	}
	return ir.String(b.String()), nil
}

// walk follows path into v: object fields by name, list elements by index.
func walk(v ir.Value, ref Ref, path []string) (ir.Value, error) {
	for _, p := range path {
		switch val := v.(type) {
		case ir.Object:
			next, ok := val[p]
			if !ok {
				return nil, fmt.Errorf("${%s}: no field %q", ref, p)
			}
			v = next
		case ir.List:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(val) {
				return nil, fmt.Errorf("${%s}: index %q out of range", ref, p)
			}
			v = val[i]
		default:
			return nil, fmt.Errorf("${%s}: cannot select %q from %s", ref, p, ir.Render(v))
		}
	}
	return v, nil
}

// Truthy is the condition value of v: false, 0, "" and empty collections
// are false.
func Truthy(v ir.Value) bool {
	switch val := v.(type) {
	case ir.Bool:
		return bool(val)
	case ir.Int:
		return val != 0
	case ir.String:
		return val != ""
	case ir.List:
		return len(val) > 0
	case ir.Object:
		return len(val) > 0
	}
	return false
}
