package treespec

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/recompose/internal/ir"
)

var nodeFields = []string{"type", "key", "attrs", "children", "each", "when"}

// CompileError reports an invalid tree file.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Compile parses a CUE value holding state and tree into a Program.
//
//	ctx := cuecontext.New()
//	prog, err := Compile(ctx.CompileString(src))
func Compile(v cue.Value) (*Program, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	prog := &Program{State: make(map[string]ir.Value)}
	if err := parseState(v, prog); err != nil {
		return nil, err
	}

	treeVal := v.LookupPath(cue.ParsePath("tree"))
	if !treeVal.Exists() {
		return nil, &CompileError{
			Field:   "tree",
			Message: "tree is required",
			Pos:     v.Pos(),
		}
	}

	c := &compiler{prog: prog}
	root, err := c.node(treeVal, "tree", false)
	if err != nil {
		return nil, err
	}
	if !root.Each.IsZero() || !root.When.IsZero() {
		return nil, &CompileError{
			Field:   "tree",
			Message: "the root node cannot use each or when",
			Pos:     root.Pos,
		}
	}
	prog.Root = root
	return prog, nil
}

func parseState(v cue.Value, prog *Program) error {
	stateVal := v.LookupPath(cue.ParsePath("state"))
	if !stateVal.Exists() {
		return nil // state is optional
	}

	iter, err := stateVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		val, err := toIR(iter.Value(), "state."+name)
		if err != nil {
			return err
		}
		prog.State[name] = val
		prog.StateNames = append(prog.StateNames, name)
	}
	return nil
}

type compiler struct {
	prog *Program
}

func (c *compiler) node(v cue.Value, path string, inEach bool) (*NodeSpec, error) {
	if v.Kind() != cue.StructKind {
		return nil, &CompileError{Field: path, Message: "node must be a struct", Pos: v.Pos()}
	}
	spec := &NodeSpec{Path: path, Pos: v.Pos()}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		if !slices.Contains(nodeFields, iter.Label()) {
			return nil, &CompileError{
				Field:   path + "." + iter.Label(),
				Message: "unknown node field",
				Pos:     iter.Value().Pos(),
			}
		}
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return nil, &CompileError{Field: path + ".type", Message: "type is required", Pos: v.Pos()}
	}
	if spec.Type, err = typeVal.String(); err != nil {
		return nil, formatCUEError(err)
	}
	if spec.Type == "" {
		return nil, &CompileError{Field: path + ".type", Message: "type must not be empty", Pos: typeVal.Pos()}
	}

	// each and when are evaluated in the enclosing environment.
	if spec.Each, err = c.template(v, "each", path, inEach); err != nil {
		return nil, err
	}
	if spec.When, err = c.template(v, "when", path, inEach); err != nil {
		return nil, err
	}
	if !spec.Each.IsZero() {
		if _, ok := spec.Each.Whole(); !ok {
			return nil, &CompileError{
				Field:   path + ".each",
				Message: "each must be a single reference like ${state.items}",
				Pos:     v.LookupPath(cue.ParsePath("each")).Pos(),
			}
		}
		inEach = true
	}

	if spec.Key, err = c.template(v, "key", path, inEach); err != nil {
		return nil, err
	}
	if !spec.Each.IsZero() && spec.Key.IsZero() {
		return nil, &CompileError{Field: path + ".key", Message: "each requires a key", Pos: v.Pos()}
	}

	if err := c.attrs(v, spec, inEach); err != nil {
		return nil, err
	}

	childrenVal := v.LookupPath(cue.ParsePath("children"))
	if childrenVal.Exists() {
		list, err := childrenVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for i := 0; list.Next(); i++ {
			child, err := c.node(list.Value(), fmt.Sprintf("%s.children[%d]", path, i), inEach)
			if err != nil {
				return nil, err
			}
			spec.Children = append(spec.Children, child)
		}
	}

	c.markLoopUse(spec)
	return spec, nil
}

func (c *compiler) template(v cue.Value, field, path string, inEach bool) (Expr, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return Expr{}, nil
	}
	s, err := fv.String()
	if err != nil {
		return Expr{}, formatCUEError(err)
	}
	return c.parse(s, path+"."+field, fv.Pos(), inEach)
}

func (c *compiler) parse(s, field string, pos token.Pos, inEach bool) (Expr, error) {
	e, err := ParseTemplate(s)
	if err != nil {
		return Expr{}, &CompileError{Field: field, Message: err.Error(), Pos: pos}
	}
	for _, ref := range e.Refs() {
		switch ref.Root {
		case RootState:
			if _, ok := c.prog.State[ref.Path[0]]; !ok {
				return Expr{}, &CompileError{
					Field:   field,
					Message: fmt.Sprintf("unknown state %q", ref.Path[0]),
					Pos:     pos,
				}
			}
		case RootItem, RootIndex:
			if !inEach {
				return Expr{}, &CompileError{
					Field:   field,
					Message: fmt.Sprintf("${%s} outside each", ref),
					Pos:     pos,
				}
			}
		}
	}
	return e, nil
}

func (c *compiler) attrs(v cue.Value, spec *NodeSpec, inEach bool) error {
	attrsVal := v.LookupPath(cue.ParsePath("attrs"))
	if !attrsVal.Exists() {
		return nil
	}
	iter, err := attrsVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		field := spec.Path + ".attrs." + name
		av := iter.Value()

		var e Expr
		if av.Kind() == cue.StringKind {
			s, _ := av.String()
			if e, err = c.parse(s, field, av.Pos(), inEach); err != nil {
				return err
			}
		} else {
			lit, err := toIR(av, field)
			if err != nil {
				return err
			}
			e = Literal(lit)
		}
		spec.Attrs = append(spec.Attrs, AttrSpec{Name: name, Value: e})
	}
	return nil
}

// markLoopUse records whether spec reads item or index. Children with their
// own each start a new loop and only their each expression counts.
func (c *compiler) markLoopUse(spec *NodeSpec) {
	scan := func(e Expr) {
		for _, ref := range e.Refs() {
			switch ref.Root {
			case RootItem:
				spec.usesItem = true
			case RootIndex:
				spec.usesIndex = true
			}
		}
	}
	scan(spec.Key)
	for _, a := range spec.Attrs {
		scan(a.Value)
	}
	for _, ch := range spec.Children {
		scan(ch.Each)
		scan(ch.When)
		if ch.Each.IsZero() {
			spec.usesItem = spec.usesItem || ch.usesItem
			spec.usesIndex = spec.usesIndex || ch.usesIndex
		}
	}
}

// toIR converts a concrete CUE value. Floats and null are rejected.
func toIR(v cue.Value, field string) (ir.Value, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.String(s), nil
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return ir.Int(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.Bool(b), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		list := ir.List{}
		for i := 0; iter.Next(); i++ {
			elem, err := toIR(iter.Value(), fmt.Sprintf("%s[%d]", field, i))
			if err != nil {
				return nil, err
			}
			list = append(list, elem)
		}
		return list, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.Object{}
		for iter.Next() {
			elem, err := toIR(iter.Value(), field+"."+iter.Label())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil
	case cue.FloatKind:
		return nil, &CompileError{Field: field, Message: "floats are forbidden, use int", Pos: v.Pos()}
	case cue.NullKind:
		return nil, &CompileError{Field: field, Message: "null is forbidden", Pos: v.Pos()}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return nil, &CompileError{Field: field, Message: "value must be concrete", Pos: v.Pos()}
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
