package harness

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/ir"
)

// pathElem matches one tree_attr path element: a node type and an
// optional index among the siblings of that type.
var pathElem = regexp.MustCompile(`^([^\[\]]+)(?:\[(\d+)\])?$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string
	Actual   string
	Diff     string       // cmp.Diff output, when the values are structured
	Changes  changes.List // Changes the assertion looked at
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.Diff != "" {
		fmt.Fprintf(&buf, "  Diff (-expected +actual):\n%s", e.Diff)
	}

	if len(e.Changes) > 0 {
		fmt.Fprintf(&buf, "\nChanges:\n")
		for i, c := range e.Changes {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, c)
		}
	}
	return buf.String()
}

func scopeLabel(step *int) string {
	if step == nil {
		return "all passes"
	}
	return fmt.Sprintf("step %d", *step)
}

// assertChangeCount checks the number of changes, optionally of one op.
func assertChangeCount(result *Result, a Assertion) error {
	list := result.changesFor(a.Step)
	got := len(list)
	what := "changes"
	if a.Op != "" {
		got = list.Count(changes.Op(a.Op))
		what = a.Op + " changes"
	}
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertChangeCount,
		Expected: fmt.Sprintf("%d %s in %s", a.Count, what, scopeLabel(a.Step)),
		Actual:   fmt.Sprintf("%d", got),
		Changes:  list,
	}
}

// assertChangeContains checks that a change with the given rendering was
// emitted.
func assertChangeContains(result *Result, a Assertion) error {
	list := result.changesFor(a.Step)
	if slices.Contains(list.Strings(), a.Change) {
		return nil
	}
	return &AssertionError{
		Type:     AssertChangeContains,
		Expected: fmt.Sprintf("%q in %s", a.Change, scopeLabel(a.Step)),
		Actual:   "not found",
		Changes:  list,
	}
}

// assertTreeShape compares the final tree structure.
func assertTreeShape(result *Result, a Assertion) error {
	if result.Shape == a.Shape {
		return nil
	}
	return &AssertionError{
		Type:     AssertTreeShape,
		Expected: a.Shape,
		Actual:   result.Shape,
		Diff:     cmp.Diff(a.Shape, result.Shape),
	}
}

// assertTreeAttr compares an attribute of the node at a.Path.
func assertTreeAttr(tree *changes.Tree, a Assertion) error {
	node, err := findNode(tree, a.Path)
	if err != nil {
		return &AssertionError{
			Type:     AssertTreeAttr,
			Expected: fmt.Sprintf("node %s", a.Path),
			Actual:   err.Error(),
		}
	}

	actual, ok := node.Attrs[a.Attr]
	if !ok || actual == nil {
		return &AssertionError{
			Type:     AssertTreeAttr,
			Expected: fmt.Sprintf("%s.%s = %v", a.Path, a.Attr, a.Value),
			Actual:   "attribute not set",
		}
	}

	want, got := ir.FromGoLoose(a.Value), ir.FromGoLoose(actual)
	if ir.Equal(want, got) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTreeAttr,
		Expected: fmt.Sprintf("%s.%s = %s", a.Path, a.Attr, ir.Render(want)),
		Actual:   ir.Render(got),
		Diff:     cmp.Diff(ir.ToGo(want), ir.ToGo(got)),
	}
}

// findNode resolves a path such as "app/list/item[1]" from the root.
func findNode(tree *changes.Tree, path string) (changes.Node, error) {
	current, _ := tree.Node(changes.Root)
	for _, elem := range strings.Split(path, "/") {
		m := pathElem.FindStringSubmatch(elem)
		if m == nil {
			return changes.Node{}, fmt.Errorf("bad path element %q", elem)
		}
		want := 0
		if m[2] != "" {
			want, _ = strconv.Atoi(m[2])
		}

		seen := -1
		found := false
		for _, h := range current.Children {
			child, _ := tree.Node(h)
			if child.Type != m[1] {
				continue
			}
			if seen++; seen == want {
				current, found = child, true
				break
			}
		}
		if !found {
			return changes.Node{}, fmt.Errorf("no %s at %q (%d of that type)", elem, path, seen+1)
		}
	}
	return current, nil
}

// EvaluateAssertions evaluates all assertions against the result and the
// final tree.
// Returns a list of error messages (empty if all pass).
func EvaluateAssertions(result *Result, assertions []Assertion, tree *changes.Tree) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertChangeCount:
			err = assertChangeCount(result, assertion)
		case AssertChangeContains:
			err = assertChangeContains(result, assertion)
		case AssertTreeShape:
			err = assertTreeShape(result, assertion)
		case AssertTreeAttr:
			if tree == nil {
				err = fmt.Errorf("assertion[%d]: tree_attr requires the final tree", i)
			} else {
				err = assertTreeAttr(tree, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
