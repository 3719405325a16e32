package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/recompose/internal/changes"
	"github.com/roach88/recompose/internal/treespec"
)

// Scenario is a recomposition test: a tree, a sequence of state writes and
// passes, and assertions on the produced changes and the final tree.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tree is the path of a CUE tree file, relative to the scenario file.
	Tree string `yaml:"tree,omitempty"`

	// Source is an inline CUE tree, used when Tree is empty.
	Source string `yaml:"source,omitempty"`

	Options Options `yaml:"options,omitempty"`

	Steps []Step `yaml:"steps"`

	// Assertions validate the passes and the final tree.
	// Supported types: change_count, change_contains, tree_attr, tree_shape
	Assertions []Assertion `yaml:"assertions"`
}

// Options tune the composition the scenario runs on.
type Options struct {
	MoveLookahead *int `yaml:"move_lookahead,omitempty"`
	MaxReentries  *int `yaml:"max_reentries,omitempty"`
}

// Step is one action. Exactly one of Compose, Recompose and Set is given.
type Step struct {
	// Compose runs a full pass from the root.
	Compose bool `yaml:"compose,omitempty"`

	// Recompose re-enters pending scopes only.
	Recompose bool `yaml:"recompose,omitempty"`

	// Set writes state entries in one batch. No pass runs.
	Set map[string]any `yaml:"set,omitempty"`

	// Expect validates the pass a compose or recompose step produced.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect checks a single pass. Nil fields are not checked.
type Expect struct {
	Changes    *int `yaml:"changes,omitempty"`
	Inserts    *int `yaml:"inserts,omitempty"`
	Removes    *int `yaml:"removes,omitempty"`
	Moves      *int `yaml:"moves,omitempty"`
	Attributes *int `yaml:"attributes,omitempty"`
	Executed   *int `yaml:"executed,omitempty"`
	Skipped    *int `yaml:"skipped,omitempty"`
	Reentered  *int `yaml:"reentered,omitempty"`

	// Error is a substring of the pass error. "none" requires a clean pass.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the trace or the final tree.
type Assertion struct {
	// Type specifies the assertion type:
	// - "change_count": count changes, optionally of one op
	// - "change_contains": a change with the given rendering was emitted
	// - "tree_attr": an attribute of a node in the final tree
	// - "tree_shape": the final tree's structure
	Type string `yaml:"type"`

	// Step limits change assertions to the pass of one step. Nil means all
	// passes.
	Step *int `yaml:"step,omitempty"`

	// Op filters change_count: insert, remove, move or set_attribute.
	Op string `yaml:"op,omitempty"`

	Count int `yaml:"count,omitempty"`

	// Change is the expected rendering, such as "move 1/3 1->0".
	Change string `yaml:"change,omitempty"`

	// Path selects a node by types, such as "list/item[1]". [n] picks the
	// nth child of that type and defaults to 0.
	Path string `yaml:"path,omitempty"`

	Attr  string `yaml:"attr,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// Shape is the expected Tree.Shape rendering.
	Shape string `yaml:"shape,omitempty"`
}

// Assertion type constants.
const (
	AssertChangeCount    = "change_count"
	AssertChangeContains = "change_contains"
	AssertTreeAttr       = "tree_attr"
	AssertTreeShape      = "tree_shape"
)

// LoadScenario reads and parses a scenario YAML file. A relative Tree path
// is resolved against the scenario file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if scenario.Tree != "" && !filepath.IsAbs(scenario.Tree) {
		scenario.Tree = filepath.Join(filepath.Dir(path), scenario.Tree)
	}
	if scenario.Tree != "" {
		if _, err := os.Stat(scenario.Tree); err != nil {
			return nil, fmt.Errorf("invalid scenario: tree file not found: %s", scenario.Tree)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" for "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// program compiles the scenario's tree.
func (s *Scenario) program() (*treespec.Program, error) {
	if s.Tree != "" {
		return treespec.CompileFile(s.Tree)
	}
	return treespec.CompileString(s.Source, s.Name+".cue")
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if (s.Tree == "") == (s.Source == "") {
		return fmt.Errorf("exactly one of tree and source is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		actions := 0
		if step.Compose {
			actions++
		}
		if step.Recompose {
			actions++
		}
		if step.Set != nil {
			actions++
		}
		if actions != 1 {
			return fmt.Errorf("steps[%d]: exactly one of compose, recompose and set is required", i)
		}
		if step.Set != nil && step.Expect != nil {
			return fmt.Errorf("steps[%d]: expect is not allowed on set steps", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, len(s.Steps)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Step != nil && (*a.Step < 0 || *a.Step >= steps) {
		return fmt.Errorf("assertions[%d]: step %d out of range", index, *a.Step)
	}

	switch a.Type {
	case AssertChangeCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for change_count", index)
		}
		switch changes.Op(a.Op) {
		case "", changes.OpInsert, changes.OpRemove, changes.OpMove, changes.OpSetAttribute:
		default:
			return fmt.Errorf("assertions[%d]: unknown op %q", index, a.Op)
		}
	case AssertChangeContains:
		if a.Change == "" {
			return fmt.Errorf("assertions[%d]: change is required for change_contains", index)
		}
	case AssertTreeAttr:
		if a.Path == "" || a.Attr == "" {
			return fmt.Errorf("assertions[%d]: path and attr are required for tree_attr", index)
		}
	case AssertTreeShape:
		if a.Shape == "" {
			return fmt.Errorf("assertions[%d]: shape is required for tree_shape", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
