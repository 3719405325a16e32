package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listSource = `
state: items: [{id: "a", text: "milk"}, {id: "b", text: "eggs"}]
tree: {
	type: "list"
	children: [{
		each: "${state.items}"
		key:  "${item.id}"
		type: "item"
		attrs: text: "${item.text}"
	}]
}
`

func intp(n int) *int { return &n }

func reorderScenario(name string) *Scenario {
	return &Scenario{
		Name:        name,
		Description: "reversing two keyed items is one move",
		Source:      listSource,
		Steps: []Step{
			{Compose: true, Expect: &Expect{Inserts: intp(3), Executed: intp(3), Error: "none"}},
			{Set: map[string]any{"items": []any{
				map[string]any{"id": "b", "text": "eggs"},
				map[string]any{"id": "a", "text": "milk"},
			}}},
			{Recompose: true, Expect: &Expect{Changes: intp(1), Moves: intp(1), Executed: intp(1), Skipped: intp(2), Reentered: intp(1)}},
		},
		Assertions: []Assertion{
			{Type: AssertTreeShape, Shape: "root(list(item,item))"},
			{Type: AssertTreeAttr, Path: "list/item[0]", Attr: "text", Value: "eggs"},
			{Type: AssertChangeContains, Step: intp(2), Change: "move 1/3 1->0"},
		},
	}
}

func TestRun_Reorder(t *testing.T) {
	result, err := Run(reorderScenario("reorder"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Passes, 2, "set steps run no pass")

	first := result.Passes[0]
	assert.Equal(t, 0, first.Step)
	assert.Equal(t, "compose", first.Kind)
	assert.Equal(t, int64(1), first.Seq)
	assert.Equal(t, "reorder-000001", first.PassID)
	assert.Len(t, first.Changes, 5)

	second := result.Passes[1]
	assert.Equal(t, 2, second.Step)
	assert.Equal(t, "recompose", second.Kind)
	assert.Equal(t, int64(2), second.Seq)
	assert.Equal(t, []string{"move 1/3 1->0"}, second.Changes.Strings())
}

func TestRun_IsDeterministic(t *testing.T) {
	a, err := Run(reorderScenario("same"))
	require.NoError(t, err)
	b, err := Run(reorderScenario("same"))
	require.NoError(t, err)

	assert.Equal(t, TraceSnapshot("same", a), TraceSnapshot("same", b))
	assert.Equal(t, a.Passes, b.Passes)
}

func TestRun_ExpectMismatch(t *testing.T) {
	s := reorderScenario("mismatch")
	s.Steps[2].Expect = &Expect{Moves: intp(2), Error: "cycle"}

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected 2 moves, got 1")
	assert.Contains(t, result.Errors[1], `expected error containing "cycle"`)
}

func TestRun_RecordsPassErrors(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "dup",
		Description: "duplicate keys are reported, not fatal",
		Source: `
state: items: [{id: "a"}, {id: "a"}]
tree: {type: "list", children: [{each: "${state.items}", key: "${item.id}", type: "item"}]}
`,
		Steps: []Step{{Compose: true, Expect: &Expect{Error: "DUPLICATE_KEY"}}},
		Assertions: []Assertion{
			{Type: AssertTreeShape, Shape: "root(list(item))"},
		},
	})
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.NotEmpty(t, result.Passes[0].Error)
}

func TestRun_CompileError(t *testing.T) {
	_, err := Run(&Scenario{
		Name:        "bad",
		Description: "bad source",
		Source:      `tree: attrs: a: 1`,
		Steps:       []Step{{Compose: true}},
	})
	assert.ErrorContains(t, err, "failed to compile tree")
}

func TestRun_UnknownStateInSet(t *testing.T) {
	_, err := Run(&Scenario{
		Name:        "unknown",
		Description: "set of an undeclared state",
		Source:      listSource,
		Steps:       []Step{{Set: map[string]any{"nope": 1}}},
	})
	assert.ErrorContains(t, err, `unknown state "nope"`)
}

func TestRun_ScenarioFiles(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			s, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}
