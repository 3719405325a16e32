package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/recompose/internal/ir"
	"github.com/roach88/recompose/internal/store"
)

// TraceSnapshot is the canonical value of a scenario's passes and final
// tree. Pass ids are left out; seq already orders the passes.
func TraceSnapshot(name string, result *Result) ir.Object {
	passes := make(ir.List, len(result.Passes))
	for i, p := range result.Passes {
		obj := ir.Object{
			"step":      ir.Int(p.Step),
			"kind":      ir.String(p.Kind),
			"seq":       ir.Int(p.Seq),
			"executed":  ir.Int(p.Executed),
			"skipped":   ir.Int(p.Skipped),
			"reentered": ir.Int(p.Reentered),
			"changes":   store.ChangesValue(p.Changes),
		}
		if p.Error != "" {
			obj["error"] = ir.String(p.Error)
		}
		passes[i] = obj
	}

	snap := ir.Object{
		"scenario_name": ir.String(name),
		"passes":        passes,
	}
	if result.Tree != nil {
		snap["tree"] = result.Tree
	}
	return snap
}

// RunWithGolden executes a scenario and compares its trace against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. A trace mismatch fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := ir.MarshalCanonical(TraceSnapshot(name, result))
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
