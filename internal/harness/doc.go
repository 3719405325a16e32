// Package harness runs recomposition scenarios.
//
// A scenario names a CUE tree (a file, or inline source), a list of steps
// and assertions:
//
//	name: reorder
//	description: reversing a keyed list only moves nodes
//	tree: groceries.cue
//	steps:
//	  - compose: true
//	    expect: {inserts: 3}
//	  - set:
//	      items: [{id: b, text: eggs}, {id: a, text: milk}]
//	  - recompose: true
//	    expect: {moves: 1, executed: 1, error: none}
//	assertions:
//	  - type: tree_shape
//	    shape: root(list(item,item))
//	  - type: tree_attr
//	    path: list/item[0]
//	    attr: text
//	    value: eggs
//
// Every pass is written to an in-memory pass log and read back, so the
// trace a scenario produces is the persisted one. Runs are deterministic:
// a fresh logical clock and sequential pass ids per scenario. RunWithGolden
// compares the canonical JSON trace with a goldie golden file.
package harness
