// Package treespec declares trees in CUE and composes them.
//
// A tree file has a state block of initial values and a tree of nodes:
//
//	state: {
//		title: "Groceries"
//		items: [{id: "a", text: "milk"}, {id: "b", text: "eggs"}]
//		showFooter: false
//	}
//
//	tree: {
//		type: "app"
//		attrs: title: "${state.title}"
//		children: [{
//			type: "list"
//			children: [{
//				each: "${state.items}"
//				key:  "${item.id}"
//				type: "item"
//				attrs: text: "${item.text}"
//			}]
//		}, {
//			type: "footer"
//			when: "${state.showFooter}"
//		}]
//	}
//
// String attributes are templates. A template that is exactly one
// reference evaluates to the referenced value; otherwise references are
// rendered into the string. References are state.<name>[.<field>...],
// item[.<field>...] and index, the last two only under an each.
//
// Bind attaches a program to a tracker: each state entry becomes a
// state.Cell and Model.Content composes the tree, with every node a
// restartable scope, so a state write re-runs only the nodes that read it.
package treespec
