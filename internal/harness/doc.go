// Package harness runs conformance scenarios against every execution
// backend.
//
// A scenario embeds a query document, names the backends to run it on, and
// states what the output must be. The harness builds the document, compiles
// it once for the plan snapshot, executes it on each backend and checks the
// results against the expectation, against each other, and against the
// scenario's assertions and properties.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: left_join_df1_df2
//	description: "Left join keeps unmatched left rows"
//	fixtures: [df1, df2]
//	backends: [memory, sqlite]
//	query:
//	  steps:
//	    - name: joined
//	      join: {left: df1, right: df2, how: left, on: [key]}
//	expect:
//	  columns: [key, value, key2, other_value, key3]
//	  rows:
//	    - {key: a, value: 3, key2: e, other_value: 1, key3: f}
//	assertions:
//	  - type: row_count
//	    count: 5
//	properties: [operand_order]
//
// fixtures pulls shared tables from testutil into the document. An expect
// block with error set instead of rows passes when building or running the
// document fails with that error code, or with a message containing it.
//
// # Assertion Types
//
//   - columns: the output has exactly these columns, in order
//   - row_count: the output has exactly count rows
//   - contains_row: some output row matches every field of row
//   - no_column: the output has no column called column
//   - explain_contains: the plan text contains text
//
// # Properties
//
//   - operand_order: swapping the sides of every "a == b" join predicate
//     gives the same output
//   - deterministic: a second run gives the same output
//
// Backends always have to agree with each other. Scenarios run with stable
// output order unless stable_order is false. Then the memory backend's rows
// are checked in the order it returns them, which is the merge order, and
// the other backends are compared with it ignoring row order.
package harness
