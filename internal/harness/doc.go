// Package harness provides scenario-based conformance testing for the
// calculation engine.
//
// Scenarios are YAML files pairing an evaluation context with requested
// targets and expectations, executed against an isolated registry of the
// built-in formulas.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	context:
//	  revenue: 1000
//	  cost_of_goods_sold: 400
//	targets:
//	  - gross_margin
//	partial: false
//	places: 2
//	expect:
//	  gross_margin: "60.00"
//	expect_error: ""        # "", "missing_input", "cycle", "calculation"
//	expect_missing:          # asserted against MissingInputError payload
//	  - net_income
//
// # Deterministic Testing
//
// Resolution is single-threaded and the trace recorder stamps events with
// a logical sequence, so the same scenario always produces an identical
// trace. RunWithGolden compares the trace snapshot against a golden file
// under testdata/golden; regenerate with:
//
//	go test ./internal/harness -update
package harness
