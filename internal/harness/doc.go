// Package harness runs translation scenarios and snapshots their SQL.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: contains-inline-list
//	description: "A short literal list becomes IN"
//	model: ../models/entity.cue
//	dialect: postgres
//	options:
//	  max_inline_list: 32
//	query:
//	  source: Entity
//	  ops:
//	    - where:
//	        params: [e]
//	        body:
//	          call: Contains
//	          receiver: {array: [10, 999], type: int}
//	          args: [{path: e.Int}]
//	expect:
//	  contains: ['WHERE e."Int" IN (10, 999)']
//	  shape: rows
//
// The query block uses the query document format of package query. The
// model path is resolved relative to the scenario file.
//
// # Expectations
//
//   - sql: the exact SQL text
//   - contains / not_contains: substrings of the SQL text
//   - parameters: name, store_type and optional value of each parameter
//   - shape: rows, row, single or scalar
//   - error: the expected TranslationError code; the query must fail
//   - rows: expected result rows; requires seed and the sqlite dialect
//
// # Seeding
//
// A seed block maps entity names to rows of host values. Seeded scenarios
// create every entity table in a fresh in-memory SQLite database, insert
// the rows and execute the translated command.
//
// # Golden Files
//
// RunWithGolden compares the rendered SQL, parameters and shape against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
