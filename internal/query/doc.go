// Package query defines the host query expression tree that querylift
// translates to SQL.
//
// A Query is an entity-set root plus a chain of operations (Where, Select,
// OrderBy, Join, GroupBy, SelectMany, Skip/Take, Distinct and a terminal
// aggregate). Each operation carries lambdas whose bodies are Expr trees
// over entity properties, constants and captured host variables.
//
// SEALED INTERFACES:
//
// Expr and Operation are sealed with marker methods. Only types in this
// package implement them, so translators can switch exhaustively:
//
//	switch e := expr.(type) {
//	case *query.Member:
//	    // property access or JSON navigation
//	case *query.Call:
//	    // dispatched through the operation recognizer
//	default:
//	    // unknown node
//	}
//
// CAPTURED VALUES AND SHAPE:
//
// Constants are rendered inline; Captured values always become parameters.
// Shape strips captured values (keeping name and type), so two queries that
// differ only in captured values share a ShapeHash and compile to identical
// SQL. The plan cache is keyed by that hash.
//
// DOCUMENTS:
//
// Decode reads the YAML/JSON document form used by the CLI and the
// scenario harness. Validate reports structural problems (unknown lambda
// parameters, nested client evaluation, empty projections) before
// translation.
package query
