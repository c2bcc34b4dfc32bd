// Package sqlexpr is the dialect-neutral SQL expression model produced by
// translation and consumed by the printer.
//
// Expressions (Expr) are column references, constants, parameters, function
// calls, operators, CASE, subqueries, array constructs, casts, EXISTS, IN,
// ANY and JSON path navigation. Every node carries the resolved
// *typemap.Mapping of its value; constructors refuse to build untyped nodes.
//
// Statements (Query) are Select and SetOp. Row sources (Source) are tables,
// derived tables, set-returning table functions and VALUES lists; Join
// attaches them, optionally LATERAL.
//
// Walk visits expressions in print order, which the parameter binder relies
// on to number placeholders. Rewrite rebuilds a tree bottom-up without
// modifying its input. Key gives a canonical structural description used for
// deduplication.
package sqlexpr
