// Package translate compiles host query expression trees into SQL.
//
// A compilation runs in five stages over one Context:
//
//  1. Translation: operations and expressions are translated bottom-up.
//     Method calls are dispatched through a Recognizer to the family
//     translators (collections, hstore, JSON, ranges, network addresses,
//     full-text search and scalar built-ins).
//  2. Null semantics: comparisons over nullable operands are expanded so
//     SQL three-valued logic reproduces host equality (RewriteNulls).
//  3. Optimization: pass-through derived tables are collapsed, repeated
//     projections are emitted once and shared JSON path prefixes are
//     extracted into lateral joins.
//  4. Binding: parameters are named in print order; identical captured
//     values share one parameter.
//  5. Printing: the tree is rendered by sqlprint in the configured dialect.
//
// The result is a Plan, which is immutable and keyed by the shape of the
// query. Plan.Bind turns a plan plus captured values into a Command.
//
// Untranslatable input fails the whole compilation with a TranslationError
// naming the operation, member and position in the tree.
package translate
