// Package sqlprint renders sqlexpr trees as SQL text.
//
// All dialect knowledge lives in a Dialect value passed to Print: identifier
// quoting, placeholder style, cast syntax, literal tagging, and the
// operators, functions and row-source forms the target accepts. Constructs a
// dialect cannot express fail with *UnsupportedError rather than printing
// something the database would reject.
//
// Output is deterministic. Parenthesization follows operator precedence, so
// printing never depends on how the tree was built.
package sqlprint
